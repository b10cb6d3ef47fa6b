/*
 * MIT License
 *
 * Copyright (c) 2021 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

//go:build unix

package buffer

import (
	"io"

	"golang.org/x/sys/unix"
)

// ReadUntilBlock performs repeated non-blocking unix.Read calls into the
// buffer's tail pages until the kernel returns EAGAIN/EWOULDBLOCK (the
// normal "drained" signal after a readiness event), a read of zero bytes
// (peer half-shutdown), or a genuine error. fd must already be in
// non-blocking mode (the accept path / connection.MakeNonBlocking sets
// this once per socket).
func (b *Buffer) ReadUntilBlock(fd int) (n int64, wouldBlock bool, err error) {
	b.materialize()
	for {
		if len(b.pages) == 0 || b.pages[len(b.pages)-1].free() == 0 {
			b.pages = append(b.pages, newPage(b.pageSize))
		}
		last := b.pages[len(b.pages)-1]
		c, e := unix.Read(fd, last.data[last.used:])
		if c > 0 {
			last.used += c
			b.size += uint64(c)
			n += int64(c)
		}
		if e != nil {
			if e == unix.EAGAIN || e == unix.EWOULDBLOCK {
				return n, true, nil
			}
			if e == unix.EINTR {
				continue
			}
			return n, false, e
		}
		if c == 0 {
			return n, false, io.EOF
		}
	}
}

// WriteUntilBlock gathers the live page list and writes it directly to fd
// via repeated non-blocking unix.Write calls, popping confirmed bytes,
// until the queue drains, the kernel returns EAGAIN/EWOULDBLOCK, or a
// genuine error occurs.
func (b *Buffer) WriteUntilBlock(fd int) (n int64, wouldBlock bool, err error) {
	for b.size > 0 {
		first := b.pages[0]
		chunk := first.data[b.left:first.used]
		c, e := unix.Write(fd, chunk)
		if c > 0 {
			b.Pop(c)
			n += int64(c)
		}
		if e != nil {
			if e == unix.EAGAIN || e == unix.EWOULDBLOCK {
				return n, true, nil
			}
			if e == unix.EINTR {
				continue
			}
			return n, false, e
		}
		if c < len(chunk) {
			return n, true, nil
		}
	}
	return n, false, nil
}
