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
	"errors"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by FDWriter.Write when the kernel reports
// EAGAIN/EWOULDBLOCK: the normal backpressure signal telling PollOutStage to
// wait for the next write-readiness event instead of a real failure.
var ErrWouldBlock = errors.New("buffer: write would block")

// FDWriter adapts a non-blocking file descriptor to io.Writer so
// OutputStream.Flush can drive Writeable.WriteTo directly against the
// socket without an intermediate copy.
type FDWriter struct {
	fd int
}

// NewFDWriter wraps fd, which must already be in non-blocking mode.
func NewFDWriter(fd int) *FDWriter { return &FDWriter{fd: fd} }

func (w *FDWriter) Write(p []byte) (int, error) {
	for {
		n, err := unix.Write(w.fd, p)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return n, ErrWouldBlock
			}
			return n, err
		}
		return n, nil
	}
}
