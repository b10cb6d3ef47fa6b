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

package buffer

import (
	"io"
	"sync/atomic"
)

// Buffer is an ordered sequence of fixed-size pages with a left offset into
// the first page. Append is O(1) amortised, Pop is O(pages released).
// Copy shares the page list with the source until either side mutates, at
// which point the mutator materializes its own page list (copy-on-write).
type Buffer struct {
	pageSize int
	pages    []*page
	left     int
	size     uint64
	refs     *atomic.Int32
}

// New returns an empty Buffer using pageSize-byte pages (DefaultPageSize if
// pageSize <= 0).
func New(pageSize int) *Buffer {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	r := &atomic.Int32{}
	r.Store(1)
	return &Buffer{pageSize: pageSize, refs: r}
}

// Copy returns a buffer sharing the current page list. The page list is
// materialized independently the first time either buffer mutates.
func (b *Buffer) Copy() *Buffer {
	b.refs.Add(1)
	return &Buffer{
		pageSize: b.pageSize,
		pages:    b.pages,
		left:     b.left,
		size:     b.size,
		refs:     b.refs,
	}
}

// Size returns the number of valid, unpopped bytes held by the buffer.
func (b *Buffer) Size() uint64 {
	return b.size
}

// MemoryUsage reports resident bytes; for a Buffer this equals Size.
func (b *Buffer) MemoryUsage() int {
	return int(b.size)
}

// materialize forks a private page list if this buffer's pages are still
// observed by a Copy sibling. Must be called before any mutation.
func (b *Buffer) materialize() {
	if b.refs.Add(-1) > 0 {
		np := make([]*page, len(b.pages))
		for i, p := range b.pages {
			np[i] = p.clone()
		}
		b.pages = np
	}
	r := &atomic.Int32{}
	r.Store(1)
	b.refs = r
}

// Append copies p into the buffer, allocating new pages at the tail as
// needed, and returns the number of bytes written (always len(p)).
func (b *Buffer) Append(p []byte) int {
	b.materialize()
	return b.appendLocked(p)
}

func (b *Buffer) appendLocked(p []byte) int {
	n := 0
	for len(p) > 0 {
		if len(b.pages) == 0 || b.pages[len(b.pages)-1].free() == 0 {
			b.pages = append(b.pages, newPage(b.pageSize))
		}
		last := b.pages[len(b.pages)-1]
		c := copy(last.data[last.used:], p)
		last.used += c
		p = p[c:]
		n += c
	}
	b.size += uint64(n)
	return n
}

// AppendBuffer drains all of src's bytes into the receiver, emptying src.
func (b *Buffer) AppendBuffer(src *Buffer) int {
	n := 0
	buf := make([]byte, src.pageSize)
	for src.Size() > 0 {
		c := src.CopyFront(buf)
		if c == 0 {
			break
		}
		n += b.Append(buf[:c])
		src.Pop(c)
	}
	return n
}

// CopyFront is a non-destructive read of up to len(dst) leading bytes.
func (b *Buffer) CopyFront(dst []byte) int {
	n := 0
	left := b.left
	for _, p := range b.pages {
		if n >= len(dst) {
			break
		}
		avail := p.used - left
		if avail <= 0 {
			left = 0
			continue
		}
		c := copy(dst[n:], p.data[left:p.used])
		n += c
		left = 0
		if c < avail {
			break
		}
	}
	return n
}

// Pop advances the left offset by up to n bytes, releasing whole pages
// eagerly, and returns the number of bytes actually popped.
func (b *Buffer) Pop(n int) int {
	b.materialize()
	return b.popLocked(n)
}

func (b *Buffer) popLocked(n int) int {
	popped := 0
	for n > 0 && len(b.pages) > 0 {
		first := b.pages[0]
		avail := first.used - b.left
		if avail <= 0 {
			b.pages = b.pages[1:]
			b.left = 0
			continue
		}
		take := avail
		if take > n {
			take = n
		}
		b.left += take
		n -= take
		popped += take
		if b.left >= first.used {
			b.pages = b.pages[1:]
			b.left = 0
		}
	}
	b.size -= uint64(popped)
	return popped
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.materialize()
	b.pages = nil
	b.left = 0
	b.size = 0
}

// ReadFrom implements io.ReaderFrom: it reads from r into new or partially
// filled tail pages until r.Read returns 0 bytes or a non-nil error. Callers
// on a non-blocking fd pass an io.Reader that surfaces EAGAIN as an error so
// the drain loop here terminates on the same condition the caller checks.
func (b *Buffer) ReadFrom(r io.Reader) (int64, error) {
	b.materialize()
	var total int64
	for {
		if len(b.pages) == 0 || b.pages[len(b.pages)-1].free() == 0 {
			b.pages = append(b.pages, newPage(b.pageSize))
		}
		last := b.pages[len(b.pages)-1]
		n, err := r.Read(last.data[last.used:])
		if n > 0 {
			last.used += n
			b.size += uint64(n)
			total += int64(n)
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
}

// WriteTo implements io.WriterTo: it writes the live page list to w in order,
// popping bytes as they are confirmed written, and stops on the first short
// write or error (the caller re-arms and resumes later).
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for b.size > 0 {
		first := b.pages[0]
		chunk := first.data[b.left:first.used]
		n, err := w.Write(chunk)
		if n > 0 {
			b.Pop(n)
			total += int64(n)
		}
		if err != nil {
			return total, err
		}
		if n < len(chunk) {
			return total, nil
		}
	}
	return total, nil
}
