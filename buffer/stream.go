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

import "io"

// InputStream is the inbound half of a connection: a single Buffer drained
// by repeated non-blocking reads until the kernel reports EAGAIN.
type InputStream struct {
	buf *Buffer
}

// NewInputStream returns an InputStream using pageSize-byte pages.
func NewInputStream(pageSize int) *InputStream {
	return &InputStream{buf: New(pageSize)}
}

// Buffer exposes the backing Buffer for parser stages to read from.
func (s *InputStream) Buffer() *Buffer { return s.buf }

// Fill drains r into the buffer until Read returns 0, an error, or the
// caller-chosen io.Reader surfaces EAGAIN; see Buffer.ReadFrom.
func (s *InputStream) Fill(r io.Reader) (int64, error) { return s.buf.ReadFrom(r) }

// OutputStream is a FIFO of Writeables with a running memory-usage total,
// used by WriteBack stages to enforce a backpressure bound (§8 S3).
type OutputStream struct {
	items   []Writeable
	memUsed int
}

// NewOutputStream returns an empty OutputStream.
func NewOutputStream() *OutputStream {
	return &OutputStream{}
}

// Enqueue appends w to the tail of the stream.
func (s *OutputStream) Enqueue(w Writeable) {
	s.items = append(s.items, w)
	s.memUsed += w.MemoryUsage()
}

// IsDone reports whether the queue is empty.
func (s *OutputStream) IsDone() bool {
	return len(s.items) == 0
}

// MemoryUsage is the cumulative resident memory of all queued items.
func (s *OutputStream) MemoryUsage() int {
	return s.memUsed
}

// Flush writes from the head of the queue to w, popping fully-drained items,
// until either the queue empties or a write returns a short write/error
// (the normal EAGAIN backpressure signal). It returns total bytes written.
func (s *OutputStream) Flush(w io.Writer) (int64, error) {
	var total int64
	for len(s.items) > 0 {
		head := s.items[0]
		before := head.MemoryUsage()
		n, err := head.WriteTo(w)
		total += n
		after := head.MemoryUsage()
		s.memUsed -= before - after
		if err != nil {
			return total, err
		}
		if head.EOF() {
			s.items = s.items[1:]
			continue
		}
		// short write: item not drained, caller must re-arm for Write
		// readiness and resume later.
		return total, nil
	}
	return total, nil
}

// Clear discards all queued items without writing them.
func (s *OutputStream) Clear() {
	s.items = nil
	s.memUsed = 0
}
