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
	"os"
)

// Kind tags the concrete variant behind a Writeable, replacing the C++
// Writeable/Buffer/FileRange inheritance chain with an enumerable accessor.
type Kind int

const (
	// KindBuffer is a byte-range owned by a Buffer page list.
	KindBuffer Kind = iota
	// KindFileRange is an (fd, offset, length) range read from the file at
	// write time instead of being held in memory.
	KindFileRange
	// KindRaw is a raw, externally-owned byte slice.
	KindRaw
)

// Writeable is a polymorphic output-stream item: a buffered byte range, a
// file range sent zero-copy, or a raw external buffer.
type Writeable interface {
	// WriteTo writes as much of the item as w accepts without blocking,
	// returning bytes written and any error (io.ErrShortWrite is not
	// treated as an error here: a short write is normal backpressure).
	WriteTo(w io.Writer) (int64, error)
	// Size is the number of bytes remaining in this item.
	Size() uint64
	// MemoryUsage is resident bytes; file ranges report zero.
	MemoryUsage() int
	// EOF reports whether the item is fully drained.
	EOF() bool
	// Append extends the item in place if the variant supports it.
	Append(p []byte) bool
	// Kind identifies the concrete variant.
	Kind() Kind
}

// BufferWriteable adapts a Buffer to the Writeable interface.
type BufferWriteable struct {
	buf *Buffer
}

// NewBufferWriteable wraps buf (DefaultPageSize pages if buf is nil).
func NewBufferWriteable(buf *Buffer) *BufferWriteable {
	if buf == nil {
		buf = New(DefaultPageSize)
	}
	return &BufferWriteable{buf: buf}
}

func (b *BufferWriteable) WriteTo(w io.Writer) (int64, error) { return b.buf.WriteTo(w) }
func (b *BufferWriteable) Size() uint64                       { return b.buf.Size() }
func (b *BufferWriteable) MemoryUsage() int                   { return b.buf.MemoryUsage() }
func (b *BufferWriteable) EOF() bool                          { return b.buf.Size() == 0 }
func (b *BufferWriteable) Kind() Kind                         { return KindBuffer }
func (b *BufferWriteable) Append(p []byte) bool {
	b.buf.Append(p)
	return true
}

// FileRangeWriteable streams [offset, offset+length) of a backing file via
// io.Copy/io.CopyN rather than materialising the range in a Buffer, so a
// large file response never inflates OutputStream.MemoryUsage.
type FileRangeWriteable struct {
	f      *os.File
	offset int64
	length int64
	sent   int64
}

// NewFileRangeWriteable streams length bytes of f starting at offset.
func NewFileRangeWriteable(f *os.File, offset, length int64) *FileRangeWriteable {
	return &FileRangeWriteable{f: f, offset: offset, length: length}
}

func (f *FileRangeWriteable) WriteTo(w io.Writer) (int64, error) {
	remain := f.length - f.sent
	if remain <= 0 {
		return 0, nil
	}
	sr := io.NewSectionReader(f.f, f.offset+f.sent, remain)
	n, err := io.Copy(w, sr)
	f.sent += n
	if err == io.EOF {
		err = nil
	}
	return n, err
}

func (f *FileRangeWriteable) Size() uint64       { return uint64(f.length - f.sent) }
func (f *FileRangeWriteable) MemoryUsage() int   { return 0 }
func (f *FileRangeWriteable) EOF() bool          { return f.sent >= f.length }
func (f *FileRangeWriteable) Append(_ []byte) bool { return false }
func (f *FileRangeWriteable) Kind() Kind         { return KindFileRange }

// RawWriteable wraps a caller-owned byte slice that must not be mutated
// concurrently; used for small, short-lived responses where paging through
// a Buffer would be wasted allocation.
type RawWriteable struct {
	data []byte
	off  int
}

// NewRawWriteable wraps data, which the caller must not mutate afterwards.
func NewRawWriteable(data []byte) *RawWriteable {
	return &RawWriteable{data: data}
}

func (r *RawWriteable) WriteTo(w io.Writer) (int64, error) {
	if r.off >= len(r.data) {
		return 0, nil
	}
	n, err := w.Write(r.data[r.off:])
	r.off += n
	return int64(n), err
}

func (r *RawWriteable) Size() uint64     { return uint64(len(r.data) - r.off) }
func (r *RawWriteable) MemoryUsage() int { return len(r.data) - r.off }
func (r *RawWriteable) EOF() bool        { return r.off >= len(r.data) }
func (r *RawWriteable) Kind() Kind       { return KindRaw }
func (r *RawWriteable) Append(p []byte) bool {
	r.data = append(r.data, p...)
	return true
}
