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

// Package buffer implements the page-list byte buffer and output-stream
// primitives the connection and stage packages are built on: a copy-on-write
// paged Buffer, a polymorphic Writeable output item, and an OutputStream FIFO
// that tracks resident memory so a backpressure bound can be enforced.
package buffer

// DefaultPageSize is the page size used when no explicit size is configured.
const DefaultPageSize = 16 * 1024

type page struct {
	data []byte
	used int
}

func newPage(size int) *page {
	return &page{data: make([]byte, size)}
}

func (p *page) free() int {
	return len(p.data) - p.used
}

func (p *page) clone() *page {
	cp := &page{data: make([]byte, len(p.data)), used: p.used}
	copy(cp.data, p.data)
	return cp
}
