/*
 * MIT License
 *
 * Copyright (c) 2019 Nicolas JUHEL
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

// Package nobar implements types.Bar on top of a types.Sem without driving
// any mpb progress container: Inc/Dec/Reset only maintain atomic counters.
// It backs SemPgb.Bar* calls when the semaphore was built without progress
// support, so callers never need to branch on whether bars are visible.
package nobar

import (
	"sync/atomic"

	libtps "github.com/nabbar/tube/semaphore/types"
)

type nobar struct {
	libtps.Sem

	total     atomic.Int64
	current   atomic.Int64
	drop      bool
	completed atomic.Bool
}

// New wraps sem in a types.Bar that tracks total/current with atomics and
// never renders anything. drop is accepted for interface symmetry with bar.New.
func New(sem libtps.Sem, total int64, drop bool) libtps.Bar {
	b := &nobar{
		Sem:  sem,
		drop: drop,
	}
	b.total.Store(total)
	return b
}

func (b *nobar) Total() int64 {
	return b.total.Load()
}

func (b *nobar) Current() int64 {
	return b.current.Load()
}

func (b *nobar) Inc(n int) {
	b.Inc64(int64(n))
}

func (b *nobar) Inc64(n int64) {
	cur := b.current.Add(n)
	if cur >= b.total.Load() {
		b.Complete()
	}
}

func (b *nobar) Dec(n int) {
	b.Dec64(int64(n))
}

func (b *nobar) Dec64(n int64) {
	b.current.Add(-n)
}

func (b *nobar) Reset(total, current int64) {
	b.total.Store(total)
	b.current.Store(current)
	b.completed.Store(false)
}

func (b *nobar) Complete() {
	b.completed.Store(true)
}

func (b *nobar) Completed() bool {
	return b.completed.Load()
}
