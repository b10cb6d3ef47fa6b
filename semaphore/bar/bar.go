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

// Package bar implements types.Bar on top of a types.Sem and an mpb progress
// container, rendering a live terminal bar for each unit of tracked work.
// It is used by the CLI driver's --progress mode to show per-stage queue
// depth and per-connection bytes transferred.
package bar

import (
	"sync/atomic"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	libtps "github.com/nabbar/tube/semaphore/types"
)

type bar struct {
	libtps.Sem

	pgb *mpb.Progress
	bar *mpb.Bar

	total     atomic.Int64
	completed atomic.Bool
}

// New attaches a generic mpb bar (numeric counter decorator) to sem's
// progress container. If sem carries no container (SemPgb.GetMPB() == nil)
// the returned Bar still tracks total/current but renders nothing.
func New(sem libtps.Sem, total int64, drop bool) libtps.Bar {
	return newWithOptions(sem, "", "", total, drop, nil)
}

func newWithOptions(sem libtps.Sem, name, unit string, total int64, drop bool, queueAfter libtps.Bar) libtps.Bar {
	b := &bar{Sem: sem}
	b.total.Store(total)

	pgb, _ := sem.(libtps.SemPgb)
	if pgb == nil || pgb.GetMPB() == nil {
		return b
	}

	b.pgb = pgb.GetMPB()

	opts := []mpb.BarOption{
		mpb.BarFillerClearOnComplete(),
		mpb.PrependDecorators(decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight})),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d"), decor.Name(" "+unit), decor.Percentage()),
	}
	if drop {
		opts = append(opts, mpb.BarRemoveOnComplete())
	}
	if qa, ok := queueAfter.(libtps.BarMPB); ok && qa.GetMPB() != nil {
		opts = append(opts, mpb.BarQueueAfter(qa.GetMPB(), false))
	}

	b.bar = b.pgb.AddBar(total, append([]mpb.BarOption{mpb.BarStyle()}, opts...)...)
	return b
}

// NewBytes builds a byte-throughput bar (KiB/s style decorators).
func NewBytes(sem libtps.Sem, name, unit string, total int64, drop bool, queueAfter libtps.Bar) libtps.Bar {
	return newWithOptions(sem, name, unit, total, drop, queueAfter)
}

// NewTime builds an elapsed/ETA time bar.
func NewTime(sem libtps.Sem, name, unit string, total int64, drop bool, queueAfter libtps.Bar) libtps.Bar {
	return newWithOptions(sem, name, unit, total, drop, queueAfter)
}

// NewNumber builds a plain item-count bar.
func NewNumber(sem libtps.Sem, name, unit string, total int64, drop bool, queueAfter libtps.Bar) libtps.Bar {
	return newWithOptions(sem, name, unit, total, drop, queueAfter)
}

func (b *bar) Total() int64 {
	return b.total.Load()
}

func (b *bar) Current() int64 {
	if b.bar == nil {
		return 0
	}
	return b.bar.Current()
}

func (b *bar) Inc(n int) {
	b.Inc64(int64(n))
}

func (b *bar) Inc64(n int64) {
	if b.bar == nil {
		return
	}
	b.bar.IncrBy(int(n))
	if b.bar.Current() >= b.total.Load() {
		b.Complete()
	}
}

func (b *bar) Dec(n int) {
	b.Dec64(int64(n))
}

func (b *bar) Dec64(n int64) {
	if b.bar == nil {
		return
	}
	b.bar.IncrBy(int(-n))
}

func (b *bar) Reset(total, current int64) {
	b.total.Store(total)
	b.completed.Store(false)

	if b.bar == nil {
		return
	}
	b.bar.SetCurrent(current)
}

func (b *bar) Complete() {
	b.completed.Store(true)
	if b.bar == nil {
		return
	}
	if !b.bar.Completed() {
		b.bar.SetCurrent(b.total.Load())
	}
}

func (b *bar) Completed() bool {
	if b.bar != nil {
		return b.bar.Completed()
	}
	return b.completed.Load()
}

func (b *bar) GetMPB() *mpb.Bar {
	return b.bar
}
