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

// Package types holds the shared contracts implemented by sem, bar and nobar
// so that the top level semaphore package can compose them without an import
// cycle: sem and the bar flavors never import each other directly.
package types

import (
	"context"

	"github.com/vbauerster/mpb/v8"
)

// Sem bounds the number of concurrent workers a caller may run. A
// nbrSimultaneous of zero means MaxSimultaneous(), negative means unlimited
// (WaitGroup backed), positive is a weighted semaphore of that size.
type Sem interface {
	context.Context

	// New creates an independent Sem inheriting this one's context and limit.
	New() Sem

	// Weighted reports the configured limit, -1 when unlimited.
	Weighted() int64

	// NewWorker blocks until a slot is available or the context is done.
	NewWorker() error

	// NewWorkerTry acquires a slot without blocking.
	NewWorkerTry() bool

	// DeferWorker releases a slot acquired by NewWorker/NewWorkerTry.
	DeferWorker()

	// DeferMain cancels the semaphore's own context, unblocking any pending
	// NewWorker callers and marking WaitAll safe to call immediately after
	// in-flight workers have returned.
	DeferMain()

	// WaitAll blocks until every outstanding worker has called DeferWorker.
	WaitAll() error
}

// SemPgb is a Sem that can additionally drive mpb progress bars.
type SemPgb interface {
	Sem

	BarBytes(name, unit string, total int64, drop bool, queueAfter Bar) Bar
	BarTime(name, unit string, total int64, drop bool, queueAfter Bar) Bar
	BarNumber(name, unit string, total int64, drop bool, queueAfter Bar) Bar
	BarOpts(total int64, drop bool) Bar

	// GetMPB returns the underlying progress container, nil when this
	// SemPgb was constructed without bar support.
	GetMPB() *mpb.Progress
}

// Bar tracks the progress of one unit of work. It embeds Sem so that a
// caller can gate concurrent workers contributing to the same bar.
type Bar interface {
	Sem

	Total() int64
	Current() int64

	Inc(n int)
	Inc64(n int64)
	Dec(n int)
	Dec64(n int64)
	Reset(total, current int64)

	Complete()
	Completed() bool
}

// BarMPB is implemented by Bar values that were constructed with an mpb
// progress container attached; GetMPB returns nil otherwise.
type BarMPB interface {
	GetMPB() *mpb.Bar
}
