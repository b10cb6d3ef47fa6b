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

package stage

import (
	"fmt"
	"sync"

	libcon "github.com/nabbar/tube/connection"
	liblog "github.com/nabbar/tube/logger"
	libr "github.com/nabbar/tube/runner"
)

// RecycleStage is a single-threaded batching collector: connections queued
// for disposal accumulate under its own mutex until Run drains a batch,
// handing each one to the dispose callback (§4.10).
// It deliberately bypasses the generic Stage/Scheduler machinery, matching
// the original's single dedicated disposal thread.
type RecycleStage struct {
	name string
	log  liblog.FuncLog

	mu      sync.Mutex
	pending []*libcon.Connection
	notify  chan struct{}
	closed  bool

	dispose func(*libcon.Connection)
}

// NewRecycleStage returns a RecycleStage that calls dispose once per queued
// connection when drained.
func NewRecycleStage(name string, dispose func(*libcon.Connection), log liblog.FuncLog) *RecycleStage {
	return &RecycleStage{
		name:    name,
		log:     log,
		notify:  make(chan struct{}),
		dispose: dispose,
	}
}

// Enqueue appends conn for later disposal. Safe to call from any stage.
func (r *RecycleStage) Enqueue(conn *libcon.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.pending = append(r.pending, conn)
	close(r.notify)
	r.notify = make(chan struct{})
}

// Depth is the number of connections currently queued for disposal.
func (r *RecycleStage) Depth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Run drains the queue in batches of at most batchSize, calling dispose for
// each connection, until stop is closed while it waits, or until Close has
// been called and the queue is empty.
func (r *RecycleStage) Run(stop <-chan struct{}, batchSize int) {
	for {
		r.mu.Lock()
		for len(r.pending) == 0 && !r.closed {
			ch := r.notify
			r.mu.Unlock()
			select {
			case <-ch:
			case <-stop:
				return
			}
			r.mu.Lock()
		}
		if r.closed && len(r.pending) == 0 {
			r.mu.Unlock()
			return
		}

		n := batchSize
		if n <= 0 || n > len(r.pending) {
			n = len(r.pending)
		}
		batch := r.pending[:n]
		r.pending = r.pending[n:]
		r.mu.Unlock()

		for _, conn := range batch {
			r.disposeOne(conn)
		}
	}
}

// disposeOne calls dispose for conn, recovering a panic so one bad
// connection can't take down the single disposal thread.
func (r *RecycleStage) disposeOne(conn *libcon.Connection) {
	defer func() {
		libr.RecoveryCaller(fmt.Sprintf("recycle %s dispose fd=%d", r.name, conn.FD()), recover())
	}()
	if r.dispose != nil {
		r.dispose(conn)
	}
}

// Close marks the stage closed; Run drains any remaining batch then returns.
func (r *RecycleStage) Close() {
	r.mu.Lock()
	r.closed = true
	close(r.notify)
	r.notify = make(chan struct{})
	r.mu.Unlock()
}
