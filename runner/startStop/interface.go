/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
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

// Package startStop provides a reusable start/stop/restart lifecycle around
// a long-running function, the primitive every background worker in the
// module (aggregators, pollers, stage pools, the server accept loop) is
// built on.
package startStop

import (
	"context"
	"time"
)

// RunFunc is launched by Start in its own goroutine. It must return when ctx
// is done; its return value is recorded as the last lifecycle error.
type RunFunc func(ctx context.Context) error

// CloseFunc runs synchronously from Stop, after RunFunc's context has been
// cancelled, to release resources RunFunc does not own itself.
type CloseFunc func(ctx context.Context) error

// StartStop manages one RunFunc/CloseFunc pair across repeated start/stop
// cycles, tracking whether it is currently running, how long it has been
// running, and the errors its last cycle produced.
type StartStop interface {
	// Start stops any previous run, resets the error list, then launches
	// run in a new goroutine bound to a context derived from ctx. Start
	// itself never blocks on run's completion; it returns once the
	// goroutine has been scheduled.
	Start(ctx context.Context) error

	// Stop cancels the running context, waits for run to return, then
	// invokes closeRun with ctx. Safe to call when not running.
	Stop(ctx context.Context) error

	// IsRunning reports whether run is currently executing.
	IsRunning() bool

	// Uptime reports how long the current run has been executing, zero
	// when not running.
	Uptime() time.Duration

	// ErrorsLast returns the most recent error recorded by the current
	// lifecycle, nil if none.
	ErrorsLast() error

	// ErrorsList returns every error recorded since the last Start call.
	ErrorsList() []error
}

// New builds a StartStop around run and closeRun. Either may be nil: Start
// records "invalid start function"/Stop records "invalid stop function"
// rather than panicking.
func New(run RunFunc, closeRun CloseFunc) StartStop {
	return &startStop{
		run:   run,
		close: closeRun,
	}
}
