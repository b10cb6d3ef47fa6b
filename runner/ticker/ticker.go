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

// Package ticker wraps startStop around a time.Ticker, the primitive the
// time wheel's sweep goroutine and the adaptive controller's sampling loop
// are built on.
package ticker

import (
	"context"
	"time"

	"github.com/nabbar/tube/runner"
	librun "github.com/nabbar/tube/runner/startStop"
)

// MinDuration is the floor applied to the requested tick interval.
const MinDuration = time.Millisecond

// TickFunc runs once per tick. Returning an error does not stop the ticker;
// it is only recorded via the embedded StartStop's error tracking.
type TickFunc func(ctx context.Context, tck *time.Ticker) error

// Ticker is a StartStop specialized to fire a TickFunc on a fixed interval,
// with a Restart convenience that stops then starts in one call.
type Ticker interface {
	librun.StartStop

	Restart(ctx context.Context) error
}

type ticker struct {
	librun.StartStop
}

// New builds a Ticker. d is floored at MinDuration; fn may be nil, in which
// case each tick is a no-op.
func New(d time.Duration, fn TickFunc) Ticker {
	if d < MinDuration {
		d = MinDuration
	}

	run := func(ctx context.Context) error {
		defer func() {
			runner.RecoveryCaller("runner/ticker/run", recover())
		}()

		tck := time.NewTicker(d)
		defer tck.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tck.C:
				if fn != nil {
					_ = fn(ctx, tck)
				}
			}
		}
	}

	closeRun := func(ctx context.Context) error { return nil }

	return &ticker{StartStop: librun.New(run, closeRun)}
}

func (t *ticker) Restart(ctx context.Context) error {
	_ = t.Stop(ctx)
	return t.Start(ctx)
}
