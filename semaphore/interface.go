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

// Package semaphore composes sem (worker limiting) with bar/nobar (optional
// mpb progress rendering) into the single SemPgb surface used throughout the
// module: the stage worker pools bound concurrency with it, and the CLI's
// --progress flag drives its bar methods to show live queue depth.
package semaphore

import (
	"context"

	"github.com/vbauerster/mpb/v8"

	libbar "github.com/nabbar/tube/semaphore/bar"
	libnobar "github.com/nabbar/tube/semaphore/nobar"
	libsem "github.com/nabbar/tube/semaphore/sem"
	libtps "github.com/nabbar/tube/semaphore/types"
)

// Semaphore is the public alias for the composed Sem+Bar surface returned by
// New; most callers only need this name, not the types subpackage directly.
type Semaphore = libtps.SemPgb

// MaxSimultaneous returns the runtime's GOMAXPROCS.
func MaxSimultaneous() int {
	return libsem.MaxSimultaneous()
}

// SetSimultaneous clamps n into [1, MaxSimultaneous()].
func SetSimultaneous(n int64) int64 {
	return libsem.SetSimultaneous(n)
}

type sempgb struct {
	libtps.Sem

	pgb *mpb.Progress
}

// New builds a SemPgb. withProgress attaches an mpb.Progress container so
// that BarBytes/BarTime/BarNumber/BarOpts render live bars; without it those
// calls still return a working Bar, just one that renders nothing.
func New(ctx context.Context, nbrSimultaneous int, withProgress bool) libtps.SemPgb {
	s := &sempgb{Sem: libsem.New(ctx, nbrSimultaneous)}
	if withProgress {
		s.pgb = mpb.NewWithContext(ctx)
	}
	return s
}

func (s *sempgb) New() libtps.Sem {
	return &sempgb{Sem: s.Sem.New(), pgb: s.pgb}
}

func (s *sempgb) GetMPB() *mpb.Progress {
	return s.pgb
}

func (s *sempgb) BarBytes(name, unit string, total int64, drop bool, queueAfter libtps.Bar) libtps.Bar {
	if s.pgb == nil {
		return libnobar.New(s.Sem, 0, drop)
	}
	return libbar.NewBytes(s, name, unit, total, drop, queueAfter)
}

func (s *sempgb) BarTime(name, unit string, total int64, drop bool, queueAfter libtps.Bar) libtps.Bar {
	if s.pgb == nil {
		return libnobar.New(s.Sem, 0, drop)
	}
	return libbar.NewTime(s, name, unit, total, drop, queueAfter)
}

func (s *sempgb) BarNumber(name, unit string, total int64, drop bool, queueAfter libtps.Bar) libtps.Bar {
	if s.pgb == nil {
		return libnobar.New(s.Sem, 0, drop)
	}
	return libbar.NewNumber(s, name, unit, total, drop, queueAfter)
}

func (s *sempgb) BarOpts(total int64, drop bool) libtps.Bar {
	if s.pgb == nil {
		return libnobar.New(s.Sem, 0, drop)
	}
	return libbar.New(s, total, drop)
}
