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

// Package sem implements the bound-free worker-limiting semaphore used by
// the stage worker pools: a weighted limiter for a fixed nbrSimultaneous, or
// an unlimited WaitGroup-backed limiter when nbrSimultaneous is negative.
package sem

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"

	libtps "github.com/nabbar/tube/semaphore/types"
)

// MaxSimultaneous returns the runtime's GOMAXPROCS, the default limit used
// when New is called with nbrSimultaneous == 0.
func MaxSimultaneous() int {
	return runtime.GOMAXPROCS(0)
}

// SetSimultaneous clamps n into [1, MaxSimultaneous()], substituting
// MaxSimultaneous() for any out-of-range value.
func SetSimultaneous(n int64) int64 {
	max := int64(MaxSimultaneous())
	if n < 1 || n > max {
		return max
	}
	return n
}

type sem struct {
	context.Context
	cancel context.CancelFunc

	weight int64

	// weighted path
	wgt *semaphore.Weighted

	// unlimited path
	grp *sync.WaitGroup
}

// New builds a Sem. nbrSimultaneous == 0 uses MaxSimultaneous(); negative
// values build an unlimited, WaitGroup-backed Sem reporting Weighted() == -1.
func New(ctx context.Context, nbrSimultaneous int) libtps.Sem {
	c, cnl := context.WithCancel(ctx)

	s := &sem{
		Context: c,
		cancel:  cnl,
	}

	switch {
	case nbrSimultaneous < 0:
		s.weight = -1
		s.grp = &sync.WaitGroup{}
	case nbrSimultaneous == 0:
		s.weight = int64(MaxSimultaneous())
		s.wgt = semaphore.NewWeighted(s.weight)
	default:
		s.weight = int64(nbrSimultaneous)
		s.wgt = semaphore.NewWeighted(s.weight)
	}

	return s
}

func (s *sem) New() libtps.Sem {
	return New(s.Context, int(s.weight))
}

func (s *sem) Weighted() int64 {
	return s.weight
}

func (s *sem) NewWorker() error {
	if s.grp != nil {
		s.grp.Add(1)
		return nil
	}
	return s.wgt.Acquire(s.Context, 1)
}

func (s *sem) NewWorkerTry() bool {
	if s.grp != nil {
		s.grp.Add(1)
		return true
	}
	return s.wgt.TryAcquire(1)
}

func (s *sem) DeferWorker() {
	if s.grp != nil {
		s.grp.Done()
		return
	}
	s.wgt.Release(1)
}

func (s *sem) DeferMain() {
	s.cancel()
}

func (s *sem) WaitAll() error {
	if s.grp != nil {
		s.grp.Wait()
		return nil
	}

	if err := s.wgt.Acquire(context.Background(), s.weight); err != nil {
		return err
	}
	s.wgt.Release(s.weight)
	return nil
}
