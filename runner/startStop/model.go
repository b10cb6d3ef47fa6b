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

package startStop

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type startStop struct {
	mu sync.Mutex

	run   RunFunc
	close CloseFunc

	cancel context.CancelFunc
	done   chan struct{}

	running atomic.Bool
	started atomic.Int64 // UnixNano of the current run's start, 0 when stopped

	errMu sync.Mutex
	errs  []error
}

func (s *startStop) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errMu.Lock()
	s.errs = nil
	s.errMu.Unlock()

	s.stopLocked(ctx)

	c, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started.Store(time.Now().UnixNano())
	s.running.Store(true)

	done := s.done

	go func() {
		defer close(done)
		defer s.running.Store(false)
		defer s.started.Store(0)

		if s.run == nil {
			s.recordError(fmt.Errorf("startStop: invalid start function"))
			return
		}

		s.recordError(s.run(c))
	}()

	return nil
}

func (s *startStop) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stopLocked(ctx)
}

// stopLocked is Stop's body, callable while s.mu is already held so Start
// can reuse it to tear down a previous run before launching a new one.
func (s *startStop) stopLocked(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done

	s.cancel = nil
	s.done = nil

	if s.close == nil {
		s.recordError(fmt.Errorf("startStop: invalid stop function"))
		return nil
	}

	s.recordError(s.close(ctx))
	return nil
}

func (s *startStop) IsRunning() bool {
	return s.running.Load()
}

func (s *startStop) Uptime() time.Duration {
	started := s.started.Load()
	if started == 0 {
		return 0
	}
	return time.Since(time.Unix(0, started))
}

func (s *startStop) recordError(err error) {
	if err == nil {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *startStop) ErrorsLast() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()

	if len(s.errs) == 0 {
		return nil
	}
	return s.errs[len(s.errs)-1]
}

func (s *startStop) ErrorsList() []error {
	s.errMu.Lock()
	defer s.errMu.Unlock()

	out := make([]error, len(s.errs))
	copy(out, s.errs)
	return out
}
