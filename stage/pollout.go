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
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	libbuf "github.com/nabbar/tube/buffer"
	libcon "github.com/nabbar/tube/connection"
	liblog "github.com/nabbar/tube/logger"
	libpoll "github.com/nabbar/tube/poller"
	libr "github.com/nabbar/tube/runner"
	libtw "github.com/nabbar/tube/timewheel"
)

// PollOutStage drives non-blocking writes of a connection's OutputStream,
// re-arming for write readiness on a short write and handing the connection
// off on drain (§4.8).
type PollOutStage struct {
	name        string
	pollers     []libpoll.Poller
	rr          atomic.Uint64
	idleBuckets libtw.Unit
	batch       int
	log         liblog.FuncLog

	// onDrained is called once the output queue empties with no pending
	// continuation: caller decides between re-arming for poll-in or closing
	// (FlagCloseAfterFinish).
	onDrained func(conn *libcon.Connection)
	// onContinuation is called with conn.ClearContinuation() already primed
	// for retrieval by the caller; used to hand off to e.g. FcgiCompletionStage.
	onContinuation func(conn *libcon.Connection)
	onExpired      func(conn *libcon.Connection)

	mu       sync.Mutex
	lastScan map[int]time.Time
	wg       sync.WaitGroup
}

// NewPollOutStage mirrors NewPollInStage's construction but registers
// connections for write readiness instead of read.
func NewPollOutStage(name string, nPollers int, idleTimeout, granularity time.Duration, onDrained, onContinuation, onExpired func(*libcon.Connection), log liblog.FuncLog) (*PollOutStage, error) {
	if nPollers <= 0 {
		nPollers = 1
	}
	s := &PollOutStage{
		name:           name,
		idleBuckets:    libtw.Unit(idleTimeout / granularity),
		batch:          100,
		log:            log,
		onDrained:      onDrained,
		onContinuation: onContinuation,
		onExpired:      onExpired,
		lastScan:       make(map[int]time.Time),
	}
	for i := 0; i < nPollers; i++ {
		p, err := libpoll.New(granularity)
		if err != nil {
			return nil, fmt.Errorf("stage %s: new poller: %w", name, err)
		}
		idx := i
		p.SetHandler(func(fd int, ctx interface{}, ev libpoll.Event) {
			s.onEvent(p, idx, ctx.(*libcon.Connection), ev)
		})
		p.SetPostHandler(func() { s.postHandle(p, idx, granularity) })
		s.pollers = append(s.pollers, p)
	}
	return s, nil
}

// Start runs every backend poller's loop under ctx until Stop.
func (s *PollOutStage) Start(ctx context.Context, pollTimeout time.Duration) {
	for idx, p := range s.pollers {
		p, idx := p, idx
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				libr.RecoveryCaller(fmt.Sprintf("stage %s poller %d", s.name, idx), recover())
			}()
			if err := p.HandleEvents(pollTimeout); err != nil && s.log != nil {
				if l := s.log(); l != nil {
					l.Error(fmt.Sprintf("[stage %s] poller loop: %%v", s.name), nil, err)
				}
			}
		}()
		go func() {
			<-ctx.Done()
			p.Stop()
		}()
	}
}

// Stop asks every backend poller to return and waits for the loops to exit.
func (s *PollOutStage) Stop() {
	for _, p := range s.pollers {
		p.Stop()
	}
	s.wg.Wait()
	for _, p := range s.pollers {
		_ = p.Close()
	}
}

// SchedAdd registers conn for write readiness, applies the connection's cork
// flag and installs its idle-eviction timer.
func (s *PollOutStage) SchedAdd(conn *libcon.Connection) error {
	idx := int(s.rr.Add(1)-1) % len(s.pollers)
	p := s.pollers[idx]

	conn.SetOwner(s.name)
	conn.ApplyCork()

	now := p.TimeWheel().Now()
	key := now + s.idleBuckets
	p.TimeWheel().Replace(key, conn, s.idleCallback(p))
	conn.SetPollKey(key)

	return p.AddFD(conn.FD(), conn, libpoll.EventWrite)
}

func (s *PollOutStage) idleCallback(p libpoll.Poller) libtw.Callback {
	return func(ctx interface{}) bool {
		conn := ctx.(*libcon.Connection)
		if !conn.TryLock(s.name) {
			return false
		}
		conn.ClearFlag(libcon.FlagActive)
		_ = conn.Close()
		_ = p.RemoveFD(conn.FD())
		p.AddExpired(conn)
		return true
	}
}

func (s *PollOutStage) removeTimer(p libpoll.Poller, conn *libcon.Connection) {
	if key := conn.PollKey(); key != 0 {
		p.TimeWheel().Remove(key, conn)
		conn.SetPollKey(0)
	}
}

func (s *PollOutStage) onEvent(p libpoll.Poller, idx int, conn *libcon.Connection, ev libpoll.Event) {
	if ev&(libpoll.EventHup|libpoll.EventError) != 0 {
		if conn.TryLock(s.name) {
			conn.ClearFlag(libcon.FlagActive)
			_ = conn.Close()
			_ = p.RemoveFD(conn.FD())
			s.removeTimer(p, conn)
			conn.Unlock()
			if s.onExpired != nil {
				s.onExpired(conn)
			}
		}
		return
	}

	if ev&libpoll.EventWrite == 0 {
		return
	}

	if !conn.TryLock(s.name) {
		return
	}

	w := libbuf.NewFDWriter(conn.FD())
	_, err := conn.Output().Flush(w)

	if err != nil && !errors.Is(err, libbuf.ErrWouldBlock) {
		_ = p.RemoveFD(conn.FD())
		s.removeTimer(p, conn)
		_ = conn.Close()
		conn.Unlock()
		if s.onExpired != nil {
			s.onExpired(conn)
		}
		return
	}

	if errors.Is(err, libbuf.ErrWouldBlock) || !conn.Output().IsDone() {
		// short write: remain registered for write readiness, leave the
		// idle timer running so a stalled peer still evicts eventually.
		conn.Unlock()
		return
	}

	// drained
	conn.ClearCork()
	conn.ApplyCork()
	_ = p.RemoveFD(conn.FD())
	s.removeTimer(p, conn)

	if cont := conn.ClearContinuation(); cont != nil {
		conn.SetContinuation(cont)
		conn.Unlock()
		if s.onContinuation != nil {
			s.onContinuation(conn)
		}
		return
	}

	conn.Unlock()
	if s.onDrained != nil {
		s.onDrained(conn)
	}
}

// postHandle mirrors PollInStage's bounded scan/drain.
func (s *PollOutStage) postHandle(p libpoll.Poller, idx int, window time.Duration) {
	s.mu.Lock()
	last, ok := s.lastScan[idx]
	due := !ok || time.Since(last) >= window
	if due {
		s.lastScan[idx] = time.Now()
	}
	s.mu.Unlock()

	if due {
		p.TimeWheel().ProcessCallbacks(p.TimeWheel().Now())
	}

	for _, ctx := range p.DrainExpired(s.batch) {
		conn := ctx.(*libcon.Connection)
		if s.onExpired != nil {
			s.onExpired(conn)
		}
	}
}
