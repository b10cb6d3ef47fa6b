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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	libcon "github.com/nabbar/tube/connection"
	liblog "github.com/nabbar/tube/logger"
	libpoll "github.com/nabbar/tube/poller"
	libr "github.com/nabbar/tube/runner"
	libtw "github.com/nabbar/tube/timewheel"
)

// PollInStage specialises Stage with a vector of Pollers (round-robin
// assignment on SchedAdd) instead of an external scheduler (§4.7).
type PollInStage struct {
	name        string
	pollers     []libpoll.Poller
	rr          atomic.Uint64
	idleBuckets libtw.Unit
	pageSize    int
	batch       int
	log         liblog.FuncLog

	onDrained func(conn *libcon.Connection) // forward to ParserStage
	onExpired func(conn *libcon.Connection) // forward to RecycleStage

	mu       sync.Mutex
	lastScan map[int]time.Time
	wg       sync.WaitGroup
}

// NewPollInStage constructs a PollInStage with nPollers backend pollers.
// idleTimeout / granularity follow §4.2's bucket = unix_seconds/granularity
// convention; onDrained receives a connection whose input was drained
// cleanly, onExpired one whose idle timer or Hup/Error fired.
func NewPollInStage(name string, nPollers int, idleTimeout, granularity time.Duration, pageSize int, onDrained, onExpired func(*libcon.Connection), log liblog.FuncLog) (*PollInStage, error) {
	if nPollers <= 0 {
		nPollers = 1
	}
	s := &PollInStage{
		name:        name,
		idleBuckets: libtw.Unit(idleTimeout / granularity),
		pageSize:    pageSize,
		batch:       100,
		log:         log,
		onDrained:   onDrained,
		onExpired:   onExpired,
		lastScan:    make(map[int]time.Time),
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

// Start runs every backend poller's event loop under ctx until Stop.
func (s *PollInStage) Start(ctx context.Context, pollTimeout time.Duration) {
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
func (s *PollInStage) Stop() {
	for _, p := range s.pollers {
		p.Stop()
	}
	s.wg.Wait()
	for _, p := range s.pollers {
		_ = p.Close()
	}
}

// SchedAdd registers conn for Read/Hup/Error readiness on a round-robin
// chosen poller and installs its idle-eviction timer.
func (s *PollInStage) SchedAdd(conn *libcon.Connection) error {
	idx := int(s.rr.Add(1)-1) % len(s.pollers)
	p := s.pollers[idx]

	conn.SetOwner(s.name)
	now := p.TimeWheel().Now()
	conn.UpdateLastActive(now)
	key := now + s.idleBuckets
	p.TimeWheel().Replace(key, conn, s.idleCallback(p))
	conn.SetPollKey(key)

	return p.AddFD(conn.FD(), conn, libpoll.EventRead)
}

func (s *PollInStage) idleCallback(p libpoll.Poller) libtw.Callback {
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

func (s *PollInStage) onEvent(p libpoll.Poller, idx int, conn *libcon.Connection, ev libpoll.Event) {
	if ev&(libpoll.EventHup|libpoll.EventError) != 0 {
		if conn.TryLock(s.name) {
			conn.ClearFlag(libcon.FlagActive)
			_ = conn.Close()
			_ = p.RemoveFD(conn.FD())
			p.TimeWheel().Remove(conn.PollKey(), conn)
			conn.Unlock()
			if s.onExpired != nil {
				s.onExpired(conn)
			}
		}
		return
	}

	if ev&libpoll.EventRead == 0 {
		return
	}

	if conn.HasFlag(libcon.FlagPollDisabled) {
		// a handler suspended read dispatch for this connection
		// (continuation.Response.DisablePoll); leave it registered and let
		// its idle timer keep running.
		return
	}

	if !conn.TryLock(s.name) {
		// contended: another reader will observe the next edge.
		return
	}

	now := p.TimeWheel().Now()
	if conn.UpdateLastActive(now) {
		p.TimeWheel().Remove(conn.PollKey(), conn)
		key := now + s.idleBuckets
		p.TimeWheel().Replace(key, conn, s.idleCallback(p))
		conn.SetPollKey(key)
	}

	_, _, err := conn.Input().Buffer().ReadUntilBlock(conn.FD())
	conn.Unlock()

	if err != nil {
		_ = p.RemoveFD(conn.FD())
		p.TimeWheel().Remove(conn.PollKey(), conn)
		if s.onExpired != nil {
			s.onExpired(conn)
		}
		return
	}

	if s.onDrained != nil {
		s.onDrained(conn)
	}
}

// postHandle runs the time-wheel scan at most once per window and drains
// the expired list in bounded batches (§4.7).
func (s *PollInStage) postHandle(p libpoll.Poller, idx int, window time.Duration) {
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
