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

// Package scheduler implements the FIFO-with-dedup task queue a Stage uses
// to order pending Connections (§3, §4.5): a doubly-linked list with a side
// fd-index guaranteeing set semantics, and two pick modes (lock-on-pick and
// lock-free).
package scheduler

import (
	"container/list"
	"context"
	"sync"

	"github.com/bits-and-blooms/bitset"

	libcon "github.com/nabbar/tube/connection"
)

// PickMode selects how pick_task claims a connection.
type PickMode int

const (
	// LockFreePick assumes the caller already owns the connection's lock
	// (e.g. a handoff from an upstream stage). Used by BlockOutStage.
	LockFreePick PickMode = iota
	// LockOnPick additionally calls TryLock during pick, skipping
	// contended candidates and retrying the next one.
	LockOnPick
)

// maxFastFD bounds the bitset fast-membership check; fds above this are
// only tracked in the index map (accept loops recycle low fds quickly, so
// this covers the overwhelming majority of sockets without unbounded
// memory for pathological high-fd workloads).
const maxFastFD = 1 << 16

// Scheduler is the per-stage FIFO-with-dedup connection queue.
type Scheduler struct {
	mode PickMode

	mu     sync.Mutex
	order  *list.List // of *libcon.Connection
	index  map[int]*list.Element
	fast   *bitset.BitSet // fast membership probe for low fds, advisory only
	notify chan struct{}  // closed and replaced whenever pickers should re-scan

	closed bool
}

// New returns an empty Scheduler using the given pick mode.
func New(mode PickMode) *Scheduler {
	return &Scheduler{
		mode:   mode,
		order:  list.New(),
		index:  make(map[int]*list.Element),
		fast:   bitset.New(maxFastFD),
		notify: make(chan struct{}),
	}
}

// wake closes the current notify channel (waking every blocked picker) and
// installs a fresh one. Must be called with mu held.
func (s *Scheduler) wake() {
	close(s.notify)
	s.notify = make(chan struct{})
}

// AddTask enqueues conn. If its fd is already present, the existing node
// moves to the front instead of duplicating (re-arrivals jump the queue:
// fresh data is waiting and minimising handler latency is the goal).
func (s *Scheduler) AddTask(conn *libcon.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fd := conn.FD()

	if el, ok := s.index[fd]; ok {
		s.order.MoveToFront(el)
		s.wake()
		return
	}

	el := s.order.PushBack(conn)
	s.index[fd] = el
	if fd >= 0 && fd < maxFastFD {
		s.fast.Set(uint(fd))
	}
	s.wake()
}

// PickTask removes and returns the next connection to process. In
// LockFreePick mode it blocks until non-empty and pops the head. In
// LockOnPick mode it scans from head calling TryLock on each, returning the
// first success; if none succeed it waits on Reschedule and retries.
// PickTask returns nil, false if ctx is cancelled or Close is called while
// waiting (used by the Controller to retire surplus workers).
func (s *Scheduler) PickTask(ctx context.Context, owner string) (*libcon.Connection, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, false
		}

		if s.mode == LockFreePick {
			if el := s.order.Front(); el != nil {
				s.popElement(el)
				conn := el.Value.(*libcon.Connection)
				s.mu.Unlock()
				return conn, true
			}
		} else {
			for el := s.order.Front(); el != nil; el = el.Next() {
				conn := el.Value.(*libcon.Connection)
				if conn.TryLock(owner) {
					s.popElement(el)
					s.mu.Unlock()
					return conn, true
				}
			}
		}

		ch := s.notify
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (s *Scheduler) popElement(el *list.Element) {
	conn := el.Value.(*libcon.Connection)
	fd := conn.FD()
	s.order.Remove(el)
	delete(s.index, fd)
	if fd >= 0 && fd < maxFastFD {
		s.fast.Clear(uint(fd))
	}
}

// RemoveTask removes conn from the queue if present, O(1) via the index.
func (s *Scheduler) RemoveTask(conn *libcon.Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.index[conn.FD()]
	if !ok {
		return false
	}
	s.popElement(el)
	return true
}

// Contains is an advisory, lock-free-ish membership probe (true positives
// only within the fast-fd range; callers needing certainty should rely on
// AddTask's own dedup instead of pre-checking).
func (s *Scheduler) Contains(fd int) bool {
	if fd < 0 || fd >= maxFastFD {
		return false
	}
	return s.fast.Test(uint(fd))
}

// Reschedule wakes any workers blocked in PickTask; called after any event
// that may unblock a try_lock retry (e.g. a connection lock was released).
func (s *Scheduler) Reschedule() {
	s.mu.Lock()
	s.wake()
	s.mu.Unlock()
}

// SizeNoLock is an advisory queue depth for the Controller; it does not
// acquire a precise consistent snapshot lock beyond the scheduler's own
// mutex (cheap enough for a 300ms sampling interval).
func (s *Scheduler) SizeNoLock() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// Close marks the scheduler closed and wakes every blocked PickTask caller,
// which then returns (nil, false).
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.wake()
	s.mu.Unlock()
}
