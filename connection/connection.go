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

// Package connection holds the per-socket state a Stage consumes: streams,
// peer address, flags, idle timestamp, lock and continuation slot (§3, §4.4).
package connection

import (
	"net"
	"sync"
	"sync/atomic"

	libbuf "github.com/nabbar/tube/buffer"
	libntw "github.com/nabbar/tube/network"
	libtw "github.com/nabbar/tube/timewheel"
)

// Flag is a bit in a Connection's packed flag set.
type Flag uint32

const (
	FlagCork Flag = 1 << iota
	FlagActive
	FlagCloseAfterFinish
	FlagUrgent
	// FlagPollDisabled marks a connection a handler has temporarily taken
	// off read dispatch (disable_poll/enable_poll, §4.13); the owning
	// poller keeps the fd registered and the idle timer running, it only
	// skips forwarding Read events while the flag is set.
	FlagPollDisabled
)

// Connection represents one client session: exactly one worker holds its
// lock between pick_task and release (§3 invariant 2).
type Connection struct {
	fd     int
	peer   net.Addr
	family libntw.Family
	owner  string

	in  *libbuf.InputStream
	out *libbuf.OutputStream

	flags   atomic.Uint32
	idle    atomic.Int64 // timewheel.Unit, last_active bucket
	pollKey atomic.Int64 // timewheel.Unit currently installed by the owning poll stage, 0 if none

	mu           sync.Mutex
	lockedBy     string
	continuation interface{}

	socket net.Conn
}

// Option configures a new Connection at construction.
type Option func(*Connection)

// WithOwner sets the debug owner identifier (e.g. pipeline/stage name).
func WithOwner(owner string) Option {
	return func(c *Connection) { c.owner = owner }
}

// WithPageSize sets the input stream's page size (DefaultPageSize if unset).
func WithPageSize(n int) Option {
	return func(c *Connection) { c.in = libbuf.NewInputStream(n) }
}

// New wraps an accepted file descriptor and its peer address.
func New(fd int, peer net.Addr, opts ...Option) *Connection {
	c := &Connection{
		fd:   fd,
		peer: peer,
		out:  libbuf.NewOutputStream(),
	}
	c.family = libntw.FamilyOf(peer)
	c.flags.Store(uint32(FlagActive | FlagCork))
	for _, o := range opts {
		o(c)
	}
	if c.in == nil {
		c.in = libbuf.NewInputStream(libbuf.DefaultPageSize)
	}
	return c
}

// FD returns the underlying file descriptor.
func (c *Connection) FD() int { return c.fd }

// Peer returns the accepted remote address.
func (c *Connection) Peer() net.Addr { return c.peer }

// Family returns the address family of Peer (§3 supplement).
func (c *Connection) Family() libntw.Family { return c.family }

// Owner is a debug accessor naming the subsystem that currently administers
// this connection (§3 supplement).
func (c *Connection) Owner() string { return c.owner }

// SetOwner updates the debug owner, called by a stage as it takes custody.
func (c *Connection) SetOwner(owner string) { c.owner = owner }

// Input is this connection's inbound byte stream.
func (c *Connection) Input() *libbuf.InputStream { return c.in }

// Output is this connection's outbound write queue.
func (c *Connection) Output() *libbuf.OutputStream { return c.out }

// HasFlag reports whether f is set.
func (c *Connection) HasFlag(f Flag) bool {
	return Flag(c.flags.Load())&f != 0
}

// SetFlag sets f.
func (c *Connection) SetFlag(f Flag) {
	for {
		old := c.flags.Load()
		if Flag(old)&f == f {
			return
		}
		if c.flags.CompareAndSwap(old, old|uint32(f)) {
			return
		}
	}
}

// ClearFlag clears f.
func (c *Connection) ClearFlag(f Flag) {
	for {
		old := c.flags.Load()
		if Flag(old)&f == 0 {
			return
		}
		if c.flags.CompareAndSwap(old, old&^uint32(f)) {
			return
		}
	}
}

// SetCork and ClearCork toggle OS-level send-side batching; the syscall is
// issued by socket-layer helpers (no-op on platforms/fds that don't support
// TCP_CORK), this method only maintains the logical flag.
func (c *Connection) SetCork()   { c.SetFlag(FlagCork) }
func (c *Connection) ClearCork() { c.ClearFlag(FlagCork) }

// IdleBucket returns the time-wheel bucket this connection was last marked
// active at.
func (c *Connection) IdleBucket() libtw.Unit {
	return libtw.Unit(c.idle.Load())
}

// UpdateLastActive stamps the current bucket, returning true iff it moved
// (the caller uses this to decide whether the time-wheel entry needs to be
// re-keyed, §3 invariant 3).
func (c *Connection) UpdateLastActive(now libtw.Unit) bool {
	old := c.idle.Swap(int64(now))
	return libtw.Unit(old) != now
}

// PollKey returns the time-wheel bucket currently installed for this
// connection by its owning poll stage, 0 if none installed.
func (c *Connection) PollKey() libtw.Unit { return libtw.Unit(c.pollKey.Load()) }

// SetPollKey records the time-wheel bucket the owning poll stage installed,
// so it can later be removed when the key is refreshed or the connection
// leaves the stage.
func (c *Connection) SetPollKey(u libtw.Unit) { c.pollKey.Store(int64(u)) }

// TryLock attempts to acquire the connection's exclusive lock without
// blocking, recording owner for debug purposes on success.
func (c *Connection) TryLock(owner string) bool {
	if !c.mu.TryLock() {
		return false
	}
	c.lockedBy = owner
	return true
}

// Lock blocks until the connection's exclusive lock is acquired.
func (c *Connection) Lock(owner string) {
	c.mu.Lock()
	c.lockedBy = owner
}

// Unlock releases the connection's exclusive lock.
func (c *Connection) Unlock() {
	c.lockedBy = ""
	c.mu.Unlock()
}

// LockedBy reports the debug owner of the current lock holder, empty if
// unlocked (best-effort, for diagnostics only).
func (c *Connection) LockedBy() string { return c.lockedBy }

// Continuation returns the opaque continuation slot, nil if none pending.
func (c *Connection) Continuation() interface{} { return c.continuation }

// SetContinuation installs a continuation. Only one continuation may be in
// flight per connection (§3).
func (c *Connection) SetContinuation(v interface{}) { c.continuation = v }

// ClearContinuation reclaims and clears the continuation slot.
func (c *Connection) ClearContinuation() interface{} {
	v := c.continuation
	c.continuation = nil
	return v
}
