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

// Package poller is the unified readiness interface over the OS I/O
// multiplexer (epoll on Linux, a portable unix.Poll-based backend
// elsewhere), each instance owning one embedded time wheel (§4.3).
package poller

import (
	"time"

	libtw "github.com/nabbar/tube/timewheel"
)

// Event is the readiness mask reported for a watched file descriptor.
type Event uint8

const (
	EventRead Event = 1 << iota
	EventWrite
	EventError
	EventHup
)

// Handler is invoked once per ready fd with its registered context and the
// event mask observed.
type Handler func(fd int, ctx interface{}, ev Event)

// Poller owns a set of watched (fd -> ctx) registrations, a per-iteration
// pre/post hook, an event handler, and an embedded time wheel.
type Poller interface {
	// AddFD registers fd for the given event mask, associating ctx (almost
	// always a *connection.Connection) with readiness callbacks.
	AddFD(fd int, ctx interface{}, mask Event) error
	// ChangeFD updates the event mask for an already-registered fd.
	ChangeFD(fd int, mask Event) error
	// RemoveFD deregisters fd. Safe to call more than once.
	RemoveFD(fd int) error

	// HandleEvents runs until Stop is called or a fatal I/O error occurs,
	// waking at least every timeout to drive the time wheel even when no
	// fd is ready.
	HandleEvents(timeout time.Duration) error
	// Stop asks a running HandleEvents loop to return at the next wake.
	Stop()

	// TimeWheel is this poller's embedded idle-eviction clock.
	TimeWheel() *libtw.TimeWheel

	// AddExpired appends ctx to this poller's expired list: a connection
	// whose idle timer fired and was successfully locked, pending a
	// bounded-batch drain in post-handle (§4.7).
	AddExpired(ctx interface{})
	// DrainExpired removes up to max entries from the expired list.
	DrainExpired(max int) []interface{}

	// SetHandler installs the per-event callback.
	SetHandler(h Handler)
	// SetPostHandler installs a hook run once per wake after all ready fds
	// have been dispatched (time-wheel scan, expired-list drain).
	SetPostHandler(h func())

	Close() error
}

// New returns the default backend for the current platform (epoll on
// Linux, a portable unix.Poll loop elsewhere).
func New(granularity time.Duration) (Poller, error) {
	return newPlatformPoller(granularity)
}
