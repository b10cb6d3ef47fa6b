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

//go:build !linux

package poller

import (
	"fmt"
	"sync"
	"time"

	libtw "github.com/nabbar/tube/timewheel"
	"golang.org/x/sys/unix"
)

// pollPoller is the portable readiness backend for non-Linux platforms,
// built on unix.Poll. It trades epoll's O(1) re-arm for O(watched fds) per
// wake, acceptable outside the primary Linux deployment target; a kqueue
// backend would recover that cost on BSD/Darwin but is not implemented here
// (see DESIGN.md).
type pollPoller struct {
	base

	mu   sync.Mutex
	fds  map[int]interface{}
	mask map[int]Event
}

func newPlatformPoller(granularity time.Duration) (Poller, error) {
	p := &pollPoller{fds: make(map[int]interface{}), mask: make(map[int]Event)}
	p.init(libtw.New(granularity))
	return p, nil
}

func (p *pollPoller) AddFD(fd int, ctx interface{}, mask Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fds[fd] = ctx
	p.mask[fd] = mask
	return nil
}

func (p *pollPoller) ChangeFD(fd int, mask Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.fds[fd]; !ok {
		return fmt.Errorf("poller: fd %d not registered", fd)
	}
	p.mask[fd] = mask
	return nil
}

func (p *pollPoller) RemoveFD(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.fds, fd)
	delete(p.mask, fd)
	return nil
}

func (p *pollPoller) HandleEvents(timeout time.Duration) error {
	msec := int(timeout / time.Millisecond)
	if msec <= 0 {
		msec = 1
	}

	for !p.stopped() {
		p.mu.Lock()
		fds := make([]unix.PollFd, 0, len(p.fds))
		ctxs := make(map[int]interface{}, len(p.fds))
		for fd, m := range p.mask {
			var ev int16
			if m&EventRead != 0 {
				ev |= unix.POLLIN
			}
			if m&EventWrite != 0 {
				ev |= unix.POLLOUT
			}
			fds = append(fds, unix.PollFd{Fd: int32(fd), Events: ev})
			ctxs[fd] = p.fds[fd]
		}
		p.mu.Unlock()

		n, err := unix.Poll(fds, msec)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("poller: poll: %w", err)
		}

		if n > 0 {
			for _, pfd := range fds {
				if pfd.Revents == 0 {
					continue
				}
				ctx, ok := ctxs[int(pfd.Fd)]
				if !ok {
					continue
				}
				var ev Event
				if pfd.Revents&unix.POLLHUP != 0 {
					ev |= EventHup
				}
				if pfd.Revents&unix.POLLERR != 0 {
					ev |= EventError
				}
				if pfd.Revents&unix.POLLIN != 0 {
					ev |= EventRead
				}
				if pfd.Revents&unix.POLLOUT != 0 {
					ev |= EventWrite
				}
				if ev != 0 {
					p.dispatch(int(pfd.Fd), ctx, ev)
				}
			}
		}

		p.runPost()
	}
	return nil
}

func (p *pollPoller) Close() error {
	return nil
}
