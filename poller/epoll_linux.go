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

package poller

import (
	"fmt"
	"sync"
	"time"

	libtw "github.com/nabbar/tube/timewheel"
	"golang.org/x/sys/unix"
)

// epollPoller is the Linux readiness backend, grounded on the epoll_wait
// reactor loop pattern (level-triggered, EPOLLIN|EPOLLOUT|EPOLLRDHUP|EPOLLERR).
type epollPoller struct {
	base
	epfd int

	regMu sync.Mutex
	ctx   map[int]interface{}
}

func newPlatformPoller(granularity time.Duration) (Poller, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("poller: epoll_create1: %w", err)
	}
	p := &epollPoller{epfd: fd, ctx: make(map[int]interface{})}
	p.init(libtw.New(granularity))
	return p, nil
}

func eventsFor(mask Event) uint32 {
	var e uint32 = unix.EPOLLRDHUP | unix.EPOLLERR
	if mask&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if mask&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func (p *epollPoller) AddFD(fd int, ctx interface{}, mask Event) error {
	p.regMu.Lock()
	p.ctx[fd] = ctx
	p.regMu.Unlock()

	ev := unix.EpollEvent{Events: eventsFor(mask), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) ChangeFD(fd int, mask Event) error {
	ev := unix.EpollEvent{Events: eventsFor(mask), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) RemoveFD(fd int) error {
	p.regMu.Lock()
	delete(p.ctx, fd)
	p.regMu.Unlock()

	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (p *epollPoller) HandleEvents(timeout time.Duration) error {
	events := make([]unix.EpollEvent, 256)
	msec := int(timeout / time.Millisecond)
	if msec <= 0 {
		msec = 1
	}

	for !p.stopped() {
		n, err := unix.EpollWait(p.epfd, events, msec)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("poller: epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			p.regMu.Lock()
			ctx, ok := p.ctx[fd]
			p.regMu.Unlock()
			if !ok {
				continue
			}

			var ev Event
			m := events[i].Events
			if m&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
				ev |= EventHup
			}
			if m&unix.EPOLLERR != 0 {
				ev |= EventError
			}
			if m&unix.EPOLLIN != 0 {
				ev |= EventRead
			}
			if m&unix.EPOLLOUT != 0 {
				ev |= EventWrite
			}
			if ev != 0 {
				p.dispatch(fd, ctx, ev)
			}
		}

		p.runPost()
	}
	return nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
