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
	"sync"
	"sync/atomic"

	libtw "github.com/nabbar/tube/timewheel"
)

// base holds the state common to every backend: the embedded time wheel,
// the expired-connections list, and the installed handlers. Backends embed
// it and only implement AddFD/ChangeFD/RemoveFD/HandleEvents/Stop/Close.
type base struct {
	tw *libtw.TimeWheel

	mu       sync.Mutex
	expired  []interface{}
	handler  Handler
	post     func()
	stopping atomic.Bool
}

func (b *base) init(tw *libtw.TimeWheel) {
	b.tw = tw
}

func (b *base) TimeWheel() *libtw.TimeWheel { return b.tw }

func (b *base) SetHandler(h Handler) {
	b.mu.Lock()
	b.handler = h
	b.mu.Unlock()
}

func (b *base) SetPostHandler(h func()) {
	b.mu.Lock()
	b.post = h
	b.mu.Unlock()
}

func (b *base) dispatch(fd int, ctx interface{}, ev Event) {
	b.mu.Lock()
	h := b.handler
	b.mu.Unlock()
	if h != nil {
		h(fd, ctx, ev)
	}
}

func (b *base) runPost() {
	b.mu.Lock()
	p := b.post
	b.mu.Unlock()
	if p != nil {
		p()
	}
}

func (b *base) AddExpired(ctx interface{}) {
	b.mu.Lock()
	b.expired = append(b.expired, ctx)
	b.mu.Unlock()
}

func (b *base) DrainExpired(max int) []interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if max <= 0 || max > len(b.expired) {
		max = len(b.expired)
	}
	out := b.expired[:max]
	b.expired = b.expired[max:]
	return out
}

func (b *base) Stop() {
	b.stopping.Store(true)
}

func (b *base) stopped() bool {
	return b.stopping.Load()
}
