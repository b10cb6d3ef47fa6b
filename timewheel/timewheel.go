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

// Package timewheel implements the coarse-grained (bucket, context) expiry
// map co-located with each Poller: the idle-eviction clock for PollInStage
// and PollOutStage. Every method serializes on an internal mutex, so
// registration from outside the owning Poller's goroutine is safe.
package timewheel

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Unit is a wheel bucket index: floor(unix_seconds / granularity).
type Unit int64

// DefaultGranularity matches the original's 2-second coarse clock.
const DefaultGranularity = 2 * time.Second

// Callback fires when its bucket's time arrives. Returning true removes the
// entry; returning false leaves it in place for a later scan (used when a
// connection is currently owned by a worker and should not be evicted yet).
type Callback func(ctx interface{}) bool

// Key identifies one wheel entry by its (Bucket, Ctx) pair. ProcessCallbacks
// visits buckets in ascending order; entries that share one bucket are
// visited in no defined order.
type Key struct {
	Bucket Unit
	Ctx    interface{}
}

// TimeWheel is a (bucket, ctx) -> Callback map scanned in ascending bucket
// order. All methods take guard, so it may be used from several goroutines.
type TimeWheel struct {
	granularity time.Duration
	buckets     map[Unit]map[interface{}]Callback
	last        Unit

	// guard is taken by every method; ProcessCallbacks releases it while a
	// callback runs.
	guard sync.Mutex
}

// New returns an empty TimeWheel with the given granularity (DefaultGranularity
// if granularity <= 0).
func New(granularity time.Duration) *TimeWheel {
	if granularity <= 0 {
		granularity = DefaultGranularity
	}
	return &TimeWheel{
		granularity: granularity,
		buckets:     make(map[Unit]map[interface{}]Callback),
	}
}

// BucketFor maps a wall-clock time to its wheel bucket.
func (t *TimeWheel) BucketFor(at time.Time) Unit {
	return Unit(at.Unix() / int64(t.granularity/time.Second))
}

// Now is BucketFor(time.Now()).
func (t *TimeWheel) Now() Unit {
	return t.BucketFor(time.Now())
}

// Set installs cb at (bucket, ctx). It fails if an entry already exists for
// that exact key, matching the original's set/replace split.
func (t *TimeWheel) Set(bucket Unit, ctx interface{}, cb Callback) error {
	t.guard.Lock()
	defer t.guard.Unlock()

	m, ok := t.buckets[bucket]
	if !ok {
		m = make(map[interface{}]Callback)
		t.buckets[bucket] = m
	}
	if _, exists := m[ctx]; exists {
		return fmt.Errorf("timewheel: entry already exists for bucket %d", bucket)
	}
	m[ctx] = cb
	return nil
}

// Replace installs cb at (bucket, ctx), overwriting any existing entry.
func (t *TimeWheel) Replace(bucket Unit, ctx interface{}, cb Callback) {
	t.guard.Lock()
	defer t.guard.Unlock()

	m, ok := t.buckets[bucket]
	if !ok {
		m = make(map[interface{}]Callback)
		t.buckets[bucket] = m
	}
	m[ctx] = cb
}

// Remove deletes the (bucket, ctx) entry if present, reporting whether it
// existed.
func (t *TimeWheel) Remove(bucket Unit, ctx interface{}) bool {
	t.guard.Lock()
	defer t.guard.Unlock()

	m, ok := t.buckets[bucket]
	if !ok {
		return false
	}
	if _, exists := m[ctx]; !exists {
		return false
	}
	delete(m, ctx)
	if len(m) == 0 {
		delete(t.buckets, bucket)
	}
	return true
}

// Query reports whether an entry exists at (bucket, ctx) and returns it.
func (t *TimeWheel) Query(bucket Unit, ctx interface{}) (Callback, bool) {
	t.guard.Lock()
	defer t.guard.Unlock()

	m, ok := t.buckets[bucket]
	if !ok {
		return nil, false
	}
	cb, ok := m[ctx]
	return cb, ok
}

// ProcessCallbacks scans entries in ascending bucket order while bucket <=
// now, invoking each callback; a callback returning true is removed, false
// leaves it for the next scan. This resolves the original's ambiguous
// "< now" vs "> now" iteration bound (§9): the intended range is all
// buckets <= now.
func (t *TimeWheel) ProcessCallbacks(now Unit) {
	t.guard.Lock()
	keys := make([]Unit, 0, len(t.buckets))
	for b := range t.buckets {
		if b <= now {
			keys = append(keys, b)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	t.guard.Unlock()

	for _, b := range keys {
		t.guard.Lock()
		m := t.buckets[b]
		if m == nil {
			t.guard.Unlock()
			continue
		}
		ctxs := make([]interface{}, 0, len(m))
		for ctx := range m {
			ctxs = append(ctxs, ctx)
		}
		t.guard.Unlock()

		for _, ctx := range ctxs {
			t.guard.Lock()
			cb, ok := t.buckets[b][ctx]
			t.guard.Unlock()
			if !ok {
				continue
			}
			if cb(ctx) {
				t.Remove(b, ctx)
			}
		}
	}
}

// LastExecutedTime returns the bucket the most recent scan advanced to.
func (t *TimeWheel) LastExecutedTime() Unit {
	t.guard.Lock()
	defer t.guard.Unlock()
	return t.last
}

// SetLastExecutedTime records the bucket the caller's scan advanced to.
func (t *TimeWheel) SetLastExecutedTime(u Unit) {
	t.guard.Lock()
	defer t.guard.Unlock()
	t.last = u
}

// Len reports the number of distinct (bucket, ctx) entries, for tests.
func (t *TimeWheel) Len() int {
	t.guard.Lock()
	defer t.guard.Unlock()
	n := 0
	for _, m := range t.buckets {
		n += len(m)
	}
	return n
}
