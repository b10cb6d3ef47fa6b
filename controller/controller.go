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

// Package controller implements the adaptive worker-pool sizing loop that
// samples a Stage's queue depth on an interval and grows or retires
// auto-created workers (§4.12): a fixed-length load history, a trend test
// deciding growth, a cool-down after the last change, and a hard cap.
package controller

import (
	"context"
	"sync"
	"time"

	libpid "github.com/nabbar/tube/pidcontroller"
	libstg "github.com/nabbar/tube/stage"
	libtck "github.com/nabbar/tube/runner/ticker"
)

// historySize is the number of samples the trend test compares (half vs
// half), matching the original's 16-sample window.
const historySize = 16

// DefaultHardCap bounds how many workers one Controller will ever run,
// auto-created plus base.
const DefaultHardCap = 128

// DefaultCooldown is the number of ticks to wait after any change before
// considering another one.
const DefaultCooldown = 3

// Controller watches one Stage and grows/retires its auto-created workers.
type Controller struct {
	stage    *libstg.Stage
	interval time.Duration
	hardCap  int
	cooldown int

	smoothed bool
	pid      libpid.Controller

	mu          sync.Mutex
	history     []int64
	cooldownAt  int
	bestThroughput int64
	lastLoad    int64
}

// Option configures a Controller at construction.
type Option func(*Controller)

// WithHardCap overrides DefaultHardCap.
func WithHardCap(n int) Option {
	return func(c *Controller) { c.hardCap = n }
}

// WithCooldown overrides DefaultCooldown (ticks).
func WithCooldown(n int) Option {
	return func(c *Controller) { c.cooldown = n }
}

// WithSmoothedGrowth enables PID-smoothed target-worker-count ramps instead
// of the default one-worker-per-tick step (§4.19, disabled by default).
func WithSmoothedGrowth(pid libpid.Controller) Option {
	return func(c *Controller) {
		c.smoothed = true
		c.pid = pid
	}
}

// New returns a Controller sampling stage every interval.
func New(stage *libstg.Stage, interval time.Duration, opts ...Option) *Controller {
	c := &Controller{
		stage:    stage,
		interval: interval,
		hardCap:  DefaultHardCap,
		cooldown: DefaultCooldown,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run samples the stage on Controller's interval until ctx is cancelled,
// blocking until the sampling loop actually returns.
func (c *Controller) Run(ctx context.Context) {
	t := libtck.New(c.interval, func(tctx context.Context, _ *time.Ticker) error {
		c.tick(tctx)
		return nil
	})

	if err := t.Start(ctx); err != nil {
		return
	}

	<-ctx.Done()
	_ = t.Stop(context.Background())
}

func (c *Controller) tick(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	load := c.stage.Load() + int64(c.stage.Depth())
	c.history = append(c.history, load)
	if len(c.history) > historySize {
		c.history = c.history[len(c.history)-historySize:]
	}

	throughput := c.stage.Load()
	if throughput > c.bestThroughput {
		c.bestThroughput = throughput
	}
	c.lastLoad = load

	if c.cooldownAt > 0 {
		c.cooldownAt--
		return
	}

	if len(c.history) < historySize {
		return
	}

	if !c.trendingUp() {
		c.retireOne()
		return
	}

	c.growOne(ctx)
}

// trendingUp resolves the original's ambiguous trend test as: the younger
// half of the load history is not lower than the older half (§4.19, §9).
func (c *Controller) trendingUp() bool {
	half := len(c.history) / 2
	var sumOld, sumNew int64
	for i := 0; i < half; i++ {
		sumOld += c.history[i]
	}
	for i := half; i < len(c.history); i++ {
		sumNew += c.history[i]
	}
	return sumOld <= sumNew
}

func (c *Controller) growOne(ctx context.Context) {
	if c.stage.WorkerCount() >= c.hardCap {
		return
	}

	if c.smoothed && c.pid != nil {
		target := c.pid.Compute(float64(c.hardCap), float64(c.stage.WorkerCount()))
		want := int(target + 0.5)
		for c.stage.WorkerCount() < want && c.stage.WorkerCount() < c.hardCap {
			c.stage.AddWorker(ctx)
		}
	} else {
		c.stage.AddWorker(ctx)
	}

	c.cooldownAt = c.cooldown
}

func (c *Controller) retireOne() {
	ids := c.stage.AutoWorkerIDs()
	if len(ids) == 0 {
		return
	}
	c.stage.RemoveWorker(ids[0])
	c.cooldownAt = c.cooldown
}

// WorkerCount reports the stage's current total worker count, for metrics.
func (c *Controller) WorkerCount() int {
	return c.stage.WorkerCount()
}

// LoadHistoryMean reports the mean of the retained load samples, for
// metrics; 0 if no samples have been taken yet.
func (c *Controller) LoadHistoryMean() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.history) == 0 {
		return 0
	}
	var sum int64
	for _, v := range c.history {
		sum += v
	}
	return float64(sum) / float64(len(c.history))
}
