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

// Package monitor runs the pipeline's diagnostic HTTP surface (§4.17): a
// second, internal gin router — entirely separate from the HTTP/1.1
// request-serving surface, which stays out of scope — exposing /metrics
// for prometheus.Registry and /healthz as an aggregate status.Status
// document, polled from every registered component on an interval.
package monitor

import (
	"context"
	"net/http"
	"sync"
	"time"

	libtck "github.com/nabbar/tube/runner/ticker"
	libsts "github.com/nabbar/tube/status"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor polls registered components and serves /metrics + /healthz on
// its own listener, independent of the request-serving Server (§1, §4.17).
type Monitor struct {
	addr     string
	registry *prometheus.Registry
	ticker   libtck.Ticker
	srv      *http.Server

	mu         sync.RWMutex
	components map[string]libsts.Func
	last       map[string]libsts.Status
}

// New returns a Monitor bound to addr (e.g. "127.0.0.1:9090"), polling
// registered components every interval and serving registry's collectors
// under /metrics.
func New(addr string, interval time.Duration, registry *prometheus.Registry) *Monitor {
	m := &Monitor{
		addr:       addr,
		registry:   registry,
		components: make(map[string]libsts.Func),
		last:       make(map[string]libsts.Status),
	}
	m.ticker = libtck.New(interval, func(ctx context.Context, _ *time.Ticker) error {
		m.poll()
		return nil
	})
	return m
}

// Register adds a component to the set polled on every tick. name must be
// unique; a later call with the same name replaces the earlier one.
func (m *Monitor) Register(name string, fn libsts.Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[name] = fn
}

func (m *Monitor) poll() {
	m.mu.RLock()
	fns := make(map[string]libsts.Func, len(m.components))
	for k, v := range m.components {
		fns[k] = v
	}
	m.mu.RUnlock()

	results := make(map[string]libsts.Status, len(fns))
	for name, fn := range fns {
		if fn == nil {
			continue
		}
		results[name] = fn()
	}

	m.mu.Lock()
	m.last = results
	m.mu.Unlock()
}

// Snapshot returns the most recently polled status of every registered
// component.
func (m *Monitor) Snapshot() map[string]libsts.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]libsts.Status, len(m.last))
	for k, v := range m.last {
		out[k] = v
	}
	return out
}

func (m *Monitor) healthz(c *gin.Context) {
	snap := m.Snapshot()
	code := http.StatusOK
	for _, s := range snap {
		if !s.IsHealthy() {
			code = http.StatusServiceUnavailable
			break
		}
	}
	c.JSON(code, gin.H{"components": snap})
}

func (m *Monitor) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", m.healthz)
	if m.registry != nil {
		h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
		r.GET("/metrics", gin.WrapH(h))
	}
	return r
}

// Start begins polling components and serving HTTP until ctx is
// cancelled, at which point both the poll ticker and the listener are
// shut down.
func (m *Monitor) Start(ctx context.Context) error {
	if err := m.ticker.Start(ctx); err != nil {
		return err
	}

	m.srv = &http.Server{Addr: m.addr, Handler: m.router()}

	errCh := make(chan error, 1)
	go func() {
		if err := m.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.srv.Shutdown(shutdownCtx)
		_ = m.ticker.Stop(context.Background())
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}
