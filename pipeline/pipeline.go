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

// Package pipeline is the named-stage registry a Server accepts into and a
// Controller samples: it owns every Stage, the connection factory, the
// shared admission semaphore and the reschedule_all broadcast (§4.11).
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	libcon "github.com/nabbar/tube/connection"
	liblog "github.com/nabbar/tube/logger"
	libsem "github.com/nabbar/tube/semaphore"
	libstg "github.com/nabbar/tube/stage"
)

// ConnectionFactory builds and tears down the Connection wrapping an
// accepted socket; Server calls Create once per accept, RecycleStage calls
// Destroy once a connection finishes disposal.
type ConnectionFactory interface {
	Create(sock libcon.Socket) (*libcon.Connection, error)
	Destroy(conn *libcon.Connection)
}

// Pipeline wires the generic scheduler-backed stages (parser, handler,
// fcgi...) by name, plus the specialised poll/block-out/recycle stages that
// every Server instance uses directly.
type Pipeline struct {
	log liblog.FuncLog

	mu     sync.RWMutex
	stages map[string]*libstg.Stage

	pollIn   *libstg.PollInStage
	pollOut  *libstg.PollOutStage
	blockOut *libstg.Stage
	recycle  *libstg.RecycleStage

	factory   ConnectionFactory
	admission libsem.Semaphore
}

// New returns an empty Pipeline. admission, when non-nil, bounds the number
// of connections concurrently accepted (§4.18); factory is fixed at
// construction and cannot be replaced afterwards.
func New(factory ConnectionFactory, admission libsem.Semaphore, log liblog.FuncLog) *Pipeline {
	return &Pipeline{
		log:       log,
		stages:    make(map[string]*libstg.Stage),
		factory:   factory,
		admission: admission,
	}
}

// RegisterStage adds a generic scheduler-backed stage (parser, handler,
// fcgi completion...) to the named registry.
func (p *Pipeline) RegisterStage(s *libstg.Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stages[s.Name()] = s
}

// Stage looks up a previously registered generic stage by name.
func (p *Pipeline) Stage(name string) (*libstg.Stage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.stages[name]
	return s, ok
}

// SetPollIn / SetPollOut / SetBlockOut / SetRecycle install the specialised
// stages every Server wires directly (not looked up by name, since their
// construction requires distinct options).
func (p *Pipeline) SetPollIn(s *libstg.PollInStage)     { p.pollIn = s }
func (p *Pipeline) SetPollOut(s *libstg.PollOutStage)   { p.pollOut = s }
func (p *Pipeline) SetBlockOut(s *libstg.Stage)         { p.blockOut = s }
func (p *Pipeline) SetRecycle(s *libstg.RecycleStage)   { p.recycle = s }

func (p *Pipeline) PollIn() *libstg.PollInStage   { return p.pollIn }
func (p *Pipeline) PollOut() *libstg.PollOutStage { return p.pollOut }
func (p *Pipeline) BlockOut() *libstg.Stage        { return p.blockOut }
func (p *Pipeline) Recycle() *libstg.RecycleStage  { return p.recycle }

// InitializeStages installs the pipeline-wide reschedule_all broadcast hook
// on every generic stage, so that releasing one connection's lock wakes
// every other stage's blocked TryLock pickers (§4.5, §4.6).
func (p *Pipeline) InitializeStages() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.stages {
		s.SetRescheduleAll(p.RescheduleAll)
	}
	if p.blockOut != nil {
		p.blockOut.SetRescheduleAll(p.RescheduleAll)
	}
}

// StartStages launches every registered generic stage's worker pool with
// workerCounts[name] workers (0 entries are skipped), starts blockOutWorkers
// BlockOutStage workers, and starts the poll-in/poll-out backend poller
// loops (each waking at least every pollTimeout to drive its time wheel).
func (p *Pipeline) StartStages(ctx context.Context, workerCounts map[string]int, pollTimeout time.Duration, blockOutWorkers int) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for name, s := range p.stages {
		n := workerCounts[name]
		if n <= 0 {
			continue
		}
		s.StartWorkers(ctx, n)
	}
	if p.blockOut != nil {
		p.blockOut.StartWorkers(ctx, blockOutWorkers)
	}
	if p.pollIn != nil {
		p.pollIn.Start(ctx, pollTimeout)
	}
	if p.pollOut != nil {
		p.pollOut.Start(ctx, pollTimeout)
	}
	return nil
}

// RescheduleAll wakes every generic stage's scheduler; called after any
// event that may unblock a contended TryLock elsewhere in the pipeline.
func (p *Pipeline) RescheduleAll() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.stages {
		s.Scheduler().Reschedule()
	}
	if p.blockOut != nil {
		p.blockOut.Scheduler().Reschedule()
	}
}

// AcceptConnection builds a Connection for sock via the factory, acquiring
// an admission slot first (released by DisposeConnection). It returns an
// error without leaking the slot if construction fails.
func (p *Pipeline) AcceptConnection(ctx context.Context, sock libcon.Socket) (*libcon.Connection, error) {
	if p.admission != nil {
		if err := p.admission.NewWorker(); err != nil {
			return nil, fmt.Errorf("pipeline: admission: %w", err)
		}
	}

	conn, err := p.factory.Create(sock)
	if err != nil {
		if p.admission != nil {
			p.admission.DeferWorker()
		}
		return nil, err
	}
	return conn, nil
}

// DisposeConnection is called by RecycleStage for every drained batch entry:
// it removes the connection from every generic stage's queue, hands it to
// the factory for teardown, and releases the admission slot.
func (p *Pipeline) DisposeConnection(conn *libcon.Connection) {
	p.mu.RLock()
	for _, s := range p.stages {
		s.SchedRemove(conn)
	}
	p.mu.RUnlock()
	if p.blockOut != nil {
		p.blockOut.SchedRemove(conn)
	}
	p.factory.Destroy(conn)
	if p.admission != nil {
		p.admission.DeferWorker()
	}
}

// EnqueueRecycle forwards conn to the RecycleStage, the only path by which a
// connection's lifecycle ends.
func (p *Pipeline) EnqueueRecycle(conn *libcon.Connection) {
	if p.recycle != nil {
		p.recycle.Enqueue(conn)
	}
}

// StopStages stops every stage and the poll-in/poll-out poller loops,
// waiting for workers and backend loops to retire.
func (p *Pipeline) StopStages() {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, s := range p.stages {
		s.Stop()
	}
	if p.blockOut != nil {
		p.blockOut.Stop()
	}
	if p.pollIn != nil {
		p.pollIn.Stop()
	}
	if p.pollOut != nil {
		p.pollOut.Stop()
	}
	if p.recycle != nil {
		p.recycle.Close()
	}
}
