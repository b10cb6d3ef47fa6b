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

// Package stage implements the generic worker-pool Stage (§4.6): a thread
// pool plus a scheduler, consuming a connection, running process_task, and
// releasing or keeping its lock depending on the return code. PollInStage,
// PollOutStage, BlockOutStage and RecycleStage all specialise this package.
package stage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	libcon "github.com/nabbar/tube/connection"
	liblog "github.com/nabbar/tube/logger"
	libr "github.com/nabbar/tube/runner"
	libsch "github.com/nabbar/tube/scheduler"
)

// ReturnCode is the result of ProcessFunc, telling the worker whether to
// release the connection's lock.
type ReturnCode int

const (
	// ReleaseLock is the normal path: the worker releases conn's lock.
	ReleaseLock ReturnCode = iota
	// KeepLock means some other subsystem now owns the connection (a
	// Poller registration or a continuation hand-off); the worker MUST
	// NOT unlock.
	KeepLock
)

// ProcessFunc is the per-connection unit of work a Stage runs on every pick.
type ProcessFunc func(ctx context.Context, conn *libcon.Connection) (ReturnCode, error)

// Stage owns a Scheduler and a dynamically resizable pool of worker
// goroutines that each loop: pick, process, release-or-keep, reschedule.
type Stage struct {
	name    string
	sched   *libsch.Scheduler
	process ProcessFunc
	log     liblog.FuncLog

	rescheduleAll atomic.Value // func()

	mu      sync.Mutex
	workers map[int]context.CancelFunc
	auto    map[int]bool
	nextID  int
	wg      sync.WaitGroup

	load      atomic.Int64
	processed atomic.Int64
}

// New returns a Stage named name, using the given pick mode and process
// function. log may be nil (no log calls are made).
func New(name string, mode libsch.PickMode, process ProcessFunc, log liblog.FuncLog) *Stage {
	return &Stage{
		name:    name,
		sched:   libsch.New(mode),
		process: process,
		log:     log,
		workers: make(map[int]context.CancelFunc),
		auto:    make(map[int]bool),
	}
}

// Name returns the stage's configured name, used in log fields and metrics.
func (s *Stage) Name() string { return s.name }

// Scheduler exposes the backing scheduler (Pipeline uses this for
// sched_remove during disposal, PollInStage bypasses it entirely).
func (s *Stage) Scheduler() *libsch.Scheduler { return s.sched }

// SetRescheduleAll installs the Pipeline-wide broadcast hook invoked after
// every processed task (used after any event that may unblock a try_lock
// retry elsewhere in the pipeline).
func (s *Stage) SetRescheduleAll(fn func()) {
	s.rescheduleAll.Store(fn)
}

func (s *Stage) callRescheduleAll() {
	if fn, ok := s.rescheduleAll.Load().(func()); ok && fn != nil {
		fn()
	}
}

// SchedAdd enqueues conn on this stage.
func (s *Stage) SchedAdd(conn *libcon.Connection) {
	s.sched.AddTask(conn)
}

// SchedRemove removes conn from this stage's queue if present.
func (s *Stage) SchedRemove(conn *libcon.Connection) bool {
	return s.sched.RemoveTask(conn)
}

// Depth is the scheduler's advisory queue length, sampled by the Controller.
func (s *Stage) Depth() int { return s.sched.SizeNoLock() }

// Load is the current in-flight task count, incremented on pick and
// decremented on completion; the Controller samples it with Depth.
func (s *Stage) Load() int64 { return s.load.Load() }

// Processed is the cumulative count of tasks this stage has completed
// processing, for the tube_stage_<name>_tasks_total metric (§4.17).
func (s *Stage) Processed() int64 { return s.processed.Load() }

func (s *Stage) logWarn(format string, args ...interface{}) {
	if s.log == nil {
		return
	}
	if l := s.log(); l != nil {
		l.Warning(fmt.Sprintf("[stage %s] %s", s.name, format), nil, args...)
	}
}

func (s *Stage) logErr(format string, args ...interface{}) {
	if s.log == nil {
		return
	}
	if l := s.log(); l != nil {
		l.Error(fmt.Sprintf("[stage %s] %s", s.name, format), nil, args...)
	}
}

// StartWorkers launches n base (non-auto) workers under ctx.
func (s *Stage) StartWorkers(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		s.spawn(ctx, false)
	}
}

// AddWorker launches one additional auto-created worker, returning its id
// so the Controller can later retire it specifically. auto-created workers
// are tracked separately from the base pool (§4.12).
func (s *Stage) AddWorker(ctx context.Context) int {
	return s.spawn(ctx, true)
}

func (s *Stage) spawn(parent context.Context, auto bool) int {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	wctx, cancel := context.WithCancel(parent)
	s.workers[id] = cancel
	s.auto[id] = auto
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runWorker(wctx, id)
	return id
}

// RemoveWorker cancels a specific worker's context; its current PickTask
// call returns (nil, false) and the goroutine retires. Removing a base
// (non-auto) worker is allowed but unusual; the Controller only retires
// auto-created workers.
func (s *Stage) RemoveWorker(id int) bool {
	s.mu.Lock()
	cancel, ok := s.workers[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// AutoWorkerIDs lists currently running auto-created worker ids, for the
// Controller to pick a retirement candidate.
func (s *Stage) AutoWorkerIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.auto))
	for id, a := range s.auto {
		if a {
			ids = append(ids, id)
		}
	}
	return ids
}

// WorkerCount is the number of currently running workers (base + auto).
func (s *Stage) WorkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

func (s *Stage) runWorker(ctx context.Context, id int) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.workers, id)
		delete(s.auto, id)
		s.mu.Unlock()
	}()
	defer func() {
		libr.RecoveryCaller(fmt.Sprintf("stage %s worker %d", s.name, id), recover())
	}()

	for {
		conn, ok := s.sched.PickTask(ctx, s.name)
		if !ok {
			return
		}

		s.load.Add(1)
		rc, err := s.process(ctx, conn)
		if err != nil {
			s.logWarn("process_task error on fd=%d: %v", conn.FD(), err)
		}
		if rc == ReleaseLock {
			conn.Unlock()
		}
		s.load.Add(-1)
		s.processed.Add(1)
		s.callRescheduleAll()
	}
}

// Stop cancels every worker, closes the scheduler so any blocked picker
// unblocks immediately, then waits for every worker to retire.
func (s *Stage) Stop() {
	s.mu.Lock()
	for _, cancel := range s.workers {
		cancel()
	}
	s.mu.Unlock()

	s.sched.Close()
	s.wg.Wait()
}
