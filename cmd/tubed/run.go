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

package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	libcfg "github.com/nabbar/tube/config"
	libcon "github.com/nabbar/tube/connection"
	libctl "github.com/nabbar/tube/controller"
	libcont "github.com/nabbar/tube/continuation"
	libdur "github.com/nabbar/tube/duration"
	libfcgi "github.com/nabbar/tube/fcgi"
	liblog "github.com/nabbar/tube/logger"
	libmon "github.com/nabbar/tube/monitor"
	libptc "github.com/nabbar/tube/network/protocol"
	libpip "github.com/nabbar/tube/pipeline"
	libprom "github.com/nabbar/tube/prometheus"
	libsch "github.com/nabbar/tube/scheduler"
	libsem "github.com/nabbar/tube/semaphore"
	libsrv "github.com/nabbar/tube/server"
	libstg "github.com/nabbar/tube/stage"
	libsts "github.com/nabbar/tube/status"
	sckcfg "github.com/nabbar/tube/socket/config"

	"github.com/prometheus/client_golang/prometheus"
)

// noopPollToggle satisfies continuation.PollToggle: PollInStage/PollOutStage
// only consult the connection's FlagPollDisabled flag directly (§4.7, §4.8),
// so no poller-side bookkeeping is required here.
type noopPollToggle struct{}

func (noopPollToggle) DisablePoll(*libcon.Connection) {}
func (noopPollToggle) EnablePoll(*libcon.Connection)  {}

// passthroughFactory builds a Connection directly from the accepted socket;
// the vhost/routing/module-loading concerns that would otherwise customize
// construction are external collaborators out of this repository's scope
// (spec.md §1).
type passthroughFactory struct {
	pageSize int
}

func (f passthroughFactory) Create(sock libcon.Socket) (*libcon.Connection, error) {
	return libcon.FromSocket(sock, libcon.WithPageSize(f.pageSize))
}

func (f passthroughFactory) Destroy(conn *libcon.Connection) {
	_ = conn.Close()
}

func run(configPath, monitorAddr, monitorIntervalStr string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log := func() liblog.Logger { return liblog.New(ctx) }

	cfg, cerr := libcfg.Load(ctx, configPath, log)
	if cerr != nil {
		return fmt.Errorf("load config: %w", cerr)
	}

	monitorInterval, err := libdur.Parse(monitorIntervalStr)
	if err != nil {
		return fmt.Errorf("parse monitor-interval: %w", err)
	}

	idleTimeout := cfg.IdleTimeout.Time()
	const granularity = 2 * time.Second

	admission := libsem.New(ctx, cfg.ListenQueueSize, false)
	factory := passthroughFactory{pageSize: 4096}

	pipe := libpip.New(factory, admission, log)

	registry := prometheus.NewRegistry()
	mon := libmon.New(monitorAddr, monitorInterval.Time(), registry)

	recycle := libstg.NewRecycleStage("recycle", pipe.DisposeConnection, log)
	pipe.SetRecycle(recycle)

	onRecycle := func(conn *libcon.Connection) { pipe.EnqueueRecycle(conn) }

	// handler is where routing to a backend (FastCGI, a static-file
	// handler, a C/Python bridge...) would be decided; out of this
	// repository's scope per spec.md §1, this build always forwards to
	// the fcgi stage.
	var fcgiStage *libfcgi.Stage
	handler := libstg.New("handler", libsch.LockOnPick, func(c context.Context, conn *libcon.Connection) (libstg.ReturnCode, error) {
		fcgiStage.Underlying().SchedAdd(conn)
		return libstg.KeepLock, nil
	}, log)
	pipe.RegisterStage(handler)

	// parser stands in for the HTTP/1.1 wire parser (also an external
	// collaborator, spec.md §1): it forwards the drained request straight
	// to handler without interpreting it.
	parser := libstg.New("parser", libsch.LockOnPick, func(c context.Context, conn *libcon.Connection) (libstg.ReturnCode, error) {
		handler.SchedAdd(conn)
		return libstg.ReleaseLock, nil
	}, log)
	pipe.RegisterStage(parser)

	// onContinuation is wired after fcgiStage exists; NewPollOutStage needs
	// a value up front, so the closure indirects through this variable.
	var onContinuation func(conn *libcon.Connection)
	pollOut, err := libstg.NewPollOutStage("pollout", cfg.ThreadPool.WriteBack, idleTimeout, granularity,
		onRecycle,
		func(conn *libcon.Connection) { onContinuation(conn) },
		onRecycle,
		log,
	)
	if err != nil {
		return fmt.Errorf("new pollout stage: %w", err)
	}
	pipe.SetPollOut(pollOut)

	dial := func(needReconnect bool) (net.Conn, error) {
		return net.DialTimeout("tcp", "127.0.0.1:9000", 5*time.Second)
	}
	buildEnv := func(conn *libcon.Connection) (map[string]string, []byte) {
		req := libcont.NewRequest(conn, noopPollToggle{})
		body := make([]byte, 0, 4096)
		buf := make([]byte, 4096)
		for {
			n := req.ReadData(buf)
			if n == 0 {
				break
			}
			body = append(body, buf[:n]...)
		}
		env := map[string]string{
			"REQUEST_METHOD":  "GET",
			"SERVER_PROTOCOL": "HTTP/1.1",
			"CONTENT_LENGTH":  fmt.Sprintf("%d", len(body)),
		}
		return env, body
	}
	fcgiStage = libfcgi.NewCompletionStage("fcgi", dial, buildEnv, pollOut, noopPollToggle{}, cfg.MaxMemory, log)
	pipe.RegisterStage(fcgiStage.Underlying())
	onContinuation = func(conn *libcon.Connection) { fcgiStage.Underlying().SchedAdd(conn) }

	blockOut := libstg.NewBlockOutStage("blockout", 30*time.Second, onRecycle, onRecycle, log)
	pipe.SetBlockOut(blockOut)

	pollIn, err := libstg.NewPollInStage("pollin", cfg.ThreadPool.PollIn, idleTimeout, granularity, 4096,
		func(conn *libcon.Connection) { parser.SchedAdd(conn) },
		onRecycle,
		log,
	)
	if err != nil {
		return fmt.Errorf("new pollin stage: %w", err)
	}
	pipe.SetPollIn(pollIn)

	pipe.InitializeStages()

	srvCfg := sckcfg.Server{
		Network:       libptc.NetworkTCP,
		Address:       fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		ListenBacklog: cfg.ListenQueueSize,
	}
	srv, err := libsrv.New(srvCfg, pipe, log)
	if err != nil {
		return fmt.Errorf("new server: %w", err)
	}

	workerCounts := map[string]int{
		"parser":  cfg.ThreadPool.Parser,
		"handler": cfg.ThreadPool.Handler,
		"fcgi":    cfg.ThreadPool.Fcgi,
	}
	if err := pipe.StartStages(ctx, workerCounts, granularity, cfg.ThreadPool.BlockOut); err != nil {
		return fmt.Errorf("start stages: %w", err)
	}
	go recycle.Run(ctx.Done(), 64)

	registry.MustRegister(libprom.NewStageCollector(parser))
	registry.MustRegister(libprom.NewStageCollector(handler))
	registry.MustRegister(libprom.NewStageCollector(fcgiStage.Underlying()))
	registry.MustRegister(libprom.NewStageCollector(blockOut))

	ctrl := libctl.New(handler, 2*time.Second)
	registry.MustRegister(libprom.NewControllerCollector("handler", ctrl))
	go ctrl.Run(ctx)

	mon.Register("pipeline", func() libsts.Status {
		return libsts.Status{Name: "pipeline", State: libsts.StateHealthy, CheckedAt: time.Now()}
	})
	go func() {
		if err := mon.Start(ctx); err != nil {
			_ = err
		}
	}()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx) }()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			pipe.StopStages()
			return err
		}
	}

	pipe.StopStages()
	return nil
}
