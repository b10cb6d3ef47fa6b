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

// Package server binds a listening socket and runs the accept loop that
// feeds new connections into the Pipeline's PollInStage (§4.1, §6),
// grounded on original_source/core/server.cc's bind/listen/main_loop split.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	libcon "github.com/nabbar/tube/connection"
	liblog "github.com/nabbar/tube/logger"
	libpip "github.com/nabbar/tube/pipeline"
	libr "github.com/nabbar/tube/runner"
	libsck "github.com/nabbar/tube/socket"
	sckcfg "github.com/nabbar/tube/socket/config"
	sckserver "github.com/nabbar/tube/socket/server"
)

// Server owns one listening socket and hands every accepted connection to
// pipeline.PollIn() after admission control and connection-factory
// construction.
type Server struct {
	cfg      sckcfg.Server
	pipeline *libpip.Pipeline
	log      liblog.FuncLog

	ln libsck.Listener
}

// New binds cfg's listener. Call Serve to run the accept loop.
func New(cfg sckcfg.Server, pipe *libpip.Pipeline, log liblog.FuncLog) (*Server, error) {
	ln, err := sckserver.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("server: listen %s %s: %w", cfg.Network.Code(), cfg.Address, err)
	}
	return &Server{cfg: cfg, pipeline: pipe, log: log, ln: ln}, nil
}

// Addr returns the bound listener's local address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve runs the accept loop until ctx is cancelled or the listener fails
// permanently; it always closes the listener before returning.
func (s *Server) Serve(ctx context.Context) error {
	defer s.ln.Close()

	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logWarn("accept: %v", err)
			continue
		}

		go s.handleAccept(ctx, conn)
	}
}

func (s *Server) handleAccept(ctx context.Context, raw net.Conn) {
	defer func() {
		libr.RecoveryCaller(fmt.Sprintf("server %s accept", s.cfg.Address), recover())
	}()

	sock, ok := raw.(libcon.Socket)
	if !ok {
		s.logErr("accepted connection of type %T does not support raw fd access", raw)
		_ = raw.Close()
		return
	}

	conn, err := s.pipeline.AcceptConnection(ctx, sock)
	if err != nil {
		s.logWarn("admission/create: %v", err)
		_ = raw.Close()
		return
	}

	if err := conn.MakeNonBlocking(); err != nil {
		s.logErr("set non-blocking fd=%d: %v", conn.FD(), err)
		_ = conn.Close()
		s.pipeline.EnqueueRecycle(conn)
		return
	}
	_ = conn.SetNoDelay(true)

	if s.pipeline.PollIn() != nil {
		if err := s.pipeline.PollIn().SchedAdd(conn); err != nil {
			s.logErr("sched_add fd=%d: %v", conn.FD(), err)
			_ = conn.Close()
			s.pipeline.EnqueueRecycle(conn)
		}
	}
}

func (s *Server) logWarn(format string, args ...interface{}) {
	if s.log == nil {
		return
	}
	if l := s.log(); l != nil {
		l.Warning(fmt.Sprintf("[server %s] %s", s.cfg.Address, format), nil, args...)
	}
}

func (s *Server) logErr(format string, args ...interface{}) {
	if s.log == nil {
		return
	}
	if l := s.log(); l != nil {
		l.Error(fmt.Sprintf("[server %s] %s", s.cfg.Address, format), nil, args...)
	}
}
