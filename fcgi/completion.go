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

package fcgi

import (
	"bufio"
	"context"
	"fmt"
	"net"

	libcon "github.com/nabbar/tube/connection"
	libcont "github.com/nabbar/tube/continuation"
	liblog "github.com/nabbar/tube/logger"
	libsch "github.com/nabbar/tube/scheduler"
	libsize "github.com/nabbar/tube/size"
	libstg "github.com/nabbar/tube/stage"
)

// Dialer opens a connection to the FastCGI upstream for one request;
// need_reconnect (set on a prior failed Continuation) means the caller must
// not reuse a pooled connection.
type Dialer func(needReconnect bool) (net.Conn, error)

// EnvBuilder turns a client request (read out of conn's continuation.Request
// view) into the CGI environment variables passed as FCGI_Params.
type EnvBuilder func(conn *libcon.Connection) (map[string]string, []byte)

// Stage builds the example continuation consumer (§4.14): a generic Stage
// whose process function drives the FastCGI request/response state machine
// to completion, one bounded chunk at a time, handing the client connection
// to writeBack whenever the task buffer fills or the upstream finishes.
type Stage struct {
	dial     Dialer
	buildEnv EnvBuilder
	writeBack *libstg.PollOutStage
	poll     libcont.PollToggle
	maxMem   libsize.Size
	log      liblog.FuncLog

	stage *libstg.Stage
}

// NewCompletionStage wires a FastCGI completion Stage named name. writeBack
// receives every connection whose response needs flushing to the client
// (either because the task buffer filled, or the upstream is done).
func NewCompletionStage(name string, dial Dialer, buildEnv EnvBuilder, writeBack *libstg.PollOutStage, poll libcont.PollToggle, maxResponseMemory libsize.Size, log liblog.FuncLog) *Stage {
	fs := &Stage{
		dial:      dial,
		buildEnv:  buildEnv,
		writeBack: writeBack,
		poll:      poll,
		maxMem:    maxResponseMemory,
		log:       log,
	}
	fs.stage = libstg.New(name, libsch.LockOnPick, fs.process, log)
	return fs
}

// Underlying returns the generic Stage wrapping this completion logic, for
// registration with a Pipeline and StartStages.
func (fs *Stage) Underlying() *libstg.Stage { return fs.stage }

func (fs *Stage) process(ctx context.Context, conn *libcon.Connection) (libstg.ReturnCode, error) {
	resp := libcont.NewResponse(conn, fs.maxMem, fs.poll)

	cont, _ := resp.RestoreContinuation().(*Continuation)
	if cont == nil {
		c, err := fs.begin(conn)
		if err != nil {
			fs.logErr("begin request fd=%d: %v", conn.FD(), err)
			resp.SuspendContinuation(nil)
			_ = resp.Close()
			return libstg.ReleaseLock, err
		}
		cont = c
	}

	status, err := fs.pump(conn, resp, cont)
	switch status {
	case StatusEOF:
		_ = cont.Upstream.Close()
		fs.handOff(conn)
		return libstg.ReleaseLock, nil

	case StatusError, StatusTimeout:
		if cont.Upstream != nil {
			_ = cont.Upstream.Close()
		}
		fs.logWarn("fd=%d fcgi %s: %v", conn.FD(), status, err)
		fs.handOff(conn)
		return libstg.ReleaseLock, err

	default: // StatusContinue, StatusReadFcgi: task buffer full, flush and resume later
		resp.SuspendContinuation(cont)
		fs.handOff(conn)
		return libstg.ReleaseLock, nil
	}
}

// begin dials the upstream, builds and sends the CGI environment and the
// client's already-buffered request body as one BeginRequest+Params+Stdin
// burst (FcgiEnvironment::prepare_request/commit_environment).
func (fs *Stage) begin(conn *libcon.Connection) (*Continuation, error) {
	upstream, err := fs.dial(false)
	if err != nil {
		return nil, fmt.Errorf("fcgi: dial upstream: %w", err)
	}

	const reqID = 1
	env, body := fs.buildEnv(conn)

	var params []byte
	for k, v := range env {
		params = EncodeNameValue(params, k, v)
	}

	if err := writeRecord(upstream, TypeBeginRequest, reqID, BeginRequestBody(RoleResponder, false)); err != nil {
		_ = upstream.Close()
		return nil, err
	}
	if len(params) > 0 {
		if err := writeRecord(upstream, TypeParams, reqID, params); err != nil {
			_ = upstream.Close()
			return nil, err
		}
	}
	if err := writeRecord(upstream, TypeParams, reqID, nil); err != nil { // empty Params record terminates the stream
		_ = upstream.Close()
		return nil, err
	}
	if len(body) > 0 {
		if err := writeRecord(upstream, TypeStdin, reqID, body); err != nil {
			_ = upstream.Close()
			return nil, err
		}
	}
	if err := writeRecord(upstream, TypeStdin, reqID, nil); err != nil {
		_ = upstream.Close()
		return nil, err
	}

	return NewContinuation(upstream, reqID), nil
}

// writeRecord frames payload (split across multiple 64KiB-max records if
// needed) and writes it to w.
func writeRecord(w net.Conn, typ RecordType, reqID uint16, payload []byte) error {
	for {
		chunk := payload
		if len(chunk) > 0xFFFF {
			chunk = chunk[:0xFFFF]
		}
		pad := (8 - len(chunk)%8) % 8
		h := Header{Type: typ, RequestID: reqID, ContentLength: uint16(len(chunk)), PaddingLength: uint8(pad)}
		frame := make([]byte, headerSize+len(chunk)+pad)
		h.Encode(frame)
		copy(frame[headerSize:], chunk)
		if _, err := w.Write(frame); err != nil {
			return err
		}
		payload = payload[len(chunk):]
		if len(payload) == 0 {
			return nil
		}
	}
}

// pump reads FastCGI records off cont.Upstream, separates the CGI header
// block from the body via cont.parser, and queues body bytes onto resp up to
// TaskBufferLimit before returning StatusContinue so the worker can hand the
// connection to writeBack and resume on the next pick.
func (fs *Stage) pump(conn *libcon.Connection, resp *libcont.Response, cont *Continuation) (Status, error) {
	r := bufio.NewReaderSize(cont.Upstream, 16*1024)
	queued := 0

	for queued < TaskBufferLimit {
		var hdr [headerSize]byte
		if _, err := fullRead(r, hdr[:]); err != nil {
			cont.Status = StatusError
			return StatusError, err
		}
		h, err := ParseHeader(hdr[:])
		if err != nil {
			cont.Status = StatusError
			return StatusError, err
		}

		frame := make([]byte, int(h.ContentLength)+int(h.PaddingLength))
		if len(frame) > 0 {
			if _, err := fullRead(r, frame); err != nil {
				cont.Status = StatusError
				return StatusError, err
			}
		}
		content := frame[:h.ContentLength]

		switch h.Type {
		case TypeStdout:
			body, perr := cont.parser.Feed(content)
			if perr != nil {
				cont.Status = StatusError
				return StatusError, perr
			}
			if len(body) > 0 {
				n, werr := resp.WriteData(body)
				if werr != nil {
					cont.Status = StatusError
					return StatusError, werr
				}
				queued += n
			}

		case TypeStderr:
			fs.logWarn("fd=%d fcgi stderr: %s", conn.FD(), string(content))

		case TypeEndRequest:
			cont.Status = StatusEOF
			return StatusEOF, nil
		}
	}

	cont.Status = StatusContinue
	return StatusContinue, nil
}

// fullRead reads exactly len(p) bytes or returns the first error.
func fullRead(r *bufio.Reader, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := r.Read(p[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// handOff enqueues conn on the write-back PollOutStage, which flushes
// whatever the response has queued so far back to the client socket.
func (fs *Stage) handOff(conn *libcon.Connection) {
	if fs.writeBack == nil {
		return
	}
	if err := fs.writeBack.SchedAdd(conn); err != nil {
		fs.logErr("fd=%d write-back sched_add: %v", conn.FD(), err)
	}
}

func (fs *Stage) logWarn(format string, args ...interface{}) {
	if fs.log == nil {
		return
	}
	if l := fs.log(); l != nil {
		l.Warning(format, nil, args...)
	}
}

func (fs *Stage) logErr(format string, args ...interface{}) {
	if fs.log == nil {
		return
	}
	if l := fs.log(); l != nil {
		l.Error(format, nil, args...)
	}
}
