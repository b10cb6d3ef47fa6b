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

// Package continuation wraps a Connection with the Request/Response surface
// a handler stage uses to read input, queue output and suspend/restore an
// opaque continuation slot across asynchronous hand-offs (§4.13).
package continuation

import (
	"fmt"
	"os"

	libbuf "github.com/nabbar/tube/buffer"
	libcon "github.com/nabbar/tube/connection"
	libsize "github.com/nabbar/tube/size"
)

// PollToggle lets a Wrapper suspend and resume read dispatch for its
// connection without removing it from the poller or disturbing its idle
// timer (disable_poll/enable_poll).
type PollToggle interface {
	DisablePoll(conn *libcon.Connection)
	EnablePoll(conn *libcon.Connection)
}

// Wrapper is the shared base of Request and Response: a connection plus the
// poll-toggle hook.
type Wrapper struct {
	conn *libcon.Connection
	poll PollToggle
}

func newWrapper(conn *libcon.Connection, poll PollToggle) Wrapper {
	return Wrapper{conn: conn, poll: poll}
}

// Connection returns the wrapped connection.
func (w *Wrapper) Connection() *libcon.Connection { return w.conn }

// DisablePoll suspends read-event dispatch for this connection.
func (w *Wrapper) DisablePoll() {
	w.conn.SetFlag(libcon.FlagPollDisabled)
	if w.poll != nil {
		w.poll.DisablePoll(w.conn)
	}
}

// EnablePoll resumes read-event dispatch for this connection.
func (w *Wrapper) EnablePoll() {
	w.conn.ClearFlag(libcon.FlagPollDisabled)
	if w.poll != nil {
		w.poll.EnablePoll(w.conn)
	}
}

// SetBlocking/SetNonBlocking switch the underlying socket's blocking mode,
// used by a handler that needs a synchronous read/write outside the normal
// non-blocking drain loop.
func (w *Wrapper) SetBlocking() error    { return w.conn.MakeBlocking() }
func (w *Wrapper) SetNonBlocking() error { return w.conn.MakeNonBlocking() }

// Request is the inbound half of a handler's view of a connection: the
// already-drained InputStream buffer.
type Request struct {
	Wrapper
}

// NewRequest wraps conn for reading.
func NewRequest(conn *libcon.Connection, poll PollToggle) *Request {
	return &Request{Wrapper: newWrapper(conn, poll)}
}

// ReadData copies up to len(p) bytes out of the connection's input buffer
// and discards them, returning the number of bytes copied; 0 means the
// buffer is currently empty (not EOF — PollInStage signals peer shutdown
// separately).
func (r *Request) ReadData(p []byte) int {
	buf := r.conn.Input().Buffer()
	n := buf.CopyFront(p)
	buf.Pop(n)
	return n
}

// Response is the outbound half: it enforces the configured per-connection
// memory bound (§3 supplement) and carries the continuation slot.
type Response struct {
	Wrapper

	maxMemory libsize.Size
	inactive  bool
}

// NewResponse wraps conn for writing, bounding queued output at maxMemory.
func NewResponse(conn *libcon.Connection, maxMemory libsize.Size, poll PollToggle) *Response {
	return &Response{Wrapper: newWrapper(conn, poll), maxMemory: maxMemory}
}

// remaining reports how many more bytes may be queued before maxMemory
// would be exceeded; maxMemory of 0 means unbounded.
func (r *Response) remaining() int64 {
	if r.maxMemory == 0 {
		return -1
	}
	used := int64(r.conn.Output().MemoryUsage())
	left := int64(r.maxMemory) - used
	if left < 0 {
		return 0
	}
	return left
}

// WriteData queues p as a buffered Writeable, returning an error if doing
// so would exceed maxMemory.
func (r *Response) WriteData(p []byte) (int, error) {
	if rem := r.remaining(); rem >= 0 && int64(len(p)) > rem {
		return 0, fmt.Errorf("continuation: response exceeds max memory bound (%s)", r.maxMemory)
	}
	bw := libbuf.NewBufferWriteable(nil)
	bw.Append(p)
	r.conn.Output().Enqueue(bw)
	return len(p), nil
}

// WriteString is a convenience wrapper over WriteData.
func (r *Response) WriteString(s string) (int, error) {
	return r.WriteData([]byte(s))
}

// WriteFile queues [offset, offset+length) of f as a zero-copy
// FileRangeWriteable; file ranges never count against maxMemory since they
// are read from the file at write time rather than held in memory
// (§3 supplement).
func (r *Response) WriteFile(f *os.File, offset, length int64) {
	r.conn.Output().Enqueue(libbuf.NewFileRangeWriteable(f, offset, length))
}

// Active reports whether the response has not been explicitly closed.
func (r *Response) Active() bool { return !r.inactive }

// Close marks the response inactive and closes the underlying connection.
func (r *Response) Close() error {
	r.inactive = true
	return r.conn.Close()
}

// SuspendContinuation installs an opaque continuation slot on the
// connection, to be retrieved later by RestoreContinuation (e.g. from a
// PollOutStage drain callback) — only one continuation may be in flight per
// connection.
func (r *Response) SuspendContinuation(v interface{}) {
	r.conn.SetContinuation(v)
}

// RestoreContinuation reclaims and clears the connection's continuation
// slot, nil if none was pending.
func (r *Response) RestoreContinuation() interface{} {
	return r.conn.ClearContinuation()
}
