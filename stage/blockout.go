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

package stage

import (
	"context"
	"time"

	libcon "github.com/nabbar/tube/connection"
	liblog "github.com/nabbar/tube/logger"
	libsch "github.com/nabbar/tube/scheduler"
	"golang.org/x/sys/unix"
)

// NewBlockOutStage builds a Stage for large or slow responses that would
// otherwise monopolise a PollOutStage poller: the worker switches the
// socket to blocking mode with a bounded send timeout and performs a single
// blocking write per pick, re-enqueuing itself (LockFreePick: the caller
// already owns the lock on hand-off, §4.9) while data remains.
//
// sendTimeout bounds a single blocking write via SO_SNDTIMEO; a peer that
// never drains its receive window eventually fails the write with EAGAIN,
// which is treated like any other write error.
func NewBlockOutStage(name string, sendTimeout time.Duration, onDone, onExpired func(*libcon.Connection), log liblog.FuncLog) *Stage {
	tv := unix.NsecToTimeval(sendTimeout.Nanoseconds())

	var s *Stage

	process := func(ctx context.Context, conn *libcon.Connection) (ReturnCode, error) {
		if err := conn.MakeBlocking(); err != nil {
			_ = conn.Close()
			if onExpired != nil {
				onExpired(conn)
			}
			return ReleaseLock, err
		}
		if err := conn.SetSendTimeout(tv); err != nil {
			_ = conn.Close()
			if onExpired != nil {
				onExpired(conn)
			}
			return ReleaseLock, err
		}

		w := conn.Socket()
		_, err := conn.Output().Flush(w)
		if err != nil {
			_ = conn.Close()
			if onExpired != nil {
				onExpired(conn)
			}
			return ReleaseLock, err
		}

		if !conn.Output().IsDone() {
			// re-enqueue for another pick; the lock stays held across the
			// hand-off since LockFreePick trusts the queue, not TryLock.
			s.SchedAdd(conn)
			return KeepLock, nil
		}

		if err := conn.MakeNonBlocking(); err != nil {
			_ = conn.Close()
			if onExpired != nil {
				onExpired(conn)
			}
			return ReleaseLock, err
		}

		if onDone != nil {
			onDone(conn)
		}
		return ReleaseLock, nil
	}

	s = New(name, libsch.LockFreePick, process, log)
	return s
}

// SchedAddBlocking hands conn to s while retaining its lock (the caller must
// already hold it), re-enqueuing it after each partial write until drained.
func SchedAddBlocking(s *Stage, conn *libcon.Connection) {
	s.SchedAdd(conn)
}
