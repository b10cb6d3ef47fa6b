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

//go:build unix

package connection

import "golang.org/x/sys/unix"

// MakeNonBlocking switches the socket to non-blocking mode so the poller
// can drive reads/writes via ReadUntilBlock/WriteUntilBlock instead of the
// Go runtime's own netpoller.
func (c *Connection) MakeNonBlocking() error {
	return unix.SetNonblock(c.fd, true)
}

// MakeBlocking switches the socket back to blocking mode, used by
// BlockOutStage before a bounded blocking write and SO_RCVTIMEO/SO_SNDTIMEO
// then apply per the usual blocking-socket semantics (§6).
func (c *Connection) MakeBlocking() error {
	return unix.SetNonblock(c.fd, false)
}

// SetNoDelay sets TCP_NODELAY, applied once on accept (§6).
func (c *Connection) SetNoDelay(enable bool) error {
	v := 0
	if enable {
		v = 1
	}
	return unix.SetsockoptInt(c.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, v)
}

// applyCork toggles TCP_CORK (Linux) / TCP_NOPUSH where available; a no-op
// error is swallowed by the caller on platforms/fds that don't support it.
func (c *Connection) applyCork(enable bool) error {
	v := 0
	if enable {
		v = 1
	}
	return unix.SetsockoptInt(c.fd, unix.IPPROTO_TCP, tcpCorkOpt, v)
}

// ApplyCork pushes the logical cork flag to the socket, ignoring
// ENOPROTOOPT/ENOTSUP (cork is OS-level batching, not correctness-critical).
func (c *Connection) ApplyCork() {
	_ = c.applyCork(c.HasFlag(FlagCork))
}

// SetRecvTimeout/SetSendTimeout set SO_RCVTIMEO/SO_SNDTIMEO before a stage
// switches the socket to blocking mode (§6).
func (c *Connection) SetRecvTimeout(tv unix.Timeval) error {
	return unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

func (c *Connection) SetSendTimeout(tv unix.Timeval) error {
	return unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv)
}
