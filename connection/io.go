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

package connection

import (
	"fmt"
	"net"
	"syscall"
)

// Socket is the raw I/O surface a Connection needs from its accepted
// net.Conn: a syscall-level fd for Poller registration plus the usual
// Read/Write/Close/deadline methods used once readiness fires.
type Socket interface {
	net.Conn
	SyscallConn() (syscall.RawConn, error)
}

// FromSocket builds a Connection by extracting the raw descriptor from conn
// via SyscallConn (required so the poller can register it directly).
func FromSocket(conn Socket, opts ...Option) (*Connection, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("connection: syscall conn: %w", err)
	}

	var fd int
	var ctlErr error
	err = raw.Control(func(s uintptr) { fd = int(s) })
	if err != nil {
		return nil, fmt.Errorf("connection: raw control: %w", err)
	}
	if ctlErr != nil {
		return nil, ctlErr
	}

	c := New(fd, conn.RemoteAddr(), opts...)
	c.socket = conn
	return c, nil
}

// Socket returns the underlying net.Conn for direct Read/Write once the
// poller reports readiness.
func (c *Connection) Socket() net.Conn { return c.socket }

// Close closes the underlying socket; it is a no-op when the connection has
// no socket.
func (c *Connection) Close() error {
	if c.socket == nil {
		return nil
	}
	return c.socket.Close()
}
