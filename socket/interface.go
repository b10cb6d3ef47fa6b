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

// Package socket declares the Client and Listener contracts shared by the
// socket/client and socket/server implementations, and by the connection
// package which wraps an accepted net.Conn in the same Client shape.
package socket

import (
	"context"
	"net"
)

// Client is a connection to a single remote endpoint: dial, write, close.
// socket/client.New implements it over net.Dial; logger/hooksyslog uses it
// to reach a syslog collector; the Tube Connection wraps an accepted
// net.Conn in the same shape for the write-back stage.
type Client interface {
	Connect(ctx context.Context) error
	Write(p []byte) (int, error)
	Close() error

	// RemoteAddr is nil until Connect succeeds.
	RemoteAddr() net.Addr
}

// Listener accepts inbound connections on one configured endpoint. The Tube
// Server's accept loop is built on top of one Listener per configured port.
type Listener interface {
	net.Listener
}
