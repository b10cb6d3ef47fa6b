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

// Package client implements socket.Client over net.Dial/tls.Dial.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	libsck "github.com/nabbar/tube/socket"
	sckcfg "github.com/nabbar/tube/socket/config"
)

type client struct {
	mu  sync.Mutex
	cfg sckcfg.Client
	tls *tls.Config
	cnx net.Conn
}

// New validates cfg and returns a socket.Client ready to Connect. tlsCfg
// overrides cfg.TLSConfig() when non-nil, mirroring the teacher's pattern of
// letting a caller inject an already-built *tls.Config instead of having
// every consumer re-parse cert/key files.
func New(cfg sckcfg.Client, tlsCfg *tls.Config) (libsck.Client, error) {
	if cfg.Network.Code() == "" {
		return nil, fmt.Errorf("socket/client: missing network protocol")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("socket/client: missing address")
	}

	if tlsCfg == nil {
		var err error
		tlsCfg, err = cfg.TLSConfig()
		if err != nil {
			return nil, err
		}
	}

	return &client{cfg: cfg, tls: tlsCfg}, nil
}

func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cnx != nil {
		_ = c.cnx.Close()
		c.cnx = nil
	}

	var d net.Dialer

	if c.tls != nil {
		td := tls.Dialer{NetDialer: &d, Config: c.tls}
		cnx, err := td.DialContext(ctx, c.cfg.Network.Code(), c.cfg.Address)
		if err != nil {
			return err
		}
		c.cnx = cnx
		return nil
	}

	cnx, err := d.DialContext(ctx, c.cfg.Network.Code(), c.cfg.Address)
	if err != nil {
		return err
	}
	c.cnx = cnx
	return nil
}

func (c *client) Write(p []byte) (int, error) {
	c.mu.Lock()
	cnx := c.cnx
	c.mu.Unlock()

	if cnx == nil {
		return 0, fmt.Errorf("socket/client: not connected")
	}
	return cnx.Write(p)
}

func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cnx == nil {
		return nil
	}
	err := c.cnx.Close()
	c.cnx = nil
	return err
}

func (c *client) RemoteAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cnx == nil {
		return nil
	}
	return c.cnx.RemoteAddr()
}
