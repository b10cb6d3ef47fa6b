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

// Package server implements socket.Listener over net.Listen/tls.Listen, one
// per configured endpoint in the Tube Server's accept loop.
package server

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"

	libsck "github.com/nabbar/tube/socket"
	sckcfg "github.com/nabbar/tube/socket/config"
)

// New opens a listening socket.Listener for cfg. Unix sockets are removed
// and recreated if a stale file is left over from a previous run.
func New(cfg sckcfg.Server) (libsck.Listener, error) {
	if cfg.Network.Code() == "" {
		return nil, fmt.Errorf("socket/server: missing network protocol")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("socket/server: missing address")
	}

	if cfg.Network.IsUnix() {
		_ = os.Remove(cfg.Address)
	}

	ln, err := net.Listen(cfg.Network.Code(), cfg.Address)
	if err != nil {
		return nil, err
	}

	if cfg.TLS.Enable {
		crt, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			_ = ln.Close()
			return nil, err
		}

		tcfg := &tls.Config{Certificates: []tls.Certificate{crt}}
		if cfg.TLS.ClientAuth {
			tcfg.ClientAuth = tls.RequireAndVerifyClientCert
		}

		ln = tls.NewListener(ln, tcfg)
	}

	return ln, nil
}
