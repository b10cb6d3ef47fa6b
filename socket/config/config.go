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

// Package config holds the plain configuration structs accepted by
// socket/client and socket/server: no behavior, just validated, decodable
// data so viper/mapstructure can populate them directly from a config file.
package config

import (
	"crypto/tls"

	libptc "github.com/nabbar/tube/network/protocol"
)

// TLSClient configures optional TLS for an outbound socket.Client connection.
type TLSClient struct {
	Enable             bool   `mapstructure:"enable" json:"enable" yaml:"enable"`
	CAFile             string `mapstructure:"ca_file" json:"ca_file" yaml:"ca_file"`
	CertFile           string `mapstructure:"cert_file" json:"cert_file" yaml:"cert_file"`
	KeyFile            string `mapstructure:"key_file" json:"key_file" yaml:"key_file"`
	ServerName         string `mapstructure:"server_name" json:"server_name" yaml:"server_name"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify" json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// Client configures a single outbound connection.
type Client struct {
	Network libptc.NetworkProtocol `mapstructure:"network" json:"network" yaml:"network" validate:"required"`
	Address string                 `mapstructure:"address" json:"address" yaml:"address" validate:"required"`
	Timeout string                 `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	TLS     TLSClient              `mapstructure:"tls" json:"tls" yaml:"tls"`
}

// TLSServer configures optional TLS for an inbound socket.Server listener.
type TLSServer struct {
	Enable     bool   `mapstructure:"enable" json:"enable" yaml:"enable"`
	CertFile   string `mapstructure:"cert_file" json:"cert_file" yaml:"cert_file"`
	KeyFile    string `mapstructure:"key_file" json:"key_file" yaml:"key_file"`
	ClientAuth bool   `mapstructure:"client_auth" json:"client_auth" yaml:"client_auth"`
	ClientCA   string `mapstructure:"client_ca" json:"client_ca" yaml:"client_ca"`
}

// Server configures a single listening endpoint: the Tube Server accept
// loop binds one of these per configured listener.
type Server struct {
	Network        libptc.NetworkProtocol `mapstructure:"network" json:"network" yaml:"network" validate:"required"`
	Address        string                 `mapstructure:"address" json:"address" yaml:"address" validate:"required"`
	ListenBacklog  int                    `mapstructure:"listen_backlog" json:"listen_backlog" yaml:"listen_backlog"`
	TLS            TLSServer              `mapstructure:"tls" json:"tls" yaml:"tls"`
}

func (t TLSClient) tlsConfig() (*tls.Config, error) {
	if !t.Enable {
		return nil, nil
	}

	cfg := &tls.Config{
		ServerName:         t.ServerName,
		InsecureSkipVerify: t.InsecureSkipVerify,
	}

	if t.CertFile != "" && t.KeyFile != "" {
		crt, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{crt}
	}

	return cfg, nil
}

// TLSConfig builds a *tls.Config from this client's TLS settings, nil when
// TLS is disabled.
func (c Client) TLSConfig() (*tls.Config, error) {
	return c.TLS.tlsConfig()
}
