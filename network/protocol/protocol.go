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

// Package protocol names the transport families the socket and server
// packages accept: the listener's configured network, and the client used
// by log hooks to reach a remote syslog collector.
package protocol

import "strings"

// NetworkProtocol identifies a network transport by its Go net package dial
// network string (e.g. "tcp", "unix").
type NetworkProtocol uint8

const (
	NetworkEmpty NetworkProtocol = iota
	NetworkTCP
	NetworkTCP4
	NetworkTCP6
	NetworkUDP
	NetworkUDP4
	NetworkUDP6
	NetworkUnix
	NetworkUnixGram
)

var codes = map[NetworkProtocol]string{
	NetworkEmpty:    "",
	NetworkTCP:      "tcp",
	NetworkTCP4:     "tcp4",
	NetworkTCP6:     "tcp6",
	NetworkUDP:      "udp",
	NetworkUDP4:     "udp4",
	NetworkUDP6:     "udp6",
	NetworkUnix:     "unix",
	NetworkUnixGram: "unixgram",
}

// Code returns the net package dial network string for this protocol.
func (n NetworkProtocol) Code() string {
	return codes[n]
}

func (n NetworkProtocol) String() string {
	return n.Code()
}

// Parse maps a dial network string (case insensitive) to a NetworkProtocol,
// NetworkEmpty if it is not recognized.
func Parse(s string) NetworkProtocol {
	s = strings.ToLower(strings.TrimSpace(s))
	for code, str := range codes {
		if str == s {
			return code
		}
	}
	return NetworkEmpty
}

// IsUnix reports whether this protocol addresses a filesystem path rather
// than a host:port pair.
func (n NetworkProtocol) IsUnix() bool {
	return n == NetworkUnix || n == NetworkUnixGram
}
