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

// Package fcgi is the example continuation consumer: a FastCGI upstream
// client that parses the wire protocol's 8-byte record headers and streams
// a response back through a connection's write-back stage (§4.14),
// grounded on original_source/modules/mod_fcgi/fcgi_proto.h.
package fcgi

import (
	"encoding/binary"
	"fmt"
)

// RecordType is the FastCGI record type byte (FCGI_* constants, spec 3.3).
type RecordType uint8

const (
	TypeBeginRequest RecordType = 1
	TypeAbortRequest RecordType = 2
	TypeEndRequest   RecordType = 3
	TypeParams       RecordType = 4
	TypeStdin        RecordType = 5
	TypeStdout       RecordType = 6
	TypeStderr       RecordType = 7
	TypeData         RecordType = 8
)

// headerSize is the fixed FastCGI record header length.
const headerSize = 8

// version1 is the only FastCGI protocol version in use.
const version1 = 1

// RoleResponder is the only role Tube's FastCGI client requests.
const RoleResponder = 1

// Header is one FastCGI record header.
type Header struct {
	Version       uint8
	Type          RecordType
	RequestID     uint16
	ContentLength uint16
	PaddingLength uint8
}

// ParseHeader decodes the 8-byte record header at the front of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < headerSize {
		return Header{}, fmt.Errorf("fcgi: short header (%d bytes)", len(b))
	}
	return Header{
		Version:       b[0],
		Type:          RecordType(b[1]),
		RequestID:     binary.BigEndian.Uint16(b[2:4]),
		ContentLength: binary.BigEndian.Uint16(b[4:6]),
		PaddingLength: b[6],
	}, nil
}

// Encode writes h's 8-byte wire form into b, which must be at least
// headerSize long.
func (h Header) Encode(b []byte) {
	b[0] = version1
	b[1] = byte(h.Type)
	binary.BigEndian.PutUint16(b[2:4], h.RequestID)
	binary.BigEndian.PutUint16(b[4:6], h.ContentLength)
	b[6] = h.PaddingLength
	b[7] = 0
}

// FrameSize is the total on-wire length of a record with this header
// (header + content + padding).
func (h Header) FrameSize() int {
	return headerSize + int(h.ContentLength) + int(h.PaddingLength)
}

// EncodeNameValue appends one FastCGI name-value pair (FCGI_Params record
// content, spec 3.4) to dst using the short (<=127 bytes) or long
// (4-byte, high bit set) length encoding per field.
func EncodeNameValue(dst []byte, name, value string) []byte {
	dst = appendLen(dst, len(name))
	dst = appendLen(dst, len(value))
	dst = append(dst, name...)
	dst = append(dst, value...)
	return dst
}

func appendLen(dst []byte, n int) []byte {
	if n < 128 {
		return append(dst, byte(n))
	}
	return append(dst, byte(n>>24)|0x80, byte(n>>16), byte(n>>8), byte(n))
}

// BeginRequestBody builds the 8-byte FCGI_BeginRequestBody content for role.
func BeginRequestBody(role uint16, keepConn bool) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint16(b[0:2], role)
	if keepConn {
		b[2] = 1
	}
	return b
}
