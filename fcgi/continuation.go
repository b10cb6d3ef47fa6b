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

package fcgi

import (
	"bytes"
	"net"
)

// Status is the completion stage's per-connection state, mirrored on
// original_source/modules/mod_fcgi/fcgi_completion_stage.h's
// FcgiCompletionStatus.
type Status int

const (
	StatusReadClient Status = iota
	StatusWriteFcgi
	StatusReadFcgi
	StatusHeadersDone
	StatusContinue
	StatusEOF
	StatusError
	StatusTimeout
)

func (st Status) String() string {
	switch st {
	case StatusReadClient:
		return "read_client"
	case StatusWriteFcgi:
		return "write_fcgi"
	case StatusReadFcgi:
		return "read_fcgi"
	case StatusHeadersDone:
		return "headers_done"
	case StatusContinue:
		return "continue"
	case StatusEOF:
		return "eof"
	case StatusError:
		return "error"
	case StatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// TaskBufferLimit bounds how much of the upstream's Stdout stream the
// completion stage accumulates before it must hand the client connection
// back to the write-back stage to drain, mirroring kTaskBufferLimit.
const TaskBufferLimit = 64 * 1024

// Continuation is the opaque value suspended onto a client Connection while
// its request is in flight to the FastCGI upstream; the completion Stage's
// process restores it on the next pick and resumes pumping.
type Continuation struct {
	Upstream      net.Conn
	NeedReconnect bool
	Status        Status

	requestID uint16
	taskLen   int

	parser *ContentParser

	// pending holds Stdout bytes read from Upstream but not yet queued onto
	// the client's OutputStream (e.g. a partial record header).
	pending []byte
}

// NewContinuation starts a fresh state machine for one request on upstream,
// which the caller has already dialed.
func NewContinuation(upstream net.Conn, requestID uint16) *Continuation {
	return &Continuation{
		Upstream:  upstream,
		Status:    StatusWriteFcgi,
		requestID: requestID,
		parser:    NewContentParser(),
	}
}

// ContentParser is the CGI-header state machine over the FastCGI Stdout
// stream: it buffers bytes until it has seen the blank line terminating the
// header block, then reports header bytes and remaining body bytes
// separately, mirroring FcgiContentParser.
type ContentParser struct {
	buf    bytes.Buffer
	done   bool
	errd   bool
	header []byte
}

// NewContentParser returns a parser ready to consume Stdout bytes.
func NewContentParser() *ContentParser {
	return &ContentParser{}
}

// headerTerminator is the blank line ending a CGI header block.
var headerTerminator = []byte("\r\n\r\n")

// Feed appends chunk to the parser. Once the header/body boundary is found
// it returns the body bytes immediately following it (chunk's own trailing
// body bytes on the record that completed the header, body bytes on every
// call after). Before the boundary is found it returns nil, nil.
func (p *ContentParser) Feed(chunk []byte) (body []byte, err error) {
	if p.errd {
		return nil, errParserFailed
	}
	if p.done {
		return chunk, nil
	}

	p.buf.Write(chunk)
	raw := p.buf.Bytes()
	idx := bytes.Index(raw, headerTerminator)
	if idx < 0 {
		// also accept bare LF-terminated headers from a lenient upstream
		if idx = bytes.Index(raw, []byte("\n\n")); idx < 0 {
			return nil, nil
		}
		p.header = append([]byte(nil), raw[:idx]...)
		p.done = true
		body = append([]byte(nil), raw[idx+2:]...)
		p.buf.Reset()
		return body, nil
	}

	p.header = append([]byte(nil), raw[:idx]...)
	p.done = true
	body = append([]byte(nil), raw[idx+len(headerTerminator):]...)
	p.buf.Reset()
	return body, nil
}

// IsDone reports whether the header/body boundary has been found.
func (p *ContentParser) IsDone() bool { return p.done }

// HasError reports whether Feed observed a malformed stream.
func (p *ContentParser) HasError() bool { return p.errd }

// Headers returns the raw CGI header block (without the terminating blank
// line); valid once IsDone is true.
func (p *ContentParser) Headers() []byte { return p.header }

var errParserFailed = contentParserError("fcgi: malformed stdout stream")

type contentParserError string

func (e contentParserError) Error() string { return string(e) }
