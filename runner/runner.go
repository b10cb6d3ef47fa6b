/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
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

// Package runner holds the small set of helpers shared by every background
// goroutine in the module: panic recovery with a named caller, and the
// lifecycle primitive in the startStop subpackage.
package runner

import (
	"fmt"
	"runtime/debug"

	"github.com/hashicorp/go-hclog"
)

// RecoveryCaller logs a recovered panic value against the given caller name,
// including a stack trace, using the hclog default logger. It is a no-op
// when r is nil, so callers can write `defer RecoveryCaller(name, recover())`
// unconditionally at the top of a goroutine.
func RecoveryCaller(name string, r interface{}) {
	if r == nil {
		return
	}

	hclog.Default().Error(
		fmt.Sprintf("recovered panic in %s", name),
		"panic", r,
		"stack", string(debug.Stack()),
	)
}
