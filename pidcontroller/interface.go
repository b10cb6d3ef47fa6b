/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
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
 */

// Package pidcontroller implements a small proportional-integral-derivative
// feedback loop used to smooth a scalar signal that must be walked from one
// value to another (duration ranges, thread-pool sizing) without overshoot.
package pidcontroller

import "context"

// Controller runs a single-input single-output PID loop against a target
// setpoint and exposes both a one-shot Compute step and a convenience
// RangeCtx helper that walks a full interval to completion.
type Controller interface {
	// Compute runs one control-loop step given the current setpoint and the
	// last measured value, returning the next commanded value.
	Compute(setpoint, measured float64) float64

	// Reset clears the accumulated integral and derivative state.
	Reset()

	// RangeCtx walks the signal from `from` to `to`, emitting intermediate
	// commanded values until the setpoint is reached (within Epsilon) or the
	// context is cancelled. The returned slice always starts near `from` and
	// ends at or beyond `to`.
	RangeCtx(ctx context.Context, from, to float64) []float64
}

// New returns a Controller configured with the given proportional, integral
// and derivative rates.
func New(rateP, rateI, rateD float64) Controller {
	return &pidController{
		rateP: rateP,
		rateI: rateI,
		rateD: rateD,
	}
}
