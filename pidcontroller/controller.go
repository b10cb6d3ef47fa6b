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

package pidcontroller

import "context"

// Epsilon is the convergence threshold used by RangeCtx to decide that the
// walked signal has reached its target.
const Epsilon = 0.0001

// maxSteps bounds RangeCtx so a pathological rate combination (one that never
// converges) cannot spin forever once the context has no deadline of its own.
const maxSteps = 4096

type pidController struct {
	rateP float64
	rateI float64
	rateD float64

	integral  float64
	lastError float64
	primed    bool
}

func (p *pidController) Reset() {
	p.integral = 0
	p.lastError = 0
	p.primed = false
}

func (p *pidController) Compute(setpoint, measured float64) float64 {
	err := setpoint - measured

	p.integral += err

	var derivative float64
	if p.primed {
		derivative = err - p.lastError
	}
	p.primed = true
	p.lastError = err

	return measured + p.rateP*err + p.rateI*p.integral + p.rateD*derivative
}

func (p *pidController) RangeCtx(ctx context.Context, from, to float64) []float64 {
	p.Reset()

	out := make([]float64, 0)
	cur := from
	out = append(out, cur)

	ascending := to >= from

	for i := 0; i < maxSteps; i++ {
		select {
		case <-ctx.Done():
			return out
		default:
		}

		next := p.Compute(to, cur)

		if ascending && next <= cur {
			next = cur + Epsilon
		} else if !ascending && next >= cur {
			next = cur - Epsilon
		}

		cur = next
		out = append(out, cur)

		if ascending && cur >= to {
			break
		}
		if !ascending && cur <= to {
			break
		}
	}

	return out
}
