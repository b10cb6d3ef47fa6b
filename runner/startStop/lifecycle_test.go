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
 *
 */

package startStop_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/nabbar/tube/runner/startStop"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("StartStop lifecycle", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	})

	AfterEach(func() {
		cancel()
	})

	It("reports not running with zero uptime before Start", func() {
		r := New(
			func(ctx context.Context) error { return nil },
			func(ctx context.Context) error { return nil },
		)

		Expect(r.IsRunning()).To(BeFalse())
		Expect(r.Uptime()).To(BeZero())
		Expect(r.ErrorsLast()).To(BeNil())
	})

	It("runs until Stop cancels its context", func() {
		var running atomic.Bool

		r := New(
			func(ctx context.Context) error {
				running.Store(true)
				<-ctx.Done()
				running.Store(false)
				return nil
			},
			func(ctx context.Context) error { return nil },
		)

		Expect(r.Start(ctx)).ToNot(HaveOccurred())
		Eventually(func() bool { return running.Load() && r.IsRunning() }, time.Second).Should(BeTrue())
		Expect(r.Uptime()).To(BeNumerically(">=", 0))

		Expect(r.Stop(ctx)).ToNot(HaveOccurred())
		Eventually(r.IsRunning, time.Second).Should(BeFalse())
		Expect(r.Uptime()).To(BeZero())
	})

	It("records the run function's error and clears it on the next Start", func() {
		boom := errors.New("boom")

		r := New(
			func(ctx context.Context) error { return boom },
			func(ctx context.Context) error { return nil },
		)

		Expect(r.Start(ctx)).ToNot(HaveOccurred())
		Eventually(r.ErrorsLast, time.Second).Should(MatchError(boom))
		Expect(r.ErrorsList()).To(HaveLen(1))

		r2 := New(
			func(ctx context.Context) error { <-ctx.Done(); return nil },
			func(ctx context.Context) error { return nil },
		)
		Expect(r2.Start(ctx)).ToNot(HaveOccurred())
		Consistently(r2.ErrorsLast, 100*time.Millisecond).Should(BeNil())
		Expect(r2.Stop(ctx)).ToNot(HaveOccurred())
	})

	It("reports invalid-function errors instead of panicking on nil funcs", func() {
		r := New(nil, nil)

		Expect(r.Start(ctx)).ToNot(HaveOccurred())
		Eventually(r.ErrorsLast, time.Second).Should(HaveOccurred())
		Expect(r.ErrorsLast().Error()).To(ContainSubstring("invalid start function"))

		Expect(r.Stop(ctx)).ToNot(HaveOccurred())
		Expect(r.ErrorsLast().Error()).To(ContainSubstring("invalid stop function"))
	})
})
