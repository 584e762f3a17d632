/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
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
 */

package speculative_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/cassandra-core/speculative"
)

var _ = Describe("speculative.None", func() {
	It("never starts an extra execution", func() {
		plan := speculative.None{}.NewPlan()
		Expect(plan.Next()).To(Equal(speculative.NoMore))
		Expect(plan.Next()).To(Equal(speculative.NoMore))
	})
})

var _ = Describe("speculative.Constant", func() {
	It("allows up to Max extra executions, Delay apart", func() {
		plan := speculative.Constant{Delay: 50 * time.Millisecond, Max: 2}.NewPlan()
		Expect(plan.Next()).To(Equal(50 * time.Millisecond))
		Expect(plan.Next()).To(Equal(50 * time.Millisecond))
		Expect(plan.Next()).To(Equal(speculative.NoMore))
	})

	It("starts no executions when Max is zero", func() {
		plan := speculative.Constant{Delay: time.Second, Max: 0}.NewPlan()
		Expect(plan.Next()).To(Equal(speculative.NoMore))
	})

	It("hands out an independent plan per call", func() {
		policy := speculative.Constant{Delay: time.Millisecond, Max: 1}
		a := policy.NewPlan()
		b := policy.NewPlan()
		Expect(a.Next()).To(Equal(time.Millisecond))
		Expect(a.Next()).To(Equal(speculative.NoMore))
		Expect(b.Next()).To(Equal(time.Millisecond))
	})
})
