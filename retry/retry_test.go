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

package retry_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/cassandra-core/protocol"
	"github.com/sabouaram/cassandra-core/retry"
)

var _ = Describe("retry.Default", func() {
	var p retry.Default

	Describe("OnReadTimeout", func() {
		It("retries once on the same consistency", func() {
			o := p.OnReadTimeout(protocol.ConsistencyQuorum, 1, 2, true, 0)
			Expect(o.Decision).To(Equal(retry.Retry))
			Expect(o.Consistency).To(Equal(protocol.ConsistencyQuorum))
			Expect(o.SameHost).To(BeFalse())
		})

		It("gives up after one retry", func() {
			o := p.OnReadTimeout(protocol.ConsistencyQuorum, 1, 2, true, 1)
			Expect(o.Decision).To(Equal(retry.ReturnError))
		})
	})

	Describe("OnWriteTimeout", func() {
		It("retries idempotent logged-batch-family writes", func() {
			o := p.OnWriteTimeout(protocol.ConsistencyOne, 1, 2, protocol.WriteTypeSimple, true, 0)
			Expect(o.Decision).To(Equal(retry.Retry))
		})

		It("does not retry a non-idempotent write", func() {
			o := p.OnWriteTimeout(protocol.ConsistencyOne, 1, 2, protocol.WriteTypeSimple, false, 0)
			Expect(o.Decision).To(Equal(retry.ReturnError))
		})

		It("does not retry a counter write even if idempotent", func() {
			o := p.OnWriteTimeout(protocol.ConsistencyOne, 1, 2, protocol.WriteTypeCounter, true, 0)
			Expect(o.Decision).To(Equal(retry.ReturnError))
		})
	})

	Describe("OnUnavailable", func() {
		It("retries once on the same consistency", func() {
			o := p.OnUnavailable(protocol.ConsistencyQuorum, 3, 1, 0)
			Expect(o.Decision).To(Equal(retry.Retry))
		})

		It("gives up after one retry", func() {
			o := p.OnUnavailable(protocol.ConsistencyQuorum, 3, 1, 1)
			Expect(o.Decision).To(Equal(retry.ReturnError))
		})
	})

	Describe("OnRequestError", func() {
		It("retries idempotent requests once", func() {
			o := p.OnRequestError(true, 0)
			Expect(o.Decision).To(Equal(retry.Retry))
		})

		It("never retries a non-idempotent request", func() {
			o := p.OnRequestError(false, 0)
			Expect(o.Decision).To(Equal(retry.ReturnError))
		})
	})
})

var _ = Describe("retry.Downgrading", func() {
	var d retry.Downgrading

	Describe("OnUnavailable", func() {
		It("downgrades quorum to local_quorum and pins the same host", func() {
			o := d.OnUnavailable(protocol.ConsistencyQuorum, 3, 1, 0)
			Expect(o.Decision).To(Equal(retry.Retry))
			Expect(o.Consistency).To(Equal(protocol.ConsistencyLocalQuorum))
			Expect(o.SameHost).To(BeTrue())
		})

		It("gives up when no replica is alive", func() {
			o := d.OnUnavailable(protocol.ConsistencyQuorum, 3, 0, 0)
			Expect(o.Decision).To(Equal(retry.ReturnError))
		})
	})

	Describe("OnReadTimeout", func() {
		It("downgrades when fewer replicas responded than blockFor", func() {
			o := d.OnReadTimeout(protocol.ConsistencyAll, 1, 3, true, 0)
			Expect(o.Decision).To(Equal(retry.Retry))
			Expect(o.Consistency).To(Equal(protocol.ConsistencyLocalQuorum))
		})

		It("retries at the same consistency when data was not present", func() {
			o := d.OnReadTimeout(protocol.ConsistencyQuorum, 2, 2, false, 0)
			Expect(o.Decision).To(Equal(retry.Retry))
			Expect(o.Consistency).To(Equal(protocol.ConsistencyQuorum))
			Expect(o.SameHost).To(BeTrue())
		})

		It("returns the error when enough data was already present", func() {
			o := d.OnReadTimeout(protocol.ConsistencyQuorum, 2, 2, true, 0)
			Expect(o.Decision).To(Equal(retry.ReturnError))
		})
	})
})
