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

package stream_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/cassandra-core/stream"
)

var _ = Describe("stream.Manager", func() {
	Describe("Acquire", func() {
		It("hands out ids starting at zero", func() {
			m := stream.New(4)
			Expect(m.Acquire()).To(Equal(int16(0)))
			Expect(m.Acquire()).To(Equal(int16(1)))
		})

		It("returns NoStreams once the space is exhausted", func() {
			m := stream.New(2)
			Expect(m.Acquire()).To(Equal(int16(0)))
			Expect(m.Acquire()).To(Equal(int16(1)))
			Expect(m.Acquire()).To(Equal(stream.NoStreams))
		})

		It("reuses the lowest id after release", func() {
			m := stream.New(3)
			_ = m.Acquire()
			id := m.Acquire()
			m.Release(id)
			Expect(m.Acquire()).To(Equal(id))
		})
	})

	Describe("Release", func() {
		It("is idempotent for an id that is not held", func() {
			m := stream.New(2)
			Expect(func() { m.Release(1) }).ToNot(Panic())
			Expect(m.InUse()).To(Equal(0))
		})

		It("ignores out-of-range ids", func() {
			m := stream.New(2)
			Expect(func() { m.Release(99) }).ToNot(Panic())
			Expect(func() { m.Release(-1) }).ToNot(Panic())
		})

		It("decrements InUse exactly once per acquired id", func() {
			m := stream.New(4)
			id := m.Acquire()
			Expect(m.InUse()).To(Equal(1))
			m.Release(id)
			m.Release(id)
			Expect(m.InUse()).To(Equal(0))
		})
	})

	Describe("Max", func() {
		It("reports the configured id space", func() {
			m := stream.New(128)
			Expect(m.Max()).To(Equal(128))
		})
	})

	Describe("AcquireWait", func() {
		It("returns immediately when an id is free", func() {
			m := stream.New(2)
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			id, err := m.AcquireWait(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(id).To(Equal(int16(0)))
		})

		It("parks until a Release frees an id", func() {
			m := stream.New(1)
			held := m.Acquire()
			Expect(held).To(Equal(int16(0)))

			done := make(chan int16, 1)
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				id, err := m.AcquireWait(ctx)
				Expect(err).ToNot(HaveOccurred())
				done <- id
			}()

			Consistently(done, "50ms").ShouldNot(Receive())
			m.Release(held)
			Eventually(done, "1s").Should(Receive(Equal(int16(0))))
		})

		It("returns the context error when the wait is cancelled before a stream frees up", func() {
			m := stream.New(1)
			_ = m.Acquire()

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			_, err := m.AcquireWait(ctx)
			Expect(err).To(Equal(context.DeadlineExceeded))
		})
	})
})
