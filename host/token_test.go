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

package host_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/cassandra-core/host"
)

var _ = Describe("Murmur3Hash64", func() {
	It("is deterministic for the same input", func() {
		a := host.Murmur3Hash64([]byte("partition-key-1"))
		b := host.Murmur3Hash64([]byte("partition-key-1"))
		Expect(a).To(Equal(b))
	})

	It("hashes the empty input to zero", func() {
		Expect(host.Murmur3Hash64(nil)).To(Equal(int64(0)))
	})

	It("differs across distinct inputs", func() {
		a := host.Murmur3Hash64([]byte("alpha"))
		b := host.Murmur3Hash64([]byte("beta"))
		Expect(a).ToNot(Equal(b))
	})
})

var _ = Describe("Token", func() {
	It("orders murmur3 tokens numerically", func() {
		Expect(host.NewMurmur3Token(-5).Less(host.NewMurmur3Token(5))).To(BeTrue())
		Expect(host.NewMurmur3Token(5).Less(host.NewMurmur3Token(-5))).To(BeFalse())
	})

	It("round-trips via ParseMurmur3/String", func() {
		tok, err := host.ParseMurmur3("1234567890")
		Expect(err).NotTo(HaveOccurred())
		Expect(tok.String()).To(Equal("1234567890"))
	})

	It("rejects a non-numeric token string", func() {
		_, err := host.ParseMurmur3("not-a-number")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Ring", func() {
	assignment := func(v int64, id, dc string) struct {
		Token  host.Token
		HostID string
		DC     string
	} {
		return struct {
			Token  host.Token
			HostID string
			DC     string
		}{Token: host.NewMurmur3Token(v), HostID: id, DC: dc}
	}

	It("walks distinct hosts starting at the first token >= the query token", func() {
		ring := host.BuildRing([]struct {
			Token  host.Token
			HostID string
			DC     string
		}{
			assignment(10, "h1", "dc1"),
			assignment(20, "h2", "dc1"),
			assignment(30, "h3", "dc1"),
		})
		Expect(ring.Len()).To(Equal(3))

		ids := ring.WalkDistinctHosts(host.NewMurmur3Token(15), 2, nil)
		Expect(ids).To(Equal([]string{"h2", "h3"}))
	})

	It("wraps around the ring when the query token is past every entry", func() {
		ring := host.BuildRing([]struct {
			Token  host.Token
			HostID string
			DC     string
		}{
			assignment(10, "h1", "dc1"),
			assignment(20, "h2", "dc1"),
		})
		ids := ring.WalkDistinctHosts(host.NewMurmur3Token(100), 2, nil)
		Expect(ids).To(Equal([]string{"h1", "h2"}))
	})

	It("never returns the same host id twice even with multiple tokens per host", func() {
		ring := host.BuildRing([]struct {
			Token  host.Token
			HostID string
			DC     string
		}{
			assignment(1, "h1", "dc1"),
			assignment(2, "h1", "dc1"),
			assignment(3, "h2", "dc1"),
		})
		ids := ring.WalkDistinctHosts(host.NewMurmur3Token(0), 5, nil)
		Expect(ids).To(Equal([]string{"h1", "h2"}))
	})

	Describe("SimpleStrategy", func() {
		It("returns up to ReplicationFactor distinct replicas", func() {
			ring := host.BuildRing([]struct {
				Token  host.Token
				HostID string
				DC     string
			}{
				assignment(10, "h1", "dc1"),
				assignment(20, "h2", "dc1"),
				assignment(30, "h3", "dc1"),
			})
			strat := host.SimpleStrategy{ReplicationFactor: 2}
			Expect(strat.Replicas(ring, host.NewMurmur3Token(0))).To(Equal([]string{"h1", "h2"}))
		})
	})

	Describe("NetworkTopologyStrategy", func() {
		It("honors a per-DC replica count", func() {
			ring := host.BuildRing([]struct {
				Token  host.Token
				HostID string
				DC     string
			}{
				assignment(10, "h1", "dc1"),
				assignment(20, "h2", "dc2"),
				assignment(30, "h3", "dc1"),
				assignment(40, "h4", "dc2"),
			})
			strat := host.NetworkTopologyStrategy{PerDC: map[string]int{"dc1": 1, "dc2": 1}}
			replicas := strat.Replicas(ring, host.NewMurmur3Token(0))
			Expect(replicas).To(ConsistOf("h1", "h2"))
		})
	})
})

var _ = Describe("TokenMap", func() {
	It("leaves the original map untouched when WithRing adds a keyspace", func() {
		m := host.NewTokenMap()
		ring := host.BuildRing(nil)
		m2 := m.WithRing("ks1", ring)

		_, ok := m.Ring("ks1")
		Expect(ok).To(BeFalse())

		got, ok := m2.Ring("ks1")
		Expect(ok).To(BeTrue())
		Expect(got).To(BeIdenticalTo(ring))
	})
})
