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

package lbpolicy_test

import (
	"math/rand"
	"net"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/cassandra-core/host"
	"github.com/sabouaram/cassandra-core/lbpolicy"
)

func mkHost(n byte) *host.Host {
	addr, err := host.NewAddress(net.IPv4(127, 0, 0, n), 9042)
	Expect(err).NotTo(HaveOccurred())
	return host.NewHost(addr)
}

var _ = Describe("lbpolicy.RoundRobin", func() {
	It("cycles through every host exactly once per plan", func() {
		hosts := []*host.Host{mkHost(1), mkHost(2), mkHost(3)}
		p := lbpolicy.NewRoundRobin()
		p.Init(nil, hosts, rand.New(rand.NewSource(1)))

		plan := p.NewQueryPlan("", lbpolicy.RoutingInfo{}, nil)
		seen := map[string]bool{}
		count := 0
		for {
			h, ok := plan.Next()
			if !ok {
				break
			}
			seen[h.Address.Key()] = true
			count++
		}
		Expect(count).To(Equal(3))
		Expect(seen).To(HaveLen(3))
	})

	It("returns an empty plan when no hosts are known", func() {
		p := lbpolicy.NewRoundRobin()
		p.Init(nil, nil, rand.New(rand.NewSource(1)))
		_, ok := p.NewQueryPlan("", lbpolicy.RoutingInfo{}, nil).Next()
		Expect(ok).To(BeFalse())
	})

	It("forgets a host once OnHostRemoved fires", func() {
		a, b := mkHost(1), mkHost(2)
		p := lbpolicy.NewRoundRobin()
		p.Init(nil, []*host.Host{a, b}, rand.New(rand.NewSource(1)))
		p.OnHostRemoved(a)

		plan := p.NewQueryPlan("", lbpolicy.RoutingInfo{}, nil)
		count := 0
		for {
			h, ok := plan.Next()
			if !ok {
				break
			}
			Expect(h.Address.Key()).To(Equal(b.Address.Key()))
			count++
		}
		Expect(count).To(Equal(1))
	})

	It("picks up a host added after Init", func() {
		a := mkHost(1)
		p := lbpolicy.NewRoundRobin()
		p.Init(nil, []*host.Host{a}, rand.New(rand.NewSource(1)))
		b := mkHost(2)
		p.OnHostAdded(b)

		plan := p.NewQueryPlan("", lbpolicy.RoutingInfo{}, nil)
		count := 0
		for {
			_, ok := plan.Next()
			if !ok {
				break
			}
			count++
		}
		Expect(count).To(Equal(2))
	})
})

var _ = Describe("lbpolicy.Filter", func() {
	It("excludes denied hosts from the wrapped plan", func() {
		a, b := mkHost(1), mkHost(2)
		f := lbpolicy.NewFilter(lbpolicy.NewRoundRobin(), nil, []string{b.Address.Key()})
		f.Init(nil, []*host.Host{a, b}, rand.New(rand.NewSource(1)))

		plan := f.NewQueryPlan("", lbpolicy.RoutingInfo{}, nil)
		h, ok := plan.Next()
		Expect(ok).To(BeTrue())
		Expect(h.Address.Key()).To(Equal(a.Address.Key()))
		_, ok = plan.Next()
		Expect(ok).To(BeFalse())
	})

	It("only allows hosts present in a non-empty allow list", func() {
		a, b := mkHost(1), mkHost(2)
		f := lbpolicy.NewFilter(lbpolicy.NewRoundRobin(), []string{a.Address.Key()}, nil)
		Expect(f.Distance(a)).ToNot(Equal(lbpolicy.Ignore))
		Expect(f.Distance(b)).To(Equal(lbpolicy.Ignore))
	})

	It("allows everything when both lists are empty", func() {
		a := mkHost(1)
		f := lbpolicy.NewFilter(lbpolicy.NewRoundRobin(), nil, nil)
		Expect(f.Distance(a)).ToNot(Equal(lbpolicy.Ignore))
	})
})
