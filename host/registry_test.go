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
	"net"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/cassandra-core/host"
)

type recordingListener struct {
	added, removed, up, down []string
}

func (l *recordingListener) OnHostAdded(h *host.Host)   { l.added = append(l.added, h.Address.Key()) }
func (l *recordingListener) OnHostRemoved(h *host.Host) { l.removed = append(l.removed, h.Address.Key()) }
func (l *recordingListener) OnHostUp(h *host.Host)      { l.up = append(l.up, h.Address.Key()) }
func (l *recordingListener) OnHostDown(h *host.Host)    { l.down = append(l.down, h.Address.Key()) }

func mkAddr(n byte) host.Address {
	addr, err := host.NewAddress(net.IPv4(127, 0, 0, n), 9042)
	Expect(err).NotTo(HaveOccurred())
	return addr
}

var _ = Describe("Registry", func() {
	It("starts empty with a usable default token map", func() {
		r := host.NewRegistry()
		Expect(r.Len()).To(Equal(0))
		Expect(r.TokenMap()).ToNot(BeNil())
	})

	It("notifies listeners exactly once when a host is newly upserted", func() {
		r := host.NewRegistry()
		l := &recordingListener{}
		r.AddListener(l)

		addr := mkAddr(1)
		h := host.NewHost(addr)
		Expect(r.Upsert(h)).To(BeTrue())
		Expect(r.Upsert(h)).To(BeFalse())
		Expect(l.added).To(Equal([]string{addr.Key()}))
	})

	It("notifies OnHostRemoved and forgets the host", func() {
		r := host.NewRegistry()
		l := &recordingListener{}
		r.AddListener(l)

		addr := mkAddr(2)
		r.Upsert(host.NewHost(addr))
		r.Remove(addr)

		_, ok := r.Get(addr)
		Expect(ok).To(BeFalse())
		Expect(l.removed).To(Equal([]string{addr.Key()}))
	})

	It("is a no-op removing an address it never knew about", func() {
		r := host.NewRegistry()
		l := &recordingListener{}
		r.AddListener(l)
		r.Remove(mkAddr(9))
		Expect(l.removed).To(BeEmpty())
	})

	It("marks a host up/down and notifies listeners", func() {
		r := host.NewRegistry()
		l := &recordingListener{}
		r.AddListener(l)

		addr := mkAddr(3)
		h := host.NewHost(addr)
		r.Upsert(h)

		r.MarkDown(addr)
		Expect(h.IsUp()).To(BeFalse())
		Expect(l.down).To(Equal([]string{addr.Key()}))

		r.MarkUp(addr)
		Expect(h.IsUp()).To(BeTrue())
		Expect(l.up).To(Equal([]string{addr.Key()}))
	})

	It("publishes a new token map atomically via SetTokenMap", func() {
		r := host.NewRegistry()
		tm := host.NewTokenMap().WithRing("ks1", host.BuildRing(nil))
		r.SetTokenMap(tm)
		_, ok := r.TokenMap().Ring("ks1")
		Expect(ok).To(BeTrue())
	})
})

var _ = Describe("Host", func() {
	It("starts in the up state", func() {
		h := host.NewHost(mkAddr(4))
		Expect(h.IsUp()).To(BeTrue())
	})

	It("clones tokens independently of the original", func() {
		h := host.NewHost(mkAddr(5))
		h.Tokens = []host.Token{host.NewMurmur3Token(1)}
		cp := h.Clone()
		cp.Tokens[0] = host.NewMurmur3Token(2)
		Expect(h.Tokens[0]).To(Equal(host.NewMurmur3Token(1)))
	})
})
