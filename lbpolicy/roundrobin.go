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

package lbpolicy

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slices"

	"github.com/sabouaram/cassandra-core/host"
)

// RoundRobin cycles over the full live-host list with a monotonic
// counter; the starting offset is randomized once at Init to prevent
// every client in a fleet from hammering the same first host (spec.md
// §4.7: "first host is randomized at init to prevent convoys").
type RoundRobin struct {
	mu    sync.RWMutex
	hosts []*host.Host
	ctr   uint64
	start uint64
}

func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (p *RoundRobin) Init(connected *host.Host, hosts []*host.Host, rnd *rand.Rand) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hosts = slices.Clone(hosts)
	if len(p.hosts) > 0 {
		p.start = uint64(rnd.Intn(len(p.hosts)))
	}
}

func (p *RoundRobin) Distance(h *host.Host) Distance { return Local }

func (p *RoundRobin) NewQueryPlan(keyspace string, routing RoutingInfo, tmap *host.TokenMap) QueryPlan {
	p.mu.RLock()
	hosts := slices.Clone(p.hosts)
	p.mu.RUnlock()

	if len(hosts) == 0 {
		return newSlicePlan(nil)
	}

	offset := (p.start + atomic.AddUint64(&p.ctr, 1)) % uint64(len(hosts))
	ordered := make([]*host.Host, 0, len(hosts))
	for i := range hosts {
		ordered = append(ordered, hosts[(int(offset)+i)%len(hosts)])
	}
	return newSlicePlan(ordered)
}

func (p *RoundRobin) OnHostAdded(h *host.Host) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i := slices.IndexFunc(p.hosts, func(o *host.Host) bool { return o.Address.Equal(h.Address) }); i < 0 {
		p.hosts = append(p.hosts, h)
	}
}

func (p *RoundRobin) OnHostRemoved(h *host.Host) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hosts = slices.DeleteFunc(p.hosts, func(o *host.Host) bool { return o.Address.Equal(h.Address) })
}

func (p *RoundRobin) OnHostUp(h *host.Host)   {}
func (p *RoundRobin) OnHostDown(h *host.Host) {}
