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

	"golang.org/x/exp/slices"

	"github.com/sabouaram/cassandra-core/host"
	"github.com/sabouaram/cassandra-core/logger"
	logfld "github.com/sabouaram/cassandra-core/logger/fields"
)

// DCAware places local-DC hosts first in round-robin order, then up to
// UsedHostsPerRemoteDC hosts from every other DC; remote DCs are skipped
// entirely for LOCAL_* consistency levels (spec.md §4.7).
type DCAware struct {
	LocalDC              string
	UsedHostsPerRemoteDC int
	Logger               logger.Logger

	rnd *rand.Rand

	mu          sync.RWMutex
	localHosts  []*host.Host
	remoteHosts map[string][]*host.Host
}

func NewDCAware(localDC string, usedHostsPerRemoteDC int) *DCAware {
	return &DCAware{LocalDC: localDC, UsedHostsPerRemoteDC: usedHostsPerRemoteDC, Logger: logger.Discard()}
}

func (p *DCAware) Init(connected *host.Host, hosts []*host.Host, rnd *rand.Rand) {
	p.rnd = rnd
	if p.LocalDC == "" && connected != nil {
		p.LocalDC = connected.DC
		p.Logger.Info("dc-aware policy inferred local DC from contact point", logfld.New().Add("dc", p.LocalDC))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.localHosts = nil
	p.remoteHosts = map[string][]*host.Host{}
	for _, h := range hosts {
		p.bucketLocked(h)
	}
}

func (p *DCAware) bucketLocked(h *host.Host) {
	if h.DC == p.LocalDC {
		p.localHosts = append(p.localHosts, h)
		return
	}
	p.remoteHosts[h.DC] = append(p.remoteHosts[h.DC], h)
}

func (p *DCAware) Distance(h *host.Host) Distance {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if h.DC == p.LocalDC {
		return Local
	}
	if p.UsedHostsPerRemoteDC <= 0 {
		return Ignore
	}
	return Remote
}

func (p *DCAware) NewQueryPlan(keyspace string, routing RoutingInfo, tmap *host.TokenMap) QueryPlan {
	p.mu.RLock()
	local := slices.Clone(p.localHosts)
	remoteDCs := make([]string, 0, len(p.remoteHosts))
	remoteByDC := make(map[string][]*host.Host, len(p.remoteHosts))
	for dc, hs := range p.remoteHosts {
		remoteDCs = append(remoteDCs, dc)
		remoteByDC[dc] = slices.Clone(hs)
	}
	p.mu.RUnlock()

	rotate(local, p.rnd)

	ordered := append([]*host.Host(nil), local...)

	if p.UsedHostsPerRemoteDC > 0 && !isLocalConsistency(routing.Consistency) {
		slices.Sort(remoteDCs)
		for _, dc := range remoteDCs {
			hs := remoteByDC[dc]
			rotate(hs, p.rnd)
			n := p.UsedHostsPerRemoteDC
			if n > len(hs) {
				n = len(hs)
			}
			ordered = append(ordered, hs[:n]...)
		}
	}

	return newSlicePlan(ordered)
}

// rotate rearranges hosts starting from a random offset, in place,
// giving round-robin-like distribution without a shared counter per DC.
func rotate(hosts []*host.Host, rnd *rand.Rand) {
	if len(hosts) < 2 || rnd == nil {
		return
	}
	offset := rnd.Intn(len(hosts))
	if offset == 0 {
		return
	}
	rotated := make([]*host.Host, len(hosts))
	for i := range hosts {
		rotated[i] = hosts[(offset+i)%len(hosts)]
	}
	copy(hosts, rotated)
}

func (p *DCAware) OnHostAdded(h *host.Host) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bucketLocked(h)
}

func (p *DCAware) OnHostRemoved(h *host.Host) {
	p.mu.Lock()
	defer p.mu.Unlock()
	eq := func(o *host.Host) bool { return o.Address.Equal(h.Address) }
	p.localHosts = slices.DeleteFunc(p.localHosts, eq)
	for dc, hs := range p.remoteHosts {
		p.remoteHosts[dc] = slices.DeleteFunc(hs, eq)
	}
}

func (p *DCAware) OnHostUp(h *host.Host)   {}
func (p *DCAware) OnHostDown(h *host.Host) {}
