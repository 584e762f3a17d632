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

// RackAware orders local-rack hosts first, then other racks within the
// local DC, then other DCs (again skipped for LOCAL_* consistency);
// spec.md §4.7.
type RackAware struct {
	LocalDC              string
	LocalRack            string
	UsedHostsPerRemoteDC int
	Logger               logger.Logger

	rnd *rand.Rand

	mu          sync.RWMutex
	localRack   []*host.Host
	otherRacks  []*host.Host
	remoteHosts map[string][]*host.Host
}

func NewRackAware(localDC, localRack string, usedHostsPerRemoteDC int) *RackAware {
	return &RackAware{LocalDC: localDC, LocalRack: localRack, UsedHostsPerRemoteDC: usedHostsPerRemoteDC, Logger: logger.Discard()}
}

func (p *RackAware) Init(connected *host.Host, hosts []*host.Host, rnd *rand.Rand) {
	p.rnd = rnd
	if p.LocalDC == "" && connected != nil {
		p.LocalDC = connected.DC
		p.Logger.Info("rack-aware policy inferred local DC from contact point", logfld.New().Add("dc", p.LocalDC))
	}
	if p.LocalRack == "" && connected != nil {
		p.LocalRack = connected.Rack
		p.Logger.Info("rack-aware policy inferred local rack from contact point", logfld.New().Add("rack", p.LocalRack))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.localRack, p.otherRacks = nil, nil
	p.remoteHosts = map[string][]*host.Host{}
	for _, h := range hosts {
		p.bucketLocked(h)
	}
}

func (p *RackAware) bucketLocked(h *host.Host) {
	switch {
	case h.DC == p.LocalDC && h.Rack == p.LocalRack:
		p.localRack = append(p.localRack, h)
	case h.DC == p.LocalDC:
		p.otherRacks = append(p.otherRacks, h)
	default:
		p.remoteHosts[h.DC] = append(p.remoteHosts[h.DC], h)
	}
}

func (p *RackAware) Distance(h *host.Host) Distance {
	p.mu.RLock()
	defer p.mu.RUnlock()
	switch {
	case h.DC == p.LocalDC && h.Rack == p.LocalRack:
		return Local
	case h.DC == p.LocalDC:
		return Local
	case p.UsedHostsPerRemoteDC <= 0:
		return Ignore
	default:
		return Remote
	}
}

func (p *RackAware) NewQueryPlan(keyspace string, routing RoutingInfo, tmap *host.TokenMap) QueryPlan {
	p.mu.RLock()
	localRack := slices.Clone(p.localRack)
	otherRacks := slices.Clone(p.otherRacks)
	remoteDCs := make([]string, 0, len(p.remoteHosts))
	remoteByDC := make(map[string][]*host.Host, len(p.remoteHosts))
	for dc, hs := range p.remoteHosts {
		remoteDCs = append(remoteDCs, dc)
		remoteByDC[dc] = slices.Clone(hs)
	}
	p.mu.RUnlock()

	rotate(localRack, p.rnd)
	rotate(otherRacks, p.rnd)

	ordered := append([]*host.Host(nil), localRack...)
	ordered = append(ordered, otherRacks...)

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

func (p *RackAware) OnHostAdded(h *host.Host) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bucketLocked(h)
}

func (p *RackAware) OnHostRemoved(h *host.Host) {
	p.mu.Lock()
	defer p.mu.Unlock()
	eq := func(o *host.Host) bool { return o.Address.Equal(h.Address) }
	p.localRack = slices.DeleteFunc(p.localRack, eq)
	p.otherRacks = slices.DeleteFunc(p.otherRacks, eq)
	for dc, hs := range p.remoteHosts {
		p.remoteHosts[dc] = slices.DeleteFunc(hs, eq)
	}
}

func (p *RackAware) OnHostUp(h *host.Host)   {}
func (p *RackAware) OnHostDown(h *host.Host) {}
