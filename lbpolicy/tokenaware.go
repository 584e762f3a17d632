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

	"github.com/sabouaram/cassandra-core/host"
)

// TokenAware wraps another policy: when a routing token is supplied it
// places that token's replicas first (shuffled), then falls through to
// the wrapped policy's plan for everything else (spec.md §4.7).
type TokenAware struct {
	Wrapped  Policy
	Strategy host.Strategy

	rnd *rand.Rand

	mu   sync.RWMutex
	byID map[string]*host.Host
}

func NewTokenAware(wrapped Policy, strategy host.Strategy) *TokenAware {
	return &TokenAware{Wrapped: wrapped, Strategy: strategy, byID: map[string]*host.Host{}}
}

func (p *TokenAware) Init(connected *host.Host, hosts []*host.Host, rnd *rand.Rand) {
	p.rnd = rnd
	p.mu.Lock()
	p.byID = make(map[string]*host.Host, len(hosts))
	for _, h := range hosts {
		p.byID[h.HostID] = h
	}
	p.mu.Unlock()
	p.Wrapped.Init(connected, hosts, rnd)
}

func (p *TokenAware) Distance(h *host.Host) Distance { return p.Wrapped.Distance(h) }

func (p *TokenAware) NewQueryPlan(keyspace string, routing RoutingInfo, tmap *host.TokenMap) QueryPlan {
	if !routing.HasToken || tmap == nil {
		return p.Wrapped.NewQueryPlan(keyspace, routing, tmap)
	}

	ring, ok := tmap.Ring(keyspace)
	if !ok {
		ring, ok = tmap.Ring("")
	}
	if !ok {
		return p.Wrapped.NewQueryPlan(keyspace, routing, tmap)
	}

	replicaIDs := p.Strategy.Replicas(ring, routing.Token)

	p.mu.RLock()
	replicas := make([]*host.Host, 0, len(replicaIDs))
	seen := map[string]struct{}{}
	for _, id := range replicaIDs {
		if h, ok := p.byID[id]; ok {
			replicas = append(replicas, h)
			seen[id] = struct{}{}
		}
	}
	p.mu.RUnlock()

	if p.rnd != nil {
		p.rnd.Shuffle(len(replicas), func(i, j int) { replicas[i], replicas[j] = replicas[j], replicas[i] })
	}

	rest := p.Wrapped.NewQueryPlan(keyspace, routing, tmap)
	ordered := append([]*host.Host(nil), replicas...)
	for {
		h, ok := rest.Next()
		if !ok {
			break
		}
		if _, dup := seen[h.HostID]; dup {
			continue
		}
		ordered = append(ordered, h)
	}

	return newSlicePlan(ordered)
}

func (p *TokenAware) OnHostAdded(h *host.Host) {
	p.mu.Lock()
	p.byID[h.HostID] = h
	p.mu.Unlock()
	p.Wrapped.OnHostAdded(h)
}

func (p *TokenAware) OnHostRemoved(h *host.Host) {
	p.mu.Lock()
	delete(p.byID, h.HostID)
	p.mu.Unlock()
	p.Wrapped.OnHostRemoved(h)
}

func (p *TokenAware) OnHostUp(h *host.Host)   { p.Wrapped.OnHostUp(h) }
func (p *TokenAware) OnHostDown(h *host.Host) { p.Wrapped.OnHostDown(h) }
