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

// Package lbpolicy produces the per-request query plan: the ordered
// sequence of hosts a request handler walks until one yields a usable
// connection (spec.md C7/§4.7).
package lbpolicy

import (
	"math/rand"

	"github.com/sabouaram/cassandra-core/host"
	"github.com/sabouaram/cassandra-core/protocol"
)

// Distance classifies a host relative to the policy's notion of
// locality; IGNORE hosts never appear in a query plan.
type Distance uint8

const (
	Local Distance = iota
	Remote
	Remote2
	Ignore
)

// RoutingInfo carries the per-request hints a token-aware wrapper needs
// to place replica hosts first (spec.md §4.7 "when a routing token is
// supplied").
type RoutingInfo struct {
	Keyspace    string
	Token       host.Token
	HasToken    bool
	Consistency protocol.Consistency
}

// QueryPlan is a single-pass, lock-free iterator over a snapshot of
// hosts taken at plan creation (spec.md §4.7: "must tolerate concurrent
// host additions/removals").
type QueryPlan interface {
	Next() (*host.Host, bool)
}

// Policy decides host distance and builds query plans (spec.md §4.7).
type Policy interface {
	Init(connectedHost *host.Host, hosts []*host.Host, rnd *rand.Rand)
	Distance(h *host.Host) Distance
	NewQueryPlan(keyspace string, routing RoutingInfo, tmap *host.TokenMap) QueryPlan

	OnHostAdded(h *host.Host)
	OnHostRemoved(h *host.Host)
	OnHostUp(h *host.Host)
	OnHostDown(h *host.Host)
}

// slicePlan is the common single-pass iterator every policy in this
// package returns: a pre-computed, already-ordered snapshot.
type slicePlan struct {
	hosts []*host.Host
	pos   int
}

func (p *slicePlan) Next() (*host.Host, bool) {
	if p.pos >= len(p.hosts) {
		return nil, false
	}
	h := p.hosts[p.pos]
	p.pos++
	return h, true
}

func newSlicePlan(hosts []*host.Host) QueryPlan { return &slicePlan{hosts: hosts} }

// isLocalConsistency reports whether cl is one of the LOCAL_* levels
// that skip remote DCs entirely (spec.md §4.7 DC-aware/rack-aware).
func isLocalConsistency(cl protocol.Consistency) bool { return cl.IsLocal() }
