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

	"golang.org/x/exp/slices"

	"github.com/sabouaram/cassandra-core/host"
)

// Filter wraps a policy and drops hosts an operator has explicitly
// allow- or deny-listed by address key, independent of DC/rack/token
// considerations (not in spec.md's distillation; supplements the
// required policies the way cpp-driver's whitelist/blacklist load
// balancing policies do).
type Filter struct {
	Wrapped Policy
	Allow   []string // address Key(); empty means "allow everything"
	Deny    []string
}

func NewFilter(wrapped Policy, allow, deny []string) *Filter {
	return &Filter{Wrapped: wrapped, Allow: allow, Deny: deny}
}

func (f *Filter) permits(h *host.Host) bool {
	key := h.Address.Key()
	if len(f.Allow) > 0 && !slices.Contains(f.Allow, key) {
		return false
	}
	if slices.Contains(f.Deny, key) {
		return false
	}
	return true
}

func (f *Filter) Init(connected *host.Host, hosts []*host.Host, rnd *rand.Rand) {
	filtered := make([]*host.Host, 0, len(hosts))
	for _, h := range hosts {
		if f.permits(h) {
			filtered = append(filtered, h)
		}
	}
	f.Wrapped.Init(connected, filtered, rnd)
}

func (f *Filter) Distance(h *host.Host) Distance {
	if !f.permits(h) {
		return Ignore
	}
	return f.Wrapped.Distance(h)
}

func (f *Filter) NewQueryPlan(keyspace string, routing RoutingInfo, tmap *host.TokenMap) QueryPlan {
	inner := f.Wrapped.NewQueryPlan(keyspace, routing, tmap)
	var ordered []*host.Host
	for {
		h, ok := inner.Next()
		if !ok {
			break
		}
		if f.permits(h) {
			ordered = append(ordered, h)
		}
	}
	return newSlicePlan(ordered)
}

func (f *Filter) OnHostAdded(h *host.Host) {
	if f.permits(h) {
		f.Wrapped.OnHostAdded(h)
	}
}

func (f *Filter) OnHostRemoved(h *host.Host) { f.Wrapped.OnHostRemoved(h) }
func (f *Filter) OnHostUp(h *host.Host) {
	if f.permits(h) {
		f.Wrapped.OnHostUp(h)
	}
}
func (f *Filter) OnHostDown(h *host.Host) { f.Wrapped.OnHostDown(h) }
