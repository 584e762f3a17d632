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

package host

import (
	cassatomic "github.com/sabouaram/cassandra-core/atomic"
	"github.com/sabouaram/cassandra-core/regmap"
)

// Listener is notified of host-set changes so session/ can create or
// close pools in lockstep (spec.md §4.6: "notify pools to create a pool
// for this host" / "notify pools to close the pool").
type Listener interface {
	OnHostAdded(h *Host)
	OnHostRemoved(h *Host)
	OnHostUp(h *Host)
	OnHostDown(h *Host)
}

// Registry is the copy-on-write set of known hosts (spec.md §5: "the
// host registry snapshot (copy-on-write; readers get an immutable
// pointer)" — regmap.Map already gives every reader an independent
// Snapshot(), so the copy-on-write discipline lives here, not in a
// second data structure).
type Registry struct {
	hosts regmap.Map[string, *Host]
	tmap  cassatomic.Value[*TokenMap]

	listeners []Listener
}

func NewRegistry() *Registry {
	r := &Registry{hosts: regmap.New[string, *Host](), tmap: cassatomic.NewValue[*TokenMap]()}
	r.tmap.Store(NewTokenMap())
	return r
}

func (r *Registry) AddListener(l Listener) { r.listeners = append(r.listeners, l) }

// Upsert adds h if new, or leaves the existing entry unchanged. Returns
// true when h was newly added.
func (r *Registry) Upsert(h *Host) (added bool) {
	_, loaded := r.hosts.LoadOrStore(h.Address.Key(), h)
	if !loaded {
		for _, l := range r.listeners {
			l.OnHostAdded(h)
		}
	}
	return !loaded
}

func (r *Registry) Get(addr Address) (*Host, bool) {
	return r.hosts.Load(addr.Key())
}

func (r *Registry) Remove(addr Address) {
	h, ok := r.hosts.LoadAndDelete(addr.Key())
	if !ok {
		return
	}
	for _, l := range r.listeners {
		l.OnHostRemoved(h)
	}
}

func (r *Registry) MarkUp(addr Address) {
	h, ok := r.hosts.Load(addr.Key())
	if !ok {
		return
	}
	h.MarkUp()
	for _, l := range r.listeners {
		l.OnHostUp(h)
	}
}

func (r *Registry) MarkDown(addr Address) {
	h, ok := r.hosts.Load(addr.Key())
	if !ok {
		return
	}
	h.MarkDown()
	for _, l := range r.listeners {
		l.OnHostDown(h)
	}
}

// Snapshot returns every known host at this instant; lbpolicy query-plan
// construction uses this to build a plan immune to concurrent mutation
// (spec.md §4.7).
func (r *Registry) Snapshot() []*Host {
	m := r.hosts.Snapshot()
	out := make([]*Host, 0, len(m))
	for _, h := range m {
		out = append(out, h)
	}
	return out
}

func (r *Registry) Len() int { return r.hosts.Len() }

// TokenMap returns the last-published immutable token map.
func (r *Registry) TokenMap() *TokenMap { return r.tmap.Load() }

// SetTokenMap atomically publishes a newly rebuilt token map (spec.md §3:
// "Rebuilt atomically when host set or schema changes").
func (r *Registry) SetTokenMap(m *TokenMap) { r.tmap.Store(m) }
