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
	"sync"
	"time"

	cassatomic "github.com/sabouaram/cassandra-core/atomic"
)

// Stats is a minimal exponentially-weighted rolling latency average fed
// by request completions (SPEC_FULL.md §4, supplemented from cpp-driver's
// Host::HostListener latency tracking). No load-balancing policy reads it;
// query-plan ordering comes from the policies alone.
type Stats struct {
	mu      sync.Mutex
	avgNS   float64
	alpha   float64
	samples int64
}

// NewStats returns a rolling average with the given smoothing factor
// (0 < alpha <= 1; higher weighs recent samples more).
func NewStats(alpha float64) *Stats {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.2
	}
	return &Stats{alpha: alpha}
}

func (s *Stats) Record(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := float64(d.Nanoseconds())
	if s.samples == 0 {
		s.avgNS = ns
	} else {
		s.avgNS = s.alpha*ns + (1-s.alpha)*s.avgNS
	}
	s.samples++
}

func (s *Stats) Average() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.avgNS)
}

func (s *Stats) Samples() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples
}

// Host is the mutable per-node record keyed by Address (spec.md §3):
// "{ dc, rack, tokens, schema_version, is_up, stats }". Created by the
// control connection when a peer is observed; removed on REMOVED_NODE.
// A topology refresh adds and updates hosts but does not remove a host
// that is missing from system.peers.
type Host struct {
	Address Address

	HostID       string
	DC           string
	Rack         string
	Tokens       []Token
	SchemaVer    string
	ReleaseVer   string

	up    cassatomic.Value[bool]
	stats *Stats
}

// NewHost creates a Host in the up state with fresh stats.
func NewHost(addr Address) *Host {
	h := &Host{Address: addr, stats: NewStats(0.2), up: cassatomic.NewValue[bool]()}
	h.up.Store(true)
	return h
}

func (h *Host) IsUp() bool    { return h.up.Load() }
func (h *Host) MarkUp()       { h.up.Store(true) }
func (h *Host) MarkDown()     { h.up.Store(false) }
func (h *Host) Stats() *Stats { return h.stats }

// Clone returns a shallow copy safe to hand to a query-plan snapshot
// (spec.md §4.7: "tolerate concurrent host additions/removals").
func (h *Host) Clone() *Host {
	cp := *h
	cp.Tokens = append([]Token(nil), h.Tokens...)
	return &cp
}
