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
	"bytes"
	"strconv"
	"strings"

	"github.com/google/btree"
)

// Token is an opaque, partitioner-ordered key (spec.md §3). Murmur3Token
// wraps the signed 64-bit value used by the (default) Murmur3Partitioner;
// ByteToken wraps the raw key bytes used by the ByteOrderedPartitioner.
// Both compare via Less so a single ring implementation serves either.
type Token struct {
	murmur3 int64
	bytes   []byte
	isBytes bool
}

func NewMurmur3Token(v int64) Token { return Token{murmur3: v} }
func NewByteToken(b []byte) Token   { return Token{bytes: b, isBytes: true} }

func (t Token) Less(than btree.Item) bool {
	o := than.(Token)
	if t.isBytes || o.isBytes {
		return bytes.Compare(t.bytes, o.bytes) < 0
	}
	return t.murmur3 < o.murmur3
}

func (t Token) String() string {
	if t.isBytes {
		return strings.ToUpper(hexEncode(t.bytes))
	}
	return strconv.FormatInt(t.murmur3, 10)
}

func hexEncode(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = digits[c>>4]
		out[i*2+1] = digits[c&0x0f]
	}
	return string(out)
}

// ParseMurmur3 parses a decimal token string as reported by
// system.local/system.peers.tokens under Murmur3Partitioner.
func ParseMurmur3(s string) (Token, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Token{}, err
	}
	return NewMurmur3Token(v), nil
}

// Murmur3Hash64 is the CQL-specific 64-bit Murmur3 variant Cassandra uses
// to map a partition key to a token. There is no third-party
// implementation in the retrieval pack compatible with Cassandra's exact
// (signed, x64-128-truncated-to-low64) variant, so — like the protocol's
// own vlong/decimal primitives — this is hand-rolled directly from the
// algorithm rather than substituted with a generic hash library.
func Murmur3Hash64(data []byte) int64 {
	const c1, c2 = 0x87c37b91114253d5, 0x4cf5ad432745937f
	length := len(data)
	nblocks := length / 16

	var h1, h2 uint64
	seed := uint64(0)
	h1, h2 = seed, seed

	rotl64 := func(x uint64, r uint) uint64 { return (x << r) | (x >> (64 - r)) }
	fmix64 := func(k uint64) uint64 {
		k ^= k >> 33
		k *= 0xff51afd7ed558ccd
		k ^= k >> 33
		k *= 0xc4ceb9fe1a85ec53
		k ^= k >> 33
		return k
	}

	getBlock := func(idx int) (uint64, uint64) {
		off := idx * 16
		var k1, k2 uint64
		for i := 0; i < 8; i++ {
			k1 |= uint64(data[off+i]) << (8 * i)
		}
		for i := 0; i < 8; i++ {
			k2 |= uint64(data[off+8+i]) << (8 * i)
		}
		return k1, k2
	}

	for i := 0; i < nblocks; i++ {
		k1, k2 := getBlock(i)

		k1 *= c1
		k1 = rotl64(k1, 31)
		k1 *= c2
		h1 ^= k1

		h1 = rotl64(h1, 27)
		h1 += h2
		h1 = h1*5 + 0x52dce729

		k2 *= c2
		k2 = rotl64(k2, 33)
		k2 *= c1
		h2 ^= k2

		h2 = rotl64(h2, 31)
		h2 += h1
		h2 = h2*5 + 0x38495ab5
	}

	tailStart := nblocks * 16
	var k1, k2 uint64
	tail := data[tailStart:]
	switch len(tail) & 15 {
	case 15:
		k2 ^= uint64(tail[14]) << 48
		fallthrough
	case 14:
		k2 ^= uint64(tail[13]) << 40
		fallthrough
	case 13:
		k2 ^= uint64(tail[12]) << 32
		fallthrough
	case 12:
		k2 ^= uint64(tail[11]) << 24
		fallthrough
	case 11:
		k2 ^= uint64(tail[10]) << 16
		fallthrough
	case 10:
		k2 ^= uint64(tail[9]) << 8
		fallthrough
	case 9:
		k2 ^= uint64(tail[8])
		k2 *= c2
		k2 = rotl64(k2, 33)
		k2 *= c1
		h2 ^= k2
		fallthrough
	case 8:
		k1 ^= uint64(tail[7]) << 56
		fallthrough
	case 7:
		k1 ^= uint64(tail[6]) << 48
		fallthrough
	case 6:
		k1 ^= uint64(tail[5]) << 40
		fallthrough
	case 5:
		k1 ^= uint64(tail[4]) << 32
		fallthrough
	case 4:
		k1 ^= uint64(tail[3]) << 24
		fallthrough
	case 3:
		k1 ^= uint64(tail[2]) << 16
		fallthrough
	case 2:
		k1 ^= uint64(tail[1]) << 8
		fallthrough
	case 1:
		k1 ^= uint64(tail[0])
		k1 *= c1
		k1 = rotl64(k1, 31)
		k1 *= c2
		h1 ^= k1
	}

	h1 ^= uint64(length)
	h2 ^= uint64(length)
	h1 += h2
	h2 += h1
	h1 = fmix64(h1)
	h2 = fmix64(h2)
	h1 += h2

	return int64(h1)
}

// Strategy is a replication-strategy capability over a token ring:
// given a token, return the ordered set of replica host ids
// (spec.md §3: "SimpleStrategy or NetworkTopologyStrategy").
type Strategy interface {
	Replicas(ring *Ring, token Token) []string
}

// SimpleStrategy walks the ring clockwise taking distinct hosts up to
// ReplicationFactor.
type SimpleStrategy struct {
	ReplicationFactor int
}

func (s SimpleStrategy) Replicas(ring *Ring, token Token) []string {
	return ring.WalkDistinctHosts(token, s.ReplicationFactor, nil)
}

// NetworkTopologyStrategy walks the ring per-DC, honoring a configured
// replication factor for each.
type NetworkTopologyStrategy struct {
	PerDC map[string]int
}

func (s NetworkTopologyStrategy) Replicas(ring *Ring, token Token) []string {
	need := 0
	for _, n := range s.PerDC {
		need += n
	}
	got := map[string]int{}
	filter := func(hostID, dc string) bool {
		if got[dc] >= s.PerDC[dc] {
			return false
		}
		got[dc]++
		return true
	}
	return ring.WalkDistinctHostsDC(token, need, filter)
}

// ringEntry is one token->host_id assignment stored in the btree.
type ringEntry struct {
	Token
	HostID string
	DC     string
}

func (e ringEntry) Less(than btree.Item) bool { return e.Token.Less(than.(ringEntry).Token) }

// Ring is one keyspace's immutable token->replica-set mapping (spec.md
// §3: "Rebuilt atomically when host set or schema changes; readers take
// the last-published immutable snapshot"). Never mutated after Build;
// all lookups walk the btree directly — no parallel slice is kept.
type Ring struct {
	tree *btree.BTree
	size int
}

// BuildRing constructs a sorted ring from (token, hostID, dc) triples.
func BuildRing(assignments []struct {
	Token  Token
	HostID string
	DC     string
}) *Ring {
	tree := btree.New(32)
	for _, a := range assignments {
		tree.ReplaceOrInsert(ringEntry{Token: a.Token, HostID: a.HostID, DC: a.DC})
	}
	return &Ring{tree: tree, size: tree.Len()}
}

// WalkDistinctHosts returns up to n distinct host ids starting at the
// first token >= the given token, wrapping around the ring.
func (r *Ring) WalkDistinctHosts(token Token, n int, filter func(hostID, dc string) bool) []string {
	return r.WalkDistinctHostsDC(token, n, filter)
}

// WalkDistinctHostsDC walks the btree clockwise from the first token >=
// the given token, wrapping around to the ring's start, collecting up to
// n distinct host ids. The pivot ascent (AscendGreaterOrEqual) covers the
// ring from the pivot to its end; the wrap-around (AscendLessThan) covers
// the remainder from the ring's start back up to the pivot — together a
// single pass around the ring in token order.
func (r *Ring) WalkDistinctHostsDC(token Token, n int, filter func(hostID, dc string) bool) []string {
	if r.tree == nil || r.tree.Len() == 0 || n <= 0 {
		return nil
	}

	seen := map[string]struct{}{}
	out := make([]string, 0, n)

	visit := func(item btree.Item) bool {
		if len(out) >= n {
			return false
		}
		e := item.(ringEntry)
		if _, dup := seen[e.HostID]; dup {
			return true
		}
		if filter != nil && !filter(e.HostID, e.DC) {
			return true
		}
		seen[e.HostID] = struct{}{}
		out = append(out, e.HostID)
		return true
	}

	pivot := ringEntry{Token: token}
	r.tree.AscendGreaterOrEqual(pivot, visit)
	if len(out) < n {
		r.tree.AscendLessThan(pivot, visit)
	}
	return out
}

// Len reports the number of (token, host) assignments in the ring.
func (r *Ring) Len() int { return r.size }

// TokenMap is the per-keyspace set of rings (spec.md §3: "Token → set-of-
// hosts mapping ... is a sorted ring per keyspace replication strategy").
// Readers take the Load()'d snapshot; writers call Store() atomically —
// never mutate a Ring or TokenMap value in place.
type TokenMap struct {
	rings map[string]*Ring // keyspace -> ring
}

func NewTokenMap() *TokenMap { return &TokenMap{rings: map[string]*Ring{}} }

func (m *TokenMap) Ring(keyspace string) (*Ring, bool) {
	r, ok := m.rings[keyspace]
	return r, ok
}

func (m *TokenMap) WithRing(keyspace string, r *Ring) *TokenMap {
	out := &TokenMap{rings: make(map[string]*Ring, len(m.rings)+1)}
	for k, v := range m.rings {
		out.rings[k] = v
	}
	out.rings[keyspace] = r
	return out
}
