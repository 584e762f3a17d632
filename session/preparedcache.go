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

package session

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/sabouaram/cassandra-core/request"
)

// preparedCache is the session-wide, read-write-locked prepared-statement
// cache (spec.md §5: "guarded by a read-write lock; writes are rare
// broadcasts"). Prepared statements are held indefinitely (spec.md §5
// "Resource policy": "no eviction"); re-prepare-on-UNPREPARED, not cache
// eviction, is what recovers from a server forgetting one.
//
// Keyed by cql text alone, matching request.PreparedCache's single-arg
// Lookup/Store contract (request/handler.go never threads a keyspace
// through the lookup it does on the EXECUTE hot path).
type preparedCache struct {
	mu  sync.RWMutex
	byHash map[uint64]*request.PreparedEntry
	byText map[uint64]string // collision guard: same hash, different CQL text
}

func newPreparedCache() *preparedCache {
	return &preparedCache{
		byHash: make(map[uint64]*request.PreparedEntry),
		byText: make(map[uint64]string),
	}
}

func hashCQL(cql string) uint64 {
	return xxhash.Sum64String(cql)
}

func (c *preparedCache) Lookup(cql string) (*request.PreparedEntry, bool) {
	h := hashCQL(cql)
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byHash[h]
	if !ok || c.byText[h] != cql {
		return nil, false
	}
	return e, true
}

func (c *preparedCache) Store(cql string, entry *request.PreparedEntry) {
	h := hashCQL(cql)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byHash[h] = entry
	c.byText[h] = cql
}

// all returns every cached (cql, entry) pair; reprepareAllOn uses it to
// re-issue every statement on a newly added host.
func (c *preparedCache) all() map[string]*request.PreparedEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*request.PreparedEntry, len(c.byHash))
	for h, e := range c.byHash {
		out[c.byText[h]] = e
	}
	return out
}
