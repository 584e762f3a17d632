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

// Package regmap is a generic thread-safe registry, the one shared-mutable
// structure (besides the prepared-statement cache and per-thread request
// queues) that crosses event-loop-thread boundaries per spec.md §5. It
// backs the host registry and the prepared-statement cache: readers get a
// consistent, independently-locked view; writes are rare broadcasts.
package regmap

import "sync"

// FuncWalk is called for every key/value pair during Walk; returning false
// stops the iteration early.
type FuncWalk[K comparable, V any] func(key K, val V) bool

// Map is a generic, concurrency-safe key/value registry.
type Map[K comparable, V any] interface {
	Load(key K) (val V, ok bool)
	Store(key K, val V)
	Delete(key K)
	LoadOrStore(key K, val V) (actual V, loaded bool)
	LoadAndDelete(key K) (val V, loaded bool)
	Walk(fct FuncWalk[K, V])
	Len() int
	Clean()
	// Snapshot returns an immutable point-in-time copy, used by query-plan
	// construction (spec.md §4.7: "tolerate concurrent host additions/
	// removals; return the snapshot taken at plan creation").
	Snapshot() map[K]V
}

type regMap[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// New returns an empty Map[K,V].
func New[K comparable, V any]() Map[K, V] {
	return &regMap[K, V]{m: make(map[K]V)}
}

func (r *regMap[K, V]) Load(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.m[key]
	return v, ok
}

func (r *regMap[K, V]) Store(key K, val V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[key] = val
}

func (r *regMap[K, V]) Delete(key K) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, key)
}

func (r *regMap[K, V]) LoadOrStore(key K, val V) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.m[key]; ok {
		return v, true
	}
	r.m[key] = val
	return val, false
}

func (r *regMap[K, V]) LoadAndDelete(key K) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.m[key]
	if ok {
		delete(r.m, key)
	}
	return v, ok
}

func (r *regMap[K, V]) Walk(fct FuncWalk[K, V]) {
	for k, v := range r.Snapshot() {
		if !fct(k, v) {
			return
		}
	}
}

func (r *regMap[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

func (r *regMap[K, V]) Clean() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m = make(map[K]V)
}

func (r *regMap[K, V]) Snapshot() map[K]V {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[K]V, len(r.m))
	for k, v := range r.m {
		out[k] = v
	}
	return out
}
