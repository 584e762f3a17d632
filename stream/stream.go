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

// Package stream manages the per-connection stream-id space (spec.md C3):
// ids 0..max-1 handed out to in-flight requests so one TCP connection can
// multiplex many concurrent requests. Acquire/Release are safe for
// concurrent use: a mutex guards the bitset, because conn/ acquires and
// releases ids from each caller's goroutine as well as its dispatch loop.
package stream

import (
	"context"
	stderr "errors"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// NoStreams is returned by Acquire when every id is in use. Acquire
// itself never blocks; a caller that wants to park until an id frees up
// (spec.md §4.4: "NO_STREAMS on current connection → park") calls
// AcquireWait instead.
const NoStreams int16 = -1

var ErrInvalidStreamID = stderr.New("stream: id out of range")

// Manager hands out and reclaims stream ids for one connection.
type Manager interface {
	// Acquire returns the lowest free id, or NoStreams if the pool is
	// exhausted.
	Acquire() int16
	// AcquireWait blocks until a stream id frees up or ctx is done,
	// parking the caller the way spec.md §4.4/§5 describes a stream-
	// exhaustion suspension point: it never fails the request outright,
	// it waits for the next Release.
	AcquireWait(ctx context.Context) (int16, error)
	// Release frees id. Releasing an id that is not currently held is a
	// no-op (idempotent release, spec.md §8: "a stream id is released
	// exactly once"). Release wakes one parked AcquireWait caller, if any.
	Release(id int16)
	// InUse reports how many ids are currently allocated.
	InUse() int
	// Max reports the configured id space size.
	Max() int
}

type manager struct {
	mu      sync.Mutex
	max     int
	bits    *bitset.BitSet
	used    int
	waiters []chan struct{}
}

// New returns a Manager governing the id space [0, max).
func New(max int) Manager {
	return &manager{max: max, bits: bitset.New(uint(max))}
}

func (m *manager) Acquire() int16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquireLocked()
}

func (m *manager) acquireLocked() int16 {
	for i := 0; i < m.max; i++ {
		if !m.bits.Test(uint(i)) {
			m.bits.Set(uint(i))
			m.used++
			return int16(i)
		}
	}
	return NoStreams
}

func (m *manager) AcquireWait(ctx context.Context) (int16, error) {
	for {
		m.mu.Lock()
		if id := m.acquireLocked(); id != NoStreams {
			m.mu.Unlock()
			return id, nil
		}
		wake := make(chan struct{})
		m.waiters = append(m.waiters, wake)
		m.mu.Unlock()

		select {
		case <-wake:
			// a Release happened; loop around and try to acquire again.
		case <-ctx.Done():
			return NoStreams, ctx.Err()
		}
	}
}

func (m *manager) Release(id int16) {
	m.mu.Lock()
	if id >= 0 && int(id) < m.max && m.bits.Test(uint(id)) {
		m.bits.Clear(uint(id))
		m.used--
	}
	var wake chan struct{}
	if len(m.waiters) > 0 {
		wake, m.waiters = m.waiters[0], m.waiters[1:]
	}
	m.mu.Unlock()

	if wake != nil {
		close(wake)
	}
}

func (m *manager) InUse() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}

func (m *manager) Max() int { return m.max }
