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

package pool

import (
	"math/rand"
	"time"

	durpkg "github.com/sabouaram/cassandra-core/duration"
)

// Backoff is the exponential-with-jitter reconnection schedule of
// spec.md §4.5 ("min(base*2^n, cap) with jitter"). The control
// connection's re-election (spec.md §9 Open Questions: "use the same
// reconnection schedule as pool connections") shares this type rather
// than inventing a second schedule.
type Backoff struct {
	Base durpkg.Duration
	Cap  durpkg.Duration
	rnd  *rand.Rand
}

// NewBackoff returns a Backoff with its own *rand.Rand seeded from the
// current time; a pool-local source avoids lock contention on the global source
// across many concurrent pools.
func NewBackoff(base, ceiling durpkg.Duration) *Backoff {
	return &Backoff{Base: base, Cap: ceiling, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Next returns the delay before reconnection attempt n (0-based).
func (b *Backoff) Next(n int) time.Duration {
	base := b.Base.Duration
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	capD := b.Cap.Duration
	if capD <= 0 {
		capD = 60 * time.Second
	}

	d := base
	for i := 0; i < n && d < capD; i++ {
		d *= 2
	}
	if d > capD {
		d = capD
	}

	return durpkg.New(d).Jitter(0.2, b.rnd.Float64).Duration
}
