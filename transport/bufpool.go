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

package transport

import "sync"

const defaultBufSize = 64 * 1024

// bufferPool hands out scratch buffers for reading frame bodies off the
// wire. The scratch buffer never escapes the read loop: its contents are
// copied into a right-sized frame body before the scratch is returned to
// the pool, so a concurrent get() can never alias live, still-in-use data.
// An LRU cache's eviction-by-recency semantics don't fit this reuse
// pattern — there's nothing to evict, only to recycle — so this stays on
// sync.Pool (see DESIGN.md's "Dropped teacher direct dependencies" for
// why hashicorp/golang-lru isn't wired in anywhere in this module).
type bufferPool struct {
	pool sync.Pool
}

func newBufferPool() *bufferPool {
	return &bufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				b := make([]byte, defaultBufSize)
				return &b
			},
		},
	}
}

// readInto reads exactly n bytes via readFn into a scratch buffer (pooled
// when n fits defaultBufSize, heap-allocated otherwise) and returns a
// freshly allocated, exact-size copy safe to hand off to another
// goroutine.
func (p *bufferPool) readInto(n int, readFn func([]byte) error) ([]byte, error) {
	if n <= 0 {
		return []byte{}, nil
	}

	if n > defaultBufSize {
		buf := make([]byte, n)
		if err := readFn(buf); err != nil {
			return nil, err
		}
		return buf, nil
	}

	ptr := p.pool.Get().(*[]byte)
	defer p.pool.Put(ptr)

	scratch := (*ptr)[:n]
	if err := readFn(scratch); err != nil {
		return nil, err
	}

	out := make([]byte, n)
	copy(out, scratch)
	return out, nil
}
