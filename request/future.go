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

package request

import (
	"context"
	"sync"

	cassatomic "github.com/sabouaram/cassandra-core/atomic"
	"github.com/sabouaram/cassandra-core/protocol"
)

// Future is the handle a caller of Handler.Execute gets back. It completes
// at most once: the first of set_response/set_error wins, every later
// caller (a speculative duplicate, or a late timeout-race) only bumps
// SpeculativeAborted (spec.md §4.9 step 8).
type Future struct {
	done cassatomic.Flag
	aborted cassatomic.Counter

	mu   sync.Mutex
	resp *protocol.Result
	err  error
	cbs  []func(*protocol.Result, error)

	wake chan struct{}
}

// NewFuture returns an incomplete Future.
func NewFuture() *Future {
	return &Future{
		done:    cassatomic.NewFlag(),
		aborted: cassatomic.NewCounter(),
		wake:    make(chan struct{}),
	}
}

// IsDone reports whether a result or error has already been latched.
func (f *Future) IsDone() bool { return f.done.IsSet() }

// SpeculativeAborted is the count of completions that arrived after the
// future was already resolved by another execution.
func (f *Future) SpeculativeAborted() int64 { return f.aborted.Get() }

func (f *Future) setResponse(r *protocol.Result) bool {
	if !f.done.TrySet() {
		f.aborted.Inc()
		return false
	}
	f.mu.Lock()
	f.resp = r
	cbs := f.cbs
	f.mu.Unlock()
	close(f.wake)
	for _, cb := range cbs {
		cb(r, nil)
	}
	return true
}

func (f *Future) setError(err error) bool {
	if !f.done.TrySet() {
		f.aborted.Inc()
		return false
	}
	f.mu.Lock()
	f.err = err
	cbs := f.cbs
	f.mu.Unlock()
	close(f.wake)
	for _, cb := range cbs {
		cb(nil, err)
	}
	return true
}

// OnComplete registers cb to run once the future resolves; if it has
// already resolved, cb runs inline before OnComplete returns.
func (f *Future) OnComplete(cb func(*protocol.Result, error)) {
	f.mu.Lock()
	if f.done.IsSet() {
		resp, err := f.resp, f.err
		f.mu.Unlock()
		cb(resp, err)
		return
	}
	f.cbs = append(f.cbs, cb)
	f.mu.Unlock()
}

// Await blocks until the future resolves or ctx is done, whichever first.
func (f *Future) Await(ctx context.Context) (*protocol.Result, error) {
	select {
	case <-f.wake:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.resp, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel resolves the future with context.Canceled if nothing has set it
// yet; a no-op once the future is already done.
func (f *Future) Cancel() {
	f.setError(context.Canceled)
}
