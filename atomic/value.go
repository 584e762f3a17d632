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

// Package atomic provides a generic, type-safe wrapper around sync/atomic.Value,
// used throughout the driver for lock-free counters and flags that cross the
// event-loop-thread boundary (the host up flag, the published token map,
// request-handler counters, is_done completion flags).
package atomic

import (
	"sync/atomic"
)

// Value is a type-safe atomic box for T.
type Value[T any] interface {
	Load() T
	Store(val T)
	Swap(new T) (old T)
	CompareAndSwap(old, new T) bool
}

type val[T any] struct {
	av atomic.Value
}

type boxed[T any] struct {
	v T
}

// NewValue returns a Value[T] initialized to the zero value of T.
func NewValue[T any]() Value[T] {
	v := &val[T]{}
	var zero T
	v.av.Store(boxed[T]{v: zero})
	return v
}

func (o *val[T]) Load() T {
	b, _ := o.av.Load().(boxed[T])
	return b.v
}

func (o *val[T]) Store(value T) {
	o.av.Store(boxed[T]{v: value})
}

func (o *val[T]) Swap(new T) T {
	old, _ := o.av.Swap(boxed[T]{v: new}).(boxed[T])
	return old.v
}

func (o *val[T]) CompareAndSwap(old, new T) bool {
	return o.av.CompareAndSwap(boxed[T]{v: old}, boxed[T]{v: new})
}

// Counter is a lock-free int64 counter that can be incremented,
// decremented, added to and set, grounded on the same Value[T] idiom but
// backed by atomic.Int64 for the hot increment/decrement paths
// (running_executions, num_retries, the prepare fan-out's remaining count).
type Counter interface {
	Inc() int64
	Dec() int64
	Add(delta int64) int64
	Get() int64
	Set(v int64)
}

type counter struct {
	n atomic.Int64
}

func NewCounter() Counter { return &counter{} }

func (c *counter) Inc() int64          { return c.n.Add(1) }
func (c *counter) Dec() int64          { return c.n.Add(-1) }
func (c *counter) Add(delta int64) int64 { return c.n.Add(delta) }
func (c *counter) Get() int64          { return c.n.Load() }
func (c *counter) Set(v int64)         { c.n.Store(v) }

// Flag is a one-way latch: it transitions false->true exactly once and
// reports whether THIS call performed the transition. Used for is_done,
// released-stream, and future-completed invariants that must fire exactly
// once under concurrent callers.
type Flag interface {
	// TrySet returns true only for the caller that flips the flag.
	TrySet() bool
	IsSet() bool
}

type flag struct {
	b atomic.Bool
}

func NewFlag() Flag { return &flag{} }

func (f *flag) TrySet() bool { return f.b.CompareAndSwap(false, true) }
func (f *flag) IsSet() bool  { return f.b.Load() }
