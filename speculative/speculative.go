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

// Package speculative implements spec.md §4.8's speculative-execution
// policy: scheduling extra parallel attempts of an idempotent request to
// bound tail latency. The request handler (request/) consults this on
// every write and races whichever executions it starts.
package speculative

import "time"

// NoMore is returned by NextExecution once the policy will never start
// another parallel attempt for this request.
const NoMore time.Duration = -1

// Now means "start the next execution immediately".
const Now time.Duration = 0

// Plan is a per-request, single-use iterator handed out by a Policy; the
// handler calls Next after every execution attempt starts.
type Plan interface {
	// Next returns the wait before the next execution, NoMore to stop, or
	// Now to start immediately.
	Next() time.Duration
}

// Policy produces a Plan for one request (spec.md §4.8: "next_execution
// (current_host) -> wait_ms | 0 (now) | -1 (no more)").
type Policy interface {
	NewPlan() Plan
}

// None disables speculative execution entirely.
type None struct{}

type nonePlan struct{}

func (None) NewPlan() Plan   { return nonePlan{} }
func (nonePlan) Next() time.Duration { return NoMore }

// Constant starts up to Max extra executions, Delay apart.
type Constant struct {
	Delay time.Duration
	Max   int
}

func (c Constant) NewPlan() Plan {
	return &constantPlan{delay: c.Delay, remaining: c.Max}
}

type constantPlan struct {
	delay     time.Duration
	remaining int
	started   int
}

func (p *constantPlan) Next() time.Duration {
	if p.remaining <= 0 {
		return NoMore
	}
	p.remaining--
	if p.started == 0 {
		p.started++
		return p.delay
	}
	p.started++
	return p.delay
}
