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

// Package retry implements the decision policies of spec.md §4.8: what a
// RequestHandler does after a server ERROR — return it, retry (possibly
// at a different consistency, possibly pinned to the same host), or
// swallow it into an empty result.
package retry

import (
	"github.com/sabouaram/cassandra-core/protocol"
)

// Decision is the disposition a Policy returns for one server error.
type Decision uint8

const (
	ReturnError Decision = iota
	Retry
	Ignore
)

// Outcome carries a Decision plus, for Retry, the consistency to retry at
// and whether the retry must land on the same host.
type Outcome struct {
	Decision    Decision
	Consistency protocol.Consistency
	SameHost    bool
}

func returnError() Outcome { return Outcome{Decision: ReturnError} }
func ignore() Outcome      { return Outcome{Decision: Ignore} }
func retryAt(cl protocol.Consistency, sameHost bool) Outcome {
	return Outcome{Decision: Retry, Consistency: cl, SameHost: sameHost}
}

// Policy is the pluggable retry-decision capability (spec.md §4.8).
// Implementations must be safe for concurrent use across event-loop
// threads; the default implementation below is stateless.
type Policy interface {
	OnReadTimeout(cl protocol.Consistency, received, blockFor int32, dataPresent bool, retryCount int) Outcome
	OnWriteTimeout(cl protocol.Consistency, received, blockFor int32, writeType protocol.WriteType, idempotent bool, retryCount int) Outcome
	OnUnavailable(cl protocol.Consistency, required, alive int32, retryCount int) Outcome
	OnRequestError(idempotent bool, retryCount int) Outcome
}

// Default is spec.md §4.8's default policy:
//   - read timeout / unavailable: retry once on next host at the same CL.
//   - write timeout: retry only for idempotent requests whose write_type
//     is in {SIMPLE, BATCH, BATCH_LOG, UNLOGGED_BATCH}.
//   - request error (server-error/overloaded/truncate) on idempotent
//     requests: retry next host.
type Default struct{}

func (Default) OnReadTimeout(cl protocol.Consistency, _, _ int32, _ bool, retryCount int) Outcome {
	if retryCount > 0 {
		return returnError()
	}
	return retryAt(cl, false)
}

func (Default) OnWriteTimeout(cl protocol.Consistency, _, _ int32, writeType protocol.WriteType, idempotent bool, retryCount int) Outcome {
	if retryCount > 0 || !idempotent || !writeType.IsLoggedBatchFamily() {
		return returnError()
	}
	return retryAt(cl, false)
}

func (Default) OnUnavailable(cl protocol.Consistency, _, _ int32, retryCount int) Outcome {
	if retryCount > 0 {
		return returnError()
	}
	return retryAt(cl, false)
}

func (Default) OnRequestError(idempotent bool, retryCount int) Outcome {
	if !idempotent || retryCount > 0 {
		return returnError()
	}
	return retryAt(0, false) // consistency unchanged; caller keeps current CL
}

// Downgrading wraps Default but lowers the consistency level on retry,
// trading consistency for availability when the cluster can't satisfy
// the originally requested level.
type Downgrading struct {
	Default
}

func (d Downgrading) OnUnavailable(cl protocol.Consistency, required, alive int32, retryCount int) Outcome {
	if retryCount > 0 || alive <= 0 {
		return returnError()
	}
	return retryAt(downgrade(cl), true)
}

func (d Downgrading) OnReadTimeout(cl protocol.Consistency, received, blockFor int32, dataPresent bool, retryCount int) Outcome {
	if retryCount > 0 {
		return returnError()
	}
	if received < blockFor {
		return retryAt(downgrade(cl), true)
	}
	if !dataPresent {
		return retryAt(cl, true)
	}
	return returnError()
}

func downgrade(cl protocol.Consistency) protocol.Consistency {
	switch cl {
	case protocol.ConsistencyEachQuorum, protocol.ConsistencyQuorum, protocol.ConsistencyAll:
		return protocol.ConsistencyLocalQuorum
	case protocol.ConsistencyLocalQuorum:
		return protocol.ConsistencyLocalOne
	default:
		return cl
	}
}
