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
	uuid "github.com/hashicorp/go-uuid"

	"github.com/sabouaram/cassandra-core/protocol"
)

// TimestampGenerator produces the client-supplied write timestamp, in
// microseconds since the epoch (spec.md "Request wrapper": "client
// timestamp (from a generator)").
type TimestampGenerator func() int64

// newCorrelationID mints a per-request id distinct from any wire UUID
// primitive; used only for tracing/logging so an operator can follow one
// request across its retries and speculative executions. A failure here
// degrades to an empty id rather than failing the request.
func newCorrelationID() string {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return ""
	}
	return id
}

// withTimestamp stamps req with ts unless the caller already supplied an
// explicit timestamp on the QueryParams/Batch (HasTimestamp true wins).
func withTimestamp(req protocol.Request, ts int64) protocol.Request {
	switch r := req.(type) {
	case protocol.Query:
		if !r.Params.HasTimestamp {
			r.Params.DefaultTimestamp = ts
			r.Params.HasTimestamp = true
		}
		return r
	case protocol.Execute:
		if !r.Params.HasTimestamp {
			r.Params.DefaultTimestamp = ts
			r.Params.HasTimestamp = true
		}
		return r
	case protocol.Batch:
		if !r.HasTimestamp {
			r.DefaultTimestamp = ts
			r.HasTimestamp = true
		}
		return r
	default:
		return req
	}
}
