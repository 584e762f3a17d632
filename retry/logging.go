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

package retry

import (
	"github.com/sabouaram/cassandra-core/logger"
	logfld "github.com/sabouaram/cassandra-core/logger/fields"
	"github.com/sabouaram/cassandra-core/protocol"
)

// Logging wraps a Policy and logs every non-ReturnError decision, passing
// the outcome through unchanged (spec.md §4.8: "policies may be wrapped
// by a LoggingRetryPolicy that passes through but logs each
// non-RETURN_ERROR decision").
type Logging struct {
	Wrapped Policy
	Log     logger.Logger
}

func (l Logging) log(kind string, o Outcome) Outcome {
	if o.Decision == ReturnError || l.Log == nil {
		return o
	}
	verb := "retrying"
	if o.Decision == Ignore {
		verb = "ignoring"
	}
	l.Log.Info(verb+" after "+kind, logfld.New().Add("decision", o.Decision).Add("same_host", o.SameHost))
	return o
}

func (l Logging) OnReadTimeout(cl protocol.Consistency, received, blockFor int32, dataPresent bool, retryCount int) Outcome {
	return l.log("read timeout", l.Wrapped.OnReadTimeout(cl, received, blockFor, dataPresent, retryCount))
}

func (l Logging) OnWriteTimeout(cl protocol.Consistency, received, blockFor int32, writeType protocol.WriteType, idempotent bool, retryCount int) Outcome {
	return l.log("write timeout", l.Wrapped.OnWriteTimeout(cl, received, blockFor, writeType, idempotent, retryCount))
}

func (l Logging) OnUnavailable(cl protocol.Consistency, required, alive int32, retryCount int) Outcome {
	return l.log("unavailable", l.Wrapped.OnUnavailable(cl, required, alive, retryCount))
}

func (l Logging) OnRequestError(idempotent bool, retryCount int) Outcome {
	return l.log("request error", l.Wrapped.OnRequestError(idempotent, retryCount))
}
