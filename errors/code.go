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

package errors

// CodeError is a stable numeric identifier for a driver error kind.
// Library kinds live in the 1000s, server-mapped kinds in the 2000s.
type CodeError uint16

func (c CodeError) Uint16() uint16 {
	return uint16(c)
}

// Library (client-side) error kinds, spec.md §7.
const (
	CodeBadParams CodeError = 1000 + iota
	CodeNoStreams
	CodeUnableToInit
	CodeMessageEncode
	CodeHostResolution
	CodeUnexpectedResponse
	CodeRequestQueueFull
	CodeNoHostsAvailable
	CodeWriteError
	CodeUnableToSetKeyspace
	CodeRequestTimedOut
	CodeUnableToDetermineProtocol
	CodeCallbackAlreadySet
	CodeInvalidErrorResultType
	CodeIndexOutOfBounds
	CodeInvalidItemCount
	CodeInvalidValueType
	CodeExecutionProfileInvalid
	CodeNoPagingState
	CodeParameterUnset
	CodeInvalidFutureType
	CodeInternalError
	CodeInvalidCustomType
	CodeInvalidData
	CodeNotEnoughData
	CodeInvalidState
)

// Server (wire-mapped) error kinds, spec.md §7.
const (
	CodeServerError CodeError = 2000 + iota
	CodeProtocolError
	CodeBadCredentials
	CodeUnavailable
	CodeOverloaded
	CodeIsBootstrapping
	CodeTruncateError
	CodeWriteTimeout
	CodeReadTimeout
	CodeReadFailure
	CodeFunctionFailure
	CodeWriteFailure
	CodeSyntaxError
	CodeUnauthorized
	CodeInvalidQuery
	CodeConfigError
	CodeAlreadyExists
	CodeUnprepared
)

var codeText = map[CodeError]string{
	CodeBadParams:                 "bad parameters",
	CodeNoStreams:                 "no streams available",
	CodeUnableToInit:              "unable to initialize",
	CodeMessageEncode:             "message encode failure",
	CodeHostResolution:            "host resolution failure",
	CodeUnexpectedResponse:        "unexpected response",
	CodeRequestQueueFull:          "request queue full",
	CodeNoHostsAvailable:          "no hosts available",
	CodeWriteError:                "write error",
	CodeUnableToSetKeyspace:       "unable to set keyspace",
	CodeRequestTimedOut:           "request timed out",
	CodeUnableToDetermineProtocol: "unable to determine protocol version",
	CodeCallbackAlreadySet:        "callback already set",
	CodeInvalidErrorResultType:    "invalid error result type",
	CodeIndexOutOfBounds:          "index out of bounds",
	CodeInvalidItemCount:          "invalid item count",
	CodeInvalidValueType:          "invalid value type",
	CodeExecutionProfileInvalid:   "invalid execution profile",
	CodeNoPagingState:             "no paging state",
	CodeParameterUnset:            "parameter unset",
	CodeInvalidFutureType:         "invalid future type",
	CodeInternalError:             "internal error",
	CodeInvalidCustomType:         "invalid custom type",
	CodeInvalidData:               "invalid data",
	CodeNotEnoughData:             "not enough data",
	CodeInvalidState:              "invalid state",
	CodeServerError:               "server error",
	CodeProtocolError:             "protocol error",
	CodeBadCredentials:            "bad credentials",
	CodeUnavailable:               "unavailable",
	CodeOverloaded:                "overloaded",
	CodeIsBootstrapping:           "is bootstrapping",
	CodeTruncateError:             "truncate error",
	CodeWriteTimeout:              "write timeout",
	CodeReadTimeout:               "read timeout",
	CodeReadFailure:               "read failure",
	CodeFunctionFailure:           "function failure",
	CodeWriteFailure:              "write failure",
	CodeSyntaxError:               "syntax error",
	CodeUnauthorized:              "unauthorized",
	CodeInvalidQuery:              "invalid query",
	CodeConfigError:               "config error",
	CodeAlreadyExists:             "already exists",
	CodeUnprepared:                "unprepared",
}

func (c CodeError) String() string {
	if s, ok := codeText[c]; ok {
		return s
	}
	return "unknown error"
}

func unicCodeSlice(in []CodeError) []CodeError {
	seen := make(map[CodeError]struct{}, len(in))
	out := make([]CodeError, 0, len(in))
	for _, c := range in {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
