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

// Package errors implements the driver's two-taxonomy error model: library
// (client-side) kinds and server (wire-mapped) kinds, chained as parents so a
// future can surface the full causal chain of a retry/defunct decision.
package errors

import (
	"runtime"
)

// FuncMap is applied to an Error and every one of its parents by Map.
type FuncMap func(e Error) bool

// Error is a coded, chainable error. It satisfies the stdlib error interface
// plus errors.Is/errors.Unwrap interop.
type Error interface {
	error

	Code() uint16
	CodeSlice() []uint16
	GetCode() CodeError
	GetParentCode() []CodeError
	IsCode(code CodeError) bool
	HasCode(code CodeError) bool

	Is(err error) bool
	IsError(err error) bool
	HasError(err error) bool

	Add(parent ...error)
	SetParent(parent ...error)
	HasParent() bool
	GetParent(withMainError bool) []error

	Map(fct FuncMap) bool
	ContainsString(s string) bool

	StringError() string
	StringErrorSlice() []string
	GetError() error
	GetErrorSlice() []error
	Unwrap() []error

	GetTrace() string
	GetTraceSlice() []string

	// ErrorParent returns a new Error with the same code and message as the
	// receiver, with the given errors appended as parents. It never mutates
	// the receiver.
	ErrorParent(parent ...error) Error
}

// New creates a new Error with the given code and message, capturing the
// caller's frame for diagnostics.
func New(code CodeError, message string) Error {
	return newErr(code, message, callerFrame(2))
}

// Newf is New with fmt-style formatting of message.
func Newf(code CodeError, format string, args ...interface{}) Error {
	return newErr(code, sprintf(format, args...), callerFrame(2))
}

// Wrap builds a new Error from code/message and attaches err as its parent
// (if non-nil). This is the idiom used by retry/defunct paths to chain a
// server error into the library-level disposition that resulted from it.
func Wrap(code CodeError, message string, err error) Error {
	e := newErr(code, message, callerFrame(2))
	if err != nil {
		e.Add(err)
	}
	return e
}

func callerFrame(skip int) runtime.Frame {
	pc := make([]uintptr, 1)
	n := runtime.Callers(skip+1, pc)
	if n == 0 {
		return runtime.Frame{}
	}
	frame, _ := runtime.CallersFrames(pc[:n]).Next()
	return frame
}

func newErr(code CodeError, message string, frame runtime.Frame) *ers {
	return &ers{
		c: code.Uint16(),
		e: message,
		t: frame,
	}
}

func (e *ers) ErrorParent(parent ...error) Error {
	n := &ers{
		c: e.c,
		e: e.e,
		t: e.t,
	}
	n.p = append(n.p, e.p...)
	n.Add(parent...)
	return n
}
