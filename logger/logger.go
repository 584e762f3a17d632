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

// Package logger is the driver-wide structured logging facade. Every
// component takes a Logger rather than reaching for the global logrus
// singleton, the way the teacher's logger.Logger is threaded through
// nabbar-golib's components.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	loglvl "github.com/sabouaram/cassandra-core/logger/level"

	logfld "github.com/sabouaram/cassandra-core/logger/fields"
)

// Logger is the minimal structured-logging contract the core depends on.
type Logger interface {
	SetLevel(lvl loglvl.Level)
	GetLevel() loglvl.Level
	SetFields(f logfld.Fields)
	GetFields() logfld.Fields

	Debug(message string, fields logfld.Fields)
	Info(message string, fields logfld.Fields)
	Warning(message string, fields logfld.Fields)
	Error(message string, fields logfld.Fields)

	// With returns a child logger with fields merged into the parent's
	// default fields, the way logrus.Entry.WithFields works.
	With(fields logfld.Fields) Logger
}

type lgr struct {
	mu  sync.RWMutex
	lvl loglvl.Level
	fld logfld.Fields
	out *logrus.Logger
}

// New returns a Logger backed by logrus, writing to stderr by default.
func New() Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	return &lgr{
		lvl: loglvl.InfoLevel,
		fld: logfld.New(),
		out: l,
	}
}

// Discard returns a Logger that drops every message; used by default in
// tests and by components that have not been given an explicit sink.
func Discard() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &lgr{lvl: loglvl.InfoLevel, fld: logfld.New(), out: l}
}

func (l *lgr) SetLevel(lvl loglvl.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lvl = lvl
	l.out.SetLevel(lvl.Logrus())
}

func (l *lgr) GetLevel() loglvl.Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lvl
}

func (l *lgr) SetFields(f logfld.Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fld = f
}

func (l *lgr) GetFields() logfld.Fields {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fld
}

func (l *lgr) With(f logfld.Fields) Logger {
	l.mu.RLock()
	merged := l.fld.Merge(f)
	l.mu.RUnlock()

	return &lgr{lvl: l.GetLevel(), fld: merged, out: l.out}
}

func (l *lgr) entry() *logrus.Entry {
	return l.out.WithFields(l.GetFields().Logrus())
}

func (l *lgr) Debug(message string, fields logfld.Fields)   { l.log(loglvl.DebugLevel, message, fields) }
func (l *lgr) Info(message string, fields logfld.Fields)    { l.log(loglvl.InfoLevel, message, fields) }
func (l *lgr) Warning(message string, fields logfld.Fields) { l.log(loglvl.WarnLevel, message, fields) }
func (l *lgr) Error(message string, fields logfld.Fields)   { l.log(loglvl.ErrorLevel, message, fields) }

func (l *lgr) log(lvl loglvl.Level, message string, fields logfld.Fields) {
	e := l.entry()
	if len(fields) > 0 {
		e = e.WithFields(fields.Logrus())
	}

	switch lvl {
	case loglvl.DebugLevel:
		e.Debug(message)
	case loglvl.WarnLevel:
		e.Warning(message)
	case loglvl.ErrorLevel:
		e.Error(message)
	default:
		e.Info(message)
	}
}
