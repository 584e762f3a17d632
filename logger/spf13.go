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

package logger

import (
	"io"

	jww "github.com/spf13/jwalterweatherman"

	logfld "github.com/sabouaram/cassandra-core/logger/fields"
	loglvl "github.com/sabouaram/cassandra-core/logger/level"
)

// SPF13Bridge returns an io.Writer that forwards jwalterweatherman's output
// (viper's internal diagnostic logger) into this Logger at the given level,
// matching the teacher's Logger.SetSPF13Level idiom so config-loading
// chatter lands on the same sink as the rest of the driver.
func SPF13Bridge(l Logger, lvl loglvl.Level) io.Writer {
	return &jwwWriter{l: l, lvl: lvl}
}

// AttachSPF13 points jww's notepad output/log streams at this Logger.
func AttachSPF13(l Logger, lvl loglvl.Level, notepad *jww.Notepad) {
	w := SPF13Bridge(l, lvl)
	notepad.SetStdoutOutput(w)
	notepad.SetLogOutput(w)
}

type jwwWriter struct {
	l   Logger
	lvl loglvl.Level
}

func (w *jwwWriter) Write(p []byte) (int, error) {
	msg := string(p)
	fields := logfld.New().Add("source", "viper")

	switch w.lvl {
	case loglvl.DebugLevel:
		w.l.Debug(msg, fields)
	case loglvl.WarnLevel:
		w.l.Warning(msg, fields)
	case loglvl.ErrorLevel:
		w.l.Error(msg, fields)
	default:
		w.l.Info(msg, fields)
	}

	return len(p), nil
}
