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

package protocol

import "math"

// Writer accumulates an encoded request body. It mirrors Reader's
// primitive set on the write side.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) WriteU8(v uint8) { w.buf = append(w.buf, v) }
func (w *Writer) WriteI8(v int8)  { w.WriteU8(uint8(v)) }

func (w *Writer) WriteU16(v uint16) { w.buf = append(w.buf, byte(v>>8), byte(v)) }
func (w *Writer) WriteI16(v int16)  { w.WriteU16(uint16(v)) }

func (w *Writer) WriteU32(v uint32) {
	w.buf = append(w.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
func (w *Writer) WriteI32(v int32) { w.WriteU32(uint32(v)) }

func (w *Writer) WriteI64(v int64) {
	u := uint64(v)
	w.buf = append(w.buf,
		byte(u>>56), byte(u>>48), byte(u>>40), byte(u>>32),
		byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
}

func (w *Writer) WriteF32(v float32) { w.WriteU32(math.Float32bits(v)) }
func (w *Writer) WriteF64(v float64) { w.WriteI64(int64(math.Float64bits(v))) }

func (w *Writer) WriteShortString(s string) {
	w.WriteU16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *Writer) WriteLongString(s string) {
	w.WriteI32(int32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteBytes writes an i32-length-prefixed byte slice; a nil slice is
// encoded as the null marker (length -1).
func (w *Writer) WriteBytes(b []byte) {
	if b == nil {
		w.WriteI32(-1)
		return
	}
	w.WriteI32(int32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *Writer) WriteShortBytes(b []byte) {
	w.WriteU16(uint16(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *Writer) WriteStringList(list []string) {
	w.WriteU16(uint16(len(list)))
	for _, s := range list {
		w.WriteShortString(s)
	}
}

func (w *Writer) WriteStringMap(m map[string]string) {
	w.WriteU16(uint16(len(m)))
	for k, v := range m {
		w.WriteShortString(k)
		w.WriteShortString(v)
	}
}

func (w *Writer) WriteBytesMap(m map[string][]byte) {
	w.WriteU16(uint16(len(m)))
	for k, v := range m {
		w.WriteShortString(k)
		w.WriteBytes(v)
	}
}

func (w *Writer) WriteRawUUID(id [16]byte) {
	w.buf = append(w.buf, id[:]...)
}

func (w *Writer) WriteInet(in Inet) {
	w.WriteU8(uint8(len(in.IP)))
	w.buf = append(w.buf, in.IP...)
	w.WriteI32(in.Port)
}

func (w *Writer) WriteRaw(b []byte) { w.buf = append(w.buf, b...) }
