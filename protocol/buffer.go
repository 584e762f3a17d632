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

import (
	stderr "errors"
	"fmt"
	"math"
)

// ErrShortBuffer means the decoder ran off the end of the data it currently
// has — NOT a malformed frame. The caller (transport's ring buffer reader)
// should wait for more bytes and retry; it must never be treated as a
// protocol violation on its own (spec.md §4.1: "validates remaining-bytes
// against every advance and fails the frame on truncation [...] never reads
// past the buffer").
var ErrShortBuffer = stderr.New("protocol: short buffer")

// Reader decodes primitives from an in-memory byte slice. Every primitive
// has a decode form (advances); U8, U16 and U32 also have a peek form
// (does not advance). This
// mirrors the teacher's encoding byte-buffer idiom adapted to the CQL wire
// primitives of spec.md §4.1.
type Reader struct {
	buf []byte
	off int
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) need(n int) error {
	if n < 0 || r.Remaining() < n {
		return ErrShortBuffer
	}
	return nil
}

// Bytes returns the unconsumed tail without advancing.
func (r *Reader) Bytes() []byte { return r.buf[r.off:] }

func (r *Reader) advance(n int) []byte {
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

// --- u8 / i8 ---

func (r *Reader) PeekU8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	return r.buf[r.off], nil
}

func (r *Reader) DecodeU8() (uint8, error) {
	v, err := r.PeekU8()
	if err != nil {
		return 0, err
	}
	r.off++
	return v, nil
}

func (r *Reader) DecodeI8() (int8, error) {
	v, err := r.DecodeU8()
	return int8(v), err
}

// --- u16 / i16 ---

func (r *Reader) PeekU16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	b := r.buf[r.off:]
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

func (r *Reader) DecodeU16() (uint16, error) {
	v, err := r.PeekU16()
	if err != nil {
		return 0, err
	}
	r.off += 2
	return v, nil
}

func (r *Reader) DecodeI16() (int16, error) {
	v, err := r.DecodeU16()
	return int16(v), err
}

// --- u32 / i32 ---

func (r *Reader) PeekU32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	b := r.buf[r.off:]
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

func (r *Reader) DecodeU32() (uint32, error) {
	v, err := r.PeekU32()
	if err != nil {
		return 0, err
	}
	r.off += 4
	return v, nil
}

func (r *Reader) DecodeI32() (int32, error) {
	v, err := r.DecodeU32()
	return int32(v), err
}

// --- i64 ---

func (r *Reader) DecodeI64() (int64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	b := r.advance(8)
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return int64(v), nil
}

// --- f32 / f64 ---

func (r *Reader) DecodeF32() (float32, error) {
	v, err := r.DecodeU32()
	if err != nil {
		return 0, err
	}
	return u32ToF32(v), nil
}

func (r *Reader) DecodeF64() (float64, error) {
	v, err := r.DecodeI64()
	if err != nil {
		return 0, err
	}
	return i64ToF64(v), nil
}

// --- short-string: u16 length + bytes ---

func (r *Reader) DecodeShortString() (string, error) {
	n, err := r.DecodeU16()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	return string(r.advance(int(n))), nil
}

// --- long-string: i32 length + bytes ---

func (r *Reader) DecodeLongString() (string, error) {
	n, err := r.DecodeI32()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("protocol: negative long-string length %d", n)
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	return string(r.advance(int(n))), nil
}

// --- bytes: i32 length (negative => null) ---

func (r *Reader) DecodeBytes() ([]byte, error) {
	n, err := r.DecodeI32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil // null
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	if n == 0 {
		return []byte{}, nil
	}
	out := make([]byte, n)
	copy(out, r.advance(int(n)))
	return out, nil
}

// --- inet: u8 length (4 or 16) + bytes + i32 port ---

type Inet struct {
	IP   []byte // 4 or 16 bytes
	Port int32
}

func (r *Reader) DecodeInet() (Inet, error) {
	n, err := r.DecodeU8()
	if err != nil {
		return Inet{}, err
	}
	if n != 4 && n != 16 {
		return Inet{}, fmt.Errorf("protocol: invalid inet address length %d", n)
	}
	if err := r.need(int(n)); err != nil {
		return Inet{}, err
	}
	ip := make([]byte, n)
	copy(ip, r.advance(int(n)))

	port, err := r.DecodeI32()
	if err != nil {
		return Inet{}, err
	}

	return Inet{IP: ip, Port: port}, nil
}

// --- stringlist: u16 count + short-strings ---

func (r *Reader) DecodeStringList() ([]string, error) {
	n, err := r.DecodeU16()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := 0; i < int(n); i++ {
		s, err := r.DecodeShortString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// --- string map: u16 count + (short-string, short-string) pairs ---

func (r *Reader) DecodeStringMap() (map[string]string, error) {
	n, err := r.DecodeU16()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, n)
	for i := 0; i < int(n); i++ {
		k, err := r.DecodeShortString()
		if err != nil {
			return nil, err
		}
		v, err := r.DecodeShortString()
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// --- string multimap: u16 count + (short-string, stringlist) pairs ---

func (r *Reader) DecodeStringMultimap() (map[string][]string, error) {
	n, err := r.DecodeU16()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, n)
	for i := 0; i < int(n); i++ {
		k, err := r.DecodeShortString()
		if err != nil {
			return nil, err
		}
		v, err := r.DecodeStringList()
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// --- bytes map: used for CUSTOM_PAYLOAD (u16 count + (short-string, bytes)) ---

func (r *Reader) DecodeBytesMap() (map[string][]byte, error) {
	n, err := r.DecodeU16()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, n)
	for i := 0; i < int(n); i++ {
		k, err := r.DecodeShortString()
		if err != nil {
			return nil, err
		}
		v, err := r.DecodeBytes()
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// --- UUID: 16 raw bytes ---

func (r *Reader) DecodeRawUUID() ([16]byte, error) {
	var out [16]byte
	if err := r.need(16); err != nil {
		return out, err
	}
	copy(out[:], r.advance(16))
	return out, nil
}

// --- CQL option: u16 type id + optional custom class name ---

type Option struct {
	ID    uint16
	Value string // custom class name, only meaningful when ID == 0x0000 (Custom)
}

const optionCustom = 0x0000

func (r *Reader) DecodeOption() (Option, error) {
	id, err := r.DecodeU16()
	if err != nil {
		return Option{}, err
	}
	if id == optionCustom {
		s, err := r.DecodeShortString()
		if err != nil {
			return Option{}, err
		}
		return Option{ID: id, Value: s}, nil
	}
	return Option{ID: id}, nil
}

func u32ToF32(v uint32) float32 {
	return math.Float32frombits(v)
}

func i64ToF64(v int64) float64 {
	return math.Float64frombits(uint64(v))
}
