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

// vlong/zigzag/decimal/duration: the CQL variable-length integer family
// (spec.md §4.1). vlong is a zigzag-encoded value whose byte count is given
// by the number of leading 1-bits (MSB-run) in the first byte, mirroring
// the protocol's canonical varint framing.
package protocol

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// EncodeZigZag64 maps a signed int64 to an unsigned varint-friendly form.
func EncodeZigZag64(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

// DecodeZigZag64 is the inverse of EncodeZigZag64.
func DecodeZigZag64(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

// DecodeZigZagLong reads a zigzag-encoded vint and un-zigzags it.
func (r *Reader) DecodeZigZagLong() (int64, error) {
	v, err := r.decodeVarintUnsigned()
	if err != nil {
		return 0, err
	}
	return DecodeZigZag64(v), nil
}

// DecodeVLong reads a vint and zigzag-decodes it (alias used for the
// "vlong" primitive named in spec.md §4.1, identical wire shape to
// zigzag-long but surfaced as its own named primitive per the spec).
func (r *Reader) DecodeVLong() (int64, error) {
	return r.DecodeZigZagLong()
}

// decodeVarintUnsigned implements the MSB-run length prefix: the number of
// leading 1-bits in the first byte gives the count of EXTRA bytes that
// follow (0 extra bytes => the 8-bit value fits after masking the leading
// 1-run); this is the canonical CQL vint encoding.
func (r *Reader) decodeVarintUnsigned() (uint64, error) {
	first, err := r.DecodeU8()
	if err != nil {
		return 0, err
	}

	extraBytes := leadingOnes(first)
	if extraBytes == 0 {
		return uint64(first), nil
	}

	if err := r.need(extraBytes); err != nil {
		return 0, err
	}

	value := uint64(first & (0xFF >> uint(extraBytes)))
	for i := 0; i < extraBytes; i++ {
		b, _ := r.DecodeU8()
		value = value<<8 | uint64(b)
	}

	return value, nil
}

func leadingOnes(b byte) int {
	n := 0
	for i := 7; i >= 0; i-- {
		if b&(1<<uint(i)) == 0 {
			break
		}
		n++
	}
	return n
}

// EncodeVarintUnsigned writes the MSB-run-length-prefixed unsigned varint.
func EncodeVarintUnsigned(v uint64) []byte {
	// Determine minimal number of bytes needed to hold v.
	n := 1
	for tmp := v >> 7; tmp != 0; tmp >>= 7 {
		n++
	}
	if n > 9 {
		n = 9
	}

	if n == 1 && v < 0x80 {
		return []byte{byte(v)}
	}

	extra := n - 1
	out := make([]byte, n)

	// first byte: `extra` leading 1-bits, then 0, then remaining high bits
	mask := byte(0xFF << uint(8-extra))
	remBits := 8 - extra - 1
	firstByteData := byte((v >> uint(extra*8)) & ((1 << uint(remBits)) - 1))
	out[0] = mask | firstByteData

	for i := 1; i <= extra; i++ {
		shift := uint(extra-i) * 8
		out[i] = byte(v >> shift)
	}

	return out
}

// EncodeZigZagLong encodes a signed value as a zigzag vint.
func EncodeZigZagLong(v int64) []byte {
	return EncodeVarintUnsigned(EncodeZigZag64(v))
}

// Decimal is the decoded representation of the CQL `decimal` primitive:
// i32 scale + a variable-length two's-complement integer (the unscaled
// value), surfaced via shopspring/decimal for arithmetic-correct handling.
type Decimal struct {
	Scale    int32
	Unscaled *big.Int
}

func (d Decimal) ToShopspring() decimal.Decimal {
	return decimal.NewFromBigInt(d.Unscaled, -d.Scale)
}

func DecimalFromShopspring(d decimal.Decimal) Decimal {
	return Decimal{Scale: d.Exponent() * -1, Unscaled: d.Coefficient()}
}

func (r *Reader) DecodeDecimal() (Decimal, error) {
	scale, err := r.DecodeI32()
	if err != nil {
		return Decimal{}, err
	}

	n, err := r.DecodeI32()
	if err != nil {
		return Decimal{}, err
	}
	if n < 0 {
		return Decimal{}, fmt.Errorf("protocol: negative decimal unscaled length %d", n)
	}
	if err := r.need(int(n)); err != nil {
		return Decimal{}, err
	}

	raw := r.advance(int(n))
	unscaled := new(big.Int).SetBytes(signedMagnitude(raw))
	if len(raw) > 0 && raw[0]&0x80 != 0 {
		// two's complement negative
		full := new(big.Int).Lsh(big.NewInt(1), uint(len(raw)*8))
		unscaled = new(big.Int).Sub(new(big.Int).SetBytes(raw), full)
	} else {
		unscaled = new(big.Int).SetBytes(raw)
	}

	return Decimal{Scale: scale, Unscaled: unscaled}, nil
}

func signedMagnitude(b []byte) []byte { return b }

// EncodeDecimal writes the i32 scale + two's-complement unscaled value.
func EncodeDecimal(d Decimal) []byte {
	unscaled := d.Unscaled
	if unscaled == nil {
		unscaled = big.NewInt(0)
	}

	var raw []byte
	if unscaled.Sign() >= 0 {
		raw = unscaled.Bytes()
		if len(raw) == 0 || raw[0]&0x80 != 0 {
			raw = append([]byte{0x00}, raw...)
		}
	} else {
		bitLen := unscaled.BitLen() + 1
		nBytes := (bitLen + 7) / 8
		mod := new(big.Int).Lsh(big.NewInt(1), uint(nBytes*8))
		twos := new(big.Int).Add(mod, unscaled)
		raw = twos.Bytes()
		for len(raw) < nBytes {
			raw = append([]byte{0x00}, raw...)
		}
	}

	out := make([]byte, 0, 8+len(raw))
	out = append(out, i32Bytes(d.Scale)...)
	out = append(out, i32Bytes(int32(len(raw)))...)
	out = append(out, raw...)
	return out
}

func i32Bytes(v int32) []byte {
	u := uint32(v)
	return []byte{byte(u >> 24), byte(u >> 16), byte(u >> 8), byte(u)}
}

// CQLDuration is the decoded representation of the CQL `duration` primitive:
// three zigzag vints (months, days, nanos). Mixed signs across the three
// components are rejected per spec.md §8 ("mixed-sign months/days/nanos is
// rejected").
type CQLDuration struct {
	Months int64
	Days   int64
	Nanos  int64
}

func (r *Reader) DecodeCQLDuration() (CQLDuration, error) {
	months, err := r.DecodeZigZagLong()
	if err != nil {
		return CQLDuration{}, err
	}
	days, err := r.DecodeZigZagLong()
	if err != nil {
		return CQLDuration{}, err
	}
	nanos, err := r.DecodeZigZagLong()
	if err != nil {
		return CQLDuration{}, err
	}
	return CQLDuration{Months: months, Days: days, Nanos: nanos}, nil
}

// Validate enforces the "no mixed signs" invariant for client-side encode.
func (d CQLDuration) Validate() error {
	sign := func(v int64) int {
		switch {
		case v > 0:
			return 1
		case v < 0:
			return -1
		default:
			return 0
		}
	}

	signs := []int{sign(d.Months), sign(d.Days), sign(d.Nanos)}
	pos, neg := false, false
	for _, s := range signs {
		if s > 0 {
			pos = true
		}
		if s < 0 {
			neg = true
		}
	}
	if pos && neg {
		return fmt.Errorf("protocol: duration has mixed-sign components (months=%d days=%d nanos=%d)", d.Months, d.Days, d.Nanos)
	}
	return nil
}

func EncodeCQLDuration(d CQLDuration) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	out := make([]byte, 0, 27)
	out = append(out, EncodeZigZagLong(d.Months)...)
	out = append(out, EncodeZigZagLong(d.Days)...)
	out = append(out, EncodeZigZagLong(d.Nanos)...)
	return out, nil
}
