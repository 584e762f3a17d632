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
)

// HeaderSize is the fixed 9-byte frame header (spec.md §6):
// version(u8) | flags(u8) | stream(i16) | opcode(u8) | length(i32).
const HeaderSize = 9

// MaxFrameLength guards against a corrupt/hostile length field before any
// allocation happens.
const MaxFrameLength = 256 * 1024 * 1024

var (
	ErrFrameTooLarge  = stderr.New("protocol: frame length exceeds maximum")
	ErrUnknownVersion = stderr.New("protocol: unrecognized protocol version byte")
)

// directionResponse is the high bit of the version byte.
const directionResponse = 0x80

// Header is the decoded 9-byte frame header.
type Header struct {
	Version  Version
	Flags    Flags
	StreamID int16
	Opcode   Opcode
	Length   int32
}

// IsResponse always reports true: DecodeHeader drops the version byte's
// direction bit, so a Header does not record which way the frame went.
func (h Header) IsResponse() bool { return true }

// EncodeHeader writes a request-direction header (the driver only ever
// writes requests; DecodeHeader strips the direction bit from an inbound
// version byte).
func EncodeHeader(h Header) []byte {
	out := make([]byte, HeaderSize)
	out[0] = byte(h.Version)
	out[1] = byte(h.Flags)
	out[2] = byte(uint16(h.StreamID) >> 8)
	out[3] = byte(uint16(h.StreamID))
	out[4] = byte(h.Opcode)

	u := uint32(h.Length)
	out[5] = byte(u >> 24)
	out[6] = byte(u >> 16)
	out[7] = byte(u >> 8)
	out[8] = byte(u)

	return out
}

// DecodeHeader parses the 9-byte header prefix of buf. It does not validate
// that buf contains the full frame body.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrShortBuffer
	}

	versionByte := buf[0] &^ directionResponse
	switch Version(versionByte) {
	case V3, V4, V5:
	default:
		return Header{}, fmt.Errorf("%w: 0x%02x", ErrUnknownVersion, buf[0])
	}

	stream := int16(uint16(buf[2])<<8 | uint16(buf[3]))
	length := int32(uint32(buf[5])<<24 | uint32(buf[6])<<16 | uint32(buf[7])<<8 | uint32(buf[8]))

	if length < 0 || length > MaxFrameLength {
		return Header{}, ErrFrameTooLarge
	}

	return Header{
		Version:  Version(versionByte),
		Flags:    Flags(buf[1]),
		StreamID: stream,
		Opcode:   Opcode(buf[4]),
		Length:   length,
	}, nil
}

// Frame is a fully-assembled frame: header plus (decompressed) body.
type Frame struct {
	Header Header
	Body   []byte
}

// ReadFrame attempts to parse one complete frame from the head of buf. It
// returns (Frame{}, 0, ErrShortBuffer) when buf does not yet
// hold a full frame — the caller's transport-level reassembly buffer
// retries once more bytes arrive (spec.md §4.2: "reassembles complete
// frames from an arbitrarily fragmented TCP byte stream").
func ReadFrame(buf []byte) (Frame, int, error) {
	hdr, err := DecodeHeader(buf)
	if err != nil {
		return Frame{}, 0, err
	}

	total := HeaderSize + int(hdr.Length)
	if len(buf) < total {
		return Frame{}, 0, ErrShortBuffer
	}

	body := make([]byte, hdr.Length)
	copy(body, buf[HeaderSize:total])

	return Frame{Header: hdr, Body: body}, total, nil
}

// WriteFrame serializes a header + body into one contiguous buffer.
func WriteFrame(h Header, body []byte) []byte {
	h.Length = int32(len(body))
	out := make([]byte, 0, HeaderSize+len(body))
	out = append(out, EncodeHeader(h)...)
	out = append(out, body...)
	return out
}
