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

// Compressor wraps lz4 body compression negotiated via STARTUP's
// COMPRESSION option (spec.md §4.1/§6); snappy is named by the protocol
// but not carried by the teacher's dependency set, so only lz4 is wired,
// using the same lz4.NewReader/lz4.NewWriter stream wrapping the
// teacher's archive/compress package uses for its own lz4 codec.
package protocol

import (
	"bytes"
	stderr "errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

const CompressionLZ4 = "lz4"

var ErrUnknownCompression = stderr.New("protocol: unknown compression algorithm")

// Compressor (de)compresses frame bodies when Flags.FlagCompression is set.
type Compressor interface {
	Name() string
	Compress(body []byte) ([]byte, error)
	Decompress(compressed []byte) ([]byte, error)
}

// NewCompressor returns the Compressor for name, as negotiated during
// STARTUP/SUPPORTED option exchange.
func NewCompressor(name string) (Compressor, error) {
	switch name {
	case CompressionLZ4:
		return lz4Compressor{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, name)
	}
}

// lz4Compressor frames bodies the way the protocol expects for non-startup
// frames: a leading i32 uncompressed-length prefix followed by the
// lz4-compressed payload.
type lz4Compressor struct{}

func (lz4Compressor) Name() string { return CompressionLZ4 }

func (lz4Compressor) Compress(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0})

	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	out := buf.Bytes()
	putI32(out[:4], int32(len(body)))
	return out, nil
}

func (lz4Compressor) Decompress(compressed []byte) ([]byte, error) {
	if len(compressed) < 4 {
		return nil, ErrShortBuffer
	}

	n := int32(uint32(compressed[0])<<24 | uint32(compressed[1])<<16 | uint32(compressed[2])<<8 | uint32(compressed[3]))
	if n < 0 {
		return nil, fmt.Errorf("protocol: negative decompressed length %d", n)
	}
	if n == 0 {
		return []byte{}, nil
	}

	out := make([]byte, n)
	zr := lz4.NewReader(bytes.NewReader(compressed[4:]))
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("protocol: lz4 decompress: %w", err)
	}
	return out, nil
}

func putI32(b []byte, v int32) {
	u := uint32(v)
	b[0] = byte(u >> 24)
	b[1] = byte(u >> 16)
	b[2] = byte(u >> 8)
	b[3] = byte(u)
}
