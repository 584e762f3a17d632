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

// Segmenter models protocol v5's segmented-frame envelope (a CRC24 header
// checksum plus a CRC32 payload checksum around one or more coalesced
// frames). It is deliberately not wired into conn/ by default — v5 is
// still beta on the wire (FlagBeta) and the segmented envelope is off the
// spec's critical path (see DESIGN.md's deferred-scope note); this
// interface lets a future v5 connection opt in without touching the
// frame.go/compression.go codec.
package protocol

// Segmenter coalesces or splits raw frame bytes into v5 self-contained or
// multi-frame segments. A real implementation computes the CRC24 header
// checksum and the CRC32 payload checksum described by the v5 spec.
type Segmenter interface {
	// WrapSegment frames payload (one or more already-encoded frames,
	// optionally compressed) into a single v5 segment.
	WrapSegment(payload []byte) ([]byte, error)

	// UnwrapSegment validates and strips a v5 segment envelope, returning
	// the enclosed frame bytes.
	UnwrapSegment(segment []byte) ([]byte, error)
}

// TODO: implement CRC24/CRC32 segmented framing once a v5 cluster target
// is available to validate against; until then Segmenter has no
// production implementation in this package.
