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

package host

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/sabouaram/cassandra-core/protocol"
)

// The control connection only ever reads a handful of known-shape system
// tables; decoding those few native-type columns directly here is not
// the general value-codec spec.md §1 keeps as an external collaborator
// boundary (no user CQL type ever flows through this file).

func columnIndex(md protocol.RowsMetadata, name string) int {
	for i, c := range md.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func decodeText(b []byte) string {
	if b == nil {
		return ""
	}
	return string(b)
}

func decodeNativeInet(b []byte) (Address, error) {
	switch len(b) {
	case 4:
		return Address{Family: FamilyV4, Octets: b}, nil
	case 16:
		return Address{Family: FamilyV6, Octets: b}, nil
	default:
		return Address{}, fmt.Errorf("host: system-table inet column has length %d", len(b))
	}
}

func decodeNativeUUID(b []byte) string {
	if len(b) != 16 {
		return ""
	}
	id, err := uuid.FromBytes(b)
	if err != nil {
		return ""
	}
	return id.String()
}

// decodeTextSet decodes a set<text>/list<text> column: v3+ collections
// serialize as [i32 count][for each: bytes] — identical shape to the
// bytes primitive, so Reader.DecodeBytes reads each element directly.
func decodeTextSet(b []byte) []string {
	if b == nil {
		return nil
	}
	r := protocol.NewReader(b)
	n, err := r.DecodeI32()
	if err != nil || n <= 0 {
		return nil
	}
	out := make([]string, 0, n)
	for i := int32(0); i < n; i++ {
		elem, err := r.DecodeBytes()
		if err != nil {
			break
		}
		out = append(out, string(elem))
	}
	return out
}

// systemRow is the subset of system.local/system.peers columns the
// control connection needs (spec.md §4.6).
type systemRow struct {
	Peer          Address // rpc_address / the row's own address (for system.local the caller uses the control connection's own address)
	DataCenter    string
	Rack          string
	Tokens        []string
	SchemaVersion string
	HostID        string
	ReleaseVersion string
}

func decodeSystemRows(res *protocol.RowsResult, addrColumn string) []systemRow {
	idxAddr := columnIndex(res.Metadata, addrColumn)
	idxDC := columnIndex(res.Metadata, "data_center")
	idxRack := columnIndex(res.Metadata, "rack")
	idxTokens := columnIndex(res.Metadata, "tokens")
	idxSchema := columnIndex(res.Metadata, "schema_version")
	idxHostID := columnIndex(res.Metadata, "host_id")
	idxRelease := columnIndex(res.Metadata, "release_version")

	out := make([]systemRow, 0, len(res.Rows))
	for _, row := range res.Rows {
		var sr systemRow
		if idxAddr >= 0 && idxAddr < len(row) {
			if addr, err := decodeNativeInet(row[idxAddr]); err == nil {
				sr.Peer = addr
			}
		}
		if idxDC >= 0 && idxDC < len(row) {
			sr.DataCenter = decodeText(row[idxDC])
		}
		if idxRack >= 0 && idxRack < len(row) {
			sr.Rack = decodeText(row[idxRack])
		}
		if idxTokens >= 0 && idxTokens < len(row) {
			sr.Tokens = decodeTextSet(row[idxTokens])
		}
		if idxSchema >= 0 && idxSchema < len(row) {
			sr.SchemaVersion = decodeNativeUUID(row[idxSchema])
		}
		if idxHostID >= 0 && idxHostID < len(row) {
			sr.HostID = decodeNativeUUID(row[idxHostID])
		}
		if idxRelease >= 0 && idxRelease < len(row) {
			sr.ReleaseVersion = decodeText(row[idxRelease])
		}
		out = append(out, sr)
	}
	return out
}
