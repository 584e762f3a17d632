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

// Requests are modeled as a closed set of structs implementing Request
// rather than a class hierarchy (spec.md names Query/Prepare/Execute/
// Batch/Register/Options/Startup/AuthResponse as the outbound message
// set) — a tagged sum is the idiomatic Go shape where the teacher's
// source language would reach for inheritance.
package protocol

// Request is any outbound message body; Encode appends the body bytes
// (everything after the 9-byte header) to a Writer.
type Request interface {
	Opcode() Opcode
	Encode(w *Writer, version Version)
}

// Startup is the first message of the handshake (spec.md §4.3).
type Startup struct {
	Options map[string]string // CQL_VERSION, COMPRESSION
}

func (Startup) Opcode() Opcode { return OpStartup }

func (s Startup) Encode(w *Writer, _ Version) {
	w.WriteStringMap(s.Options)
}

// AuthResponse carries a SASL token in reply to an AUTHENTICATE/
// AUTH_CHALLENGE exchange.
type AuthResponse struct {
	Token []byte
}

func (AuthResponse) Opcode() Opcode { return OpAuthResponse }

func (a AuthResponse) Encode(w *Writer, _ Version) {
	w.WriteBytes(a.Token)
}

// Options requests the server's SUPPORTED option map.
type Options struct{}

func (Options) Opcode() Opcode { return OpOptions }
func (Options) Encode(*Writer, Version) {}

// Register subscribes the connection to the named server event types
// (spec.md §4.6: "subscribes its control connection to NEW_NODE,
// REMOVED_NODE, ... ").
type Register struct {
	EventTypes []EventType
}

func (Register) Opcode() Opcode { return OpRegister }

func (r Register) Encode(w *Writer, _ Version) {
	list := make([]string, len(r.EventTypes))
	for i, t := range r.EventTypes {
		list[i] = string(t)
	}
	w.WriteStringList(list)
}

// Values is the bound-variable payload shared by QUERY/EXECUTE/BATCH
// statements: either positional (Positional != nil) or named (Named != nil,
// requires QFWithNames, protocol v3+).
type Values struct {
	Positional [][]byte
	Named      map[string][]byte
}

func (v Values) empty() bool { return len(v.Positional) == 0 && len(v.Named) == 0 }

func (v Values) encode(w *Writer) {
	if len(v.Named) > 0 {
		w.WriteU16(uint16(len(v.Named)))
		for k, val := range v.Named {
			w.WriteShortString(k)
			w.WriteBytes(val)
		}
		return
	}
	w.WriteU16(uint16(len(v.Positional)))
	for _, val := range v.Positional {
		w.WriteBytes(val)
	}
}

// QueryParams is the consistency/flags/paging block shared by QUERY and
// EXECUTE (spec.md §4.1 QUERY/EXECUTE parameter bitflags).
type QueryParams struct {
	Consistency       Consistency
	Values            Values
	SkipMetadata      bool
	PageSize          int32 // 0 => unset
	PagingState       []byte
	SerialConsistency Consistency // 0 value ConsistencyAny => unset unless explicitly Serial/LocalSerial
	DefaultTimestamp  int64
	HasTimestamp      bool
	Keyspace          string // v5 per-request keyspace override
}

func (p QueryParams) flags() QueryFlags {
	var f QueryFlags
	if !p.Values.empty() {
		f |= QFValues
		if len(p.Values.Named) > 0 {
			f |= QFWithNames
		}
	}
	if p.SkipMetadata {
		f |= QFSkipMetadata
	}
	if p.PageSize > 0 {
		f |= QFPageSize
	}
	if len(p.PagingState) > 0 {
		f |= QFWithPagingState
	}
	if p.SerialConsistency == ConsistencySerial || p.SerialConsistency == ConsistencyLocalSerial {
		f |= QFWithSerialConsistency
	}
	if p.HasTimestamp {
		f |= QFWithDefaultTimestamp
	}
	if p.Keyspace != "" {
		f |= QFWithKeyspace
	}
	return f
}

func (p QueryParams) encode(w *Writer, version Version) {
	w.WriteU16(uint16(p.Consistency))

	f := p.flags()
	if version >= V5 {
		w.WriteU32(uint32(f))
	} else {
		w.WriteU8(uint8(f))
	}

	if f.Has(QFValues) {
		p.Values.encode(w)
	}
	if f.Has(QFPageSize) {
		w.WriteI32(p.PageSize)
	}
	if f.Has(QFWithPagingState) {
		w.WriteBytes(p.PagingState)
	}
	if f.Has(QFWithSerialConsistency) {
		w.WriteU16(uint16(p.SerialConsistency))
	}
	if f.Has(QFWithDefaultTimestamp) {
		w.WriteI64(p.DefaultTimestamp)
	}
	if f.Has(QFWithKeyspace) {
		w.WriteShortString(p.Keyspace)
	}
}

// Query is a non-prepared CQL statement.
type Query struct {
	CQL    string
	Params QueryParams
}

func (Query) Opcode() Opcode { return OpQuery }

func (q Query) Encode(w *Writer, version Version) {
	w.WriteLongString(q.CQL)
	q.Params.encode(w, version)
}

// Prepare requests server-side preparation of a CQL statement.
type Prepare struct {
	CQL      string
	Keyspace string // v5 per-request keyspace
}

func (Prepare) Opcode() Opcode { return OpPrepare }

func (p Prepare) Encode(w *Writer, version Version) {
	w.WriteLongString(p.CQL)
	if version >= V5 {
		var f uint32
		if p.Keyspace != "" {
			f = uint32(QFWithKeyspace)
		}
		w.WriteU32(f)
		if f == uint32(QFWithKeyspace) {
			w.WriteShortString(p.Keyspace)
		}
	}
}

// Execute runs a previously PREPAREd statement identified by its server id.
type Execute struct {
	PreparedID []byte
	Params     QueryParams
}

func (Execute) Opcode() Opcode { return OpExecute }

func (e Execute) Encode(w *Writer, version Version) {
	w.WriteShortBytes(e.PreparedID)
	e.Params.encode(w, version)
}

// BatchType selects LOGGED/UNLOGGED/COUNTER batch semantics.
type BatchType uint8

const (
	BatchLogged BatchType = iota
	BatchUnlogged
	BatchCounter
)

// BatchStatement is one entry of a BATCH request: either a raw CQL string
// or a prepared-statement id, plus its bound values.
type BatchStatement struct {
	CQL        string // set when PreparedID is nil
	PreparedID []byte
	Values     Values
}

// Batch groups several statements into a single atomic (LOGGED) or
// best-effort (UNLOGGED/COUNTER) request.
type Batch struct {
	Type              BatchType
	Statements        []BatchStatement
	Consistency       Consistency
	SerialConsistency Consistency
	DefaultTimestamp  int64
	HasTimestamp      bool
	Keyspace          string
}

func (Batch) Opcode() Opcode { return OpBatch }

func (b Batch) Encode(w *Writer, version Version) {
	w.WriteU8(uint8(b.Type))
	w.WriteU16(uint16(len(b.Statements)))

	for _, s := range b.Statements {
		if s.PreparedID != nil {
			w.WriteU8(1)
			w.WriteShortBytes(s.PreparedID)
		} else {
			w.WriteU8(0)
			w.WriteLongString(s.CQL)
		}
		s.Values.encode(w)
	}

	w.WriteU16(uint16(b.Consistency))

	var f QueryFlags
	if b.SerialConsistency == ConsistencySerial || b.SerialConsistency == ConsistencyLocalSerial {
		f |= QFWithSerialConsistency
	}
	if b.HasTimestamp {
		f |= QFWithDefaultTimestamp
	}
	if version >= V5 && b.Keyspace != "" {
		f |= QFWithKeyspace
	}

	if version >= V5 {
		w.WriteU32(uint32(f))
	} else {
		w.WriteU8(uint8(f))
	}

	if f.Has(QFWithSerialConsistency) {
		w.WriteU16(uint16(b.SerialConsistency))
	}
	if f.Has(QFWithDefaultTimestamp) {
		w.WriteI64(b.DefaultTimestamp)
	}
	if f.Has(QFWithKeyspace) {
		w.WriteShortString(b.Keyspace)
	}
}
