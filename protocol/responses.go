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

// Responses mirror requests.go's tagged-sum shape: DecodeResponse inspects
// the frame's opcode and returns one of the concrete response types behind
// the Response marker interface (spec.md names Ready/Authenticate/
// Supported/Result/Event/Error/AuthChallenge/AuthSuccess as the inbound
// message set).
package protocol

import "fmt"

// Response is the marker interface implemented by every decoded inbound
// message body.
type Response interface {
	Opcode() Opcode
}

// CustomPayload/Warnings/TracingID are carried alongside any response when
// the corresponding frame flag is set (spec.md §4.1: custom-payload and
// warnings "surfaced on the result object, not dropped").
type Envelope struct {
	TracingID      *[16]byte
	CustomPayload  map[string][]byte
	Warnings       []string
}

type Ready struct{ Envelope }

func (Ready) Opcode() Opcode { return OpReady }

type Authenticate struct {
	Envelope
	Authenticator string
}

func (Authenticate) Opcode() Opcode { return OpAuthenticate }

type AuthChallenge struct {
	Envelope
	Token []byte
}

func (AuthChallenge) Opcode() Opcode { return OpAuthChallenge }

type AuthSuccess struct {
	Envelope
	Token []byte
}

func (AuthSuccess) Opcode() Opcode { return OpAuthSuccess }

type Supported struct {
	Envelope
	Options map[string][]string
}

func (Supported) Opcode() Opcode { return OpSupported }

// ErrorResponse is a decoded ERROR frame. Extra carries kind-specific
// fields (spec.md §4.1): UNAVAILABLE's cl/required/alive, WRITE_TIMEOUT's
// cl/received/blockfor/write_type, READ_TIMEOUT's cl/received/blockfor/
// data_present, UNPREPARED's statement id, ALREADY_EXISTS' keyspace/table,
// FUNCTION_FAILURE's keyspace/function/arg_types.
type ErrorResponse struct {
	Envelope
	Code    ErrorCode
	Message string
	Extra   map[string]interface{}
}

func (ErrorResponse) Opcode() Opcode { return OpError }

// EventResponse is a pushed TOPOLOGY_CHANGE/STATUS_CHANGE/SCHEMA_CHANGE
// notification delivered on the control connection (spec.md §4.6).
type EventResponse struct {
	Envelope
	Type EventType

	// TOPOLOGY_CHANGE / STATUS_CHANGE
	ChangeType string
	Address    Inet

	// SCHEMA_CHANGE
	SchemaChangeType string
	SchemaTarget     string
	SchemaKeyspace   string
	SchemaName       string
	SchemaArgTypes   []string
}

func (EventResponse) Opcode() Opcode { return OpEvent }

// Result wraps one of the five RESULT kinds (spec.md §6 ResultKind).
type Result struct {
	Envelope
	Kind ResultKind

	Void         *struct{}
	Rows         *RowsResult
	SetKeyspace  string
	Prepared     *PreparedResult
	SchemaChange *SchemaChangeResult
}

func (Result) Opcode() Opcode { return OpResult }

// ColumnSpec describes one result/bind-variable column.
type ColumnSpec struct {
	Keyspace string
	Table    string
	Name     string
	Type     Option
}

type RowsMetadata struct {
	Flags        MetadataFlags
	ColumnCount  int32
	PagingState  []byte
	NewMetadataID []byte // v5 MFMetadataChanged
	Columns      []ColumnSpec
}

// RowsResult is a RESULT/Rows payload: metadata plus raw, still-encoded
// column values (spec.md §4.1: "value codecs stay behind a narrow
// interface boundary" — decoding a column's bytes into a typed Go value
// is deferred to the session-level value codec, not this package).
type RowsResult struct {
	Metadata RowsMetadata
	Rows     [][][]byte
}

type PreparedResult struct {
	ID              []byte
	ResultMetadataID []byte // v5
	Metadata        RowsMetadata
	ResultMetadata  RowsMetadata
}

type SchemaChangeResult struct {
	ChangeType string
	Target     string
	Keyspace   string
	Name       string
	ArgTypes   []string
}

// DecodeResponse dispatches on hdr.Opcode and parses body into the
// matching concrete Response.
func DecodeResponse(hdr Header, body []byte) (Response, error) {
	r := NewReader(body)

	env, err := decodeEnvelope(r, hdr.Flags)
	if err != nil {
		return nil, err
	}

	switch hdr.Opcode {
	case OpReady:
		return Ready{Envelope: env}, nil

	case OpAuthenticate:
		s, err := r.DecodeShortString()
		if err != nil {
			return nil, err
		}
		return Authenticate{Envelope: env, Authenticator: s}, nil

	case OpAuthChallenge:
		b, err := r.DecodeBytes()
		if err != nil {
			return nil, err
		}
		return AuthChallenge{Envelope: env, Token: b}, nil

	case OpAuthSuccess:
		b, err := r.DecodeBytes()
		if err != nil {
			return nil, err
		}
		return AuthSuccess{Envelope: env, Token: b}, nil

	case OpSupported:
		m, err := r.DecodeStringMultimap()
		if err != nil {
			return nil, err
		}
		return Supported{Envelope: env, Options: m}, nil

	case OpError:
		return decodeError(r, env)

	case OpEvent:
		return decodeEvent(r, env)

	case OpResult:
		return decodeResult(r, env)

	default:
		return nil, fmt.Errorf("protocol: unexpected response opcode 0x%02x", hdr.Opcode)
	}
}

func decodeEnvelope(r *Reader, flags Flags) (Envelope, error) {
	var env Envelope

	if flags.Has(FlagTracing) {
		id, err := r.DecodeRawUUID()
		if err != nil {
			return env, err
		}
		env.TracingID = &id
	}

	if flags.Has(FlagWarning) {
		w, err := r.DecodeStringList()
		if err != nil {
			return env, err
		}
		env.Warnings = w
	}

	if flags.Has(FlagCustomPayload) {
		p, err := r.DecodeBytesMap()
		if err != nil {
			return env, err
		}
		env.CustomPayload = p
	}

	return env, nil
}

func decodeError(r *Reader, env Envelope) (Response, error) {
	code, err := r.DecodeU32()
	if err != nil {
		return nil, err
	}
	msg, err := r.DecodeLongString()
	if err != nil {
		return nil, err
	}

	extra := map[string]interface{}{}

	switch ErrorCode(code) {
	case ErrUnavailable:
		cl, _ := r.DecodeU16()
		required, _ := r.DecodeI32()
		alive, _ := r.DecodeI32()
		extra["consistency"] = Consistency(cl)
		extra["required"] = required
		extra["alive"] = alive

	case ErrWriteTimeout:
		cl, _ := r.DecodeU16()
		received, _ := r.DecodeI32()
		blockfor, _ := r.DecodeI32()
		wt, _ := r.DecodeShortString()
		extra["consistency"] = Consistency(cl)
		extra["received"] = received
		extra["blockfor"] = blockfor
		extra["write_type"] = wt

	case ErrReadTimeout:
		cl, _ := r.DecodeU16()
		received, _ := r.DecodeI32()
		blockfor, _ := r.DecodeI32()
		present, _ := r.DecodeU8()
		extra["consistency"] = Consistency(cl)
		extra["received"] = received
		extra["blockfor"] = blockfor
		extra["data_present"] = present != 0

	case ErrReadFailure, ErrWriteFailure:
		cl, _ := r.DecodeU16()
		received, _ := r.DecodeI32()
		blockfor, _ := r.DecodeI32()
		numFailures, _ := r.DecodeI32()
		extra["consistency"] = Consistency(cl)
		extra["received"] = received
		extra["blockfor"] = blockfor
		extra["num_failures"] = numFailures
		if ErrorCode(code) == ErrWriteFailure {
			wt, _ := r.DecodeShortString()
			extra["write_type"] = wt
		} else {
			present, _ := r.DecodeU8()
			extra["data_present"] = present != 0
		}

	case ErrFunctionFailure:
		ks, _ := r.DecodeShortString()
		fn, _ := r.DecodeShortString()
		argTypes, _ := r.DecodeStringList()
		extra["keyspace"] = ks
		extra["function"] = fn
		extra["arg_types"] = argTypes

	case ErrAlreadyExists:
		ks, _ := r.DecodeShortString()
		table, _ := r.DecodeShortString()
		extra["keyspace"] = ks
		extra["table"] = table

	case ErrUnprepared:
		id, _ := r.DecodeBytes()
		extra["id"] = id
	}

	return ErrorResponse{Envelope: env, Code: ErrorCode(code), Message: msg, Extra: extra}, nil
}

func decodeEvent(r *Reader, env Envelope) (Response, error) {
	t, err := r.DecodeShortString()
	if err != nil {
		return nil, err
	}

	ev := EventResponse{Envelope: env, Type: EventType(t)}

	switch EventType(t) {
	case EventTopologyChange:
		ct, err := r.DecodeShortString()
		if err != nil {
			return nil, err
		}
		addr, err := r.DecodeInet()
		if err != nil {
			return nil, err
		}
		ev.ChangeType = ct
		ev.Address = addr

	case EventStatusChange:
		ct, err := r.DecodeShortString()
		if err != nil {
			return nil, err
		}
		addr, err := r.DecodeInet()
		if err != nil {
			return nil, err
		}
		ev.ChangeType = ct
		ev.Address = addr

	case EventSchemaChange:
		sc, err := decodeSchemaChange(r)
		if err != nil {
			return nil, err
		}
		ev.SchemaChangeType = sc.ChangeType
		ev.SchemaTarget = sc.Target
		ev.SchemaKeyspace = sc.Keyspace
		ev.SchemaName = sc.Name
		ev.SchemaArgTypes = sc.ArgTypes

	default:
		return nil, fmt.Errorf("protocol: unknown event type %q", t)
	}

	return ev, nil
}

func decodeSchemaChange(r *Reader) (SchemaChangeResult, error) {
	changeType, err := r.DecodeShortString()
	if err != nil {
		return SchemaChangeResult{}, err
	}
	target, err := r.DecodeShortString()
	if err != nil {
		return SchemaChangeResult{}, err
	}

	sc := SchemaChangeResult{ChangeType: changeType, Target: target}

	switch target {
	case "KEYSPACE":
		ks, err := r.DecodeShortString()
		if err != nil {
			return sc, err
		}
		sc.Keyspace = ks

	case "TABLE", "TYPE":
		ks, err := r.DecodeShortString()
		if err != nil {
			return sc, err
		}
		name, err := r.DecodeShortString()
		if err != nil {
			return sc, err
		}
		sc.Keyspace = ks
		sc.Name = name

	case "FUNCTION", "AGGREGATE":
		ks, err := r.DecodeShortString()
		if err != nil {
			return sc, err
		}
		name, err := r.DecodeShortString()
		if err != nil {
			return sc, err
		}
		argTypes, err := r.DecodeStringList()
		if err != nil {
			return sc, err
		}
		sc.Keyspace = ks
		sc.Name = name
		sc.ArgTypes = argTypes
	}

	return sc, nil
}

func decodeResult(r *Reader, env Envelope) (Response, error) {
	kind, err := r.DecodeU32()
	if err != nil {
		return nil, err
	}

	res := Result{Envelope: env, Kind: ResultKind(kind)}

	switch ResultKind(kind) {
	case ResultVoid:
		res.Void = &struct{}{}

	case ResultSetKeyspace:
		ks, err := r.DecodeShortString()
		if err != nil {
			return nil, err
		}
		res.SetKeyspace = ks

	case ResultRows:
		rows, err := decodeRows(r)
		if err != nil {
			return nil, err
		}
		res.Rows = rows

	case ResultPrepared:
		p, err := decodePrepared(r)
		if err != nil {
			return nil, err
		}
		res.Prepared = p

	case ResultSchemaChange:
		sc, err := decodeSchemaChange(r)
		if err != nil {
			return nil, err
		}
		res.SchemaChange = &sc

	default:
		return nil, fmt.Errorf("protocol: unknown result kind 0x%08x", kind)
	}

	return res, nil
}

func decodeRowsMetadata(r *Reader) (RowsMetadata, error) {
	flagsRaw, err := r.DecodeU32()
	if err != nil {
		return RowsMetadata{}, err
	}
	flags := MetadataFlags(flagsRaw)

	count, err := r.DecodeI32()
	if err != nil {
		return RowsMetadata{}, err
	}

	md := RowsMetadata{Flags: flags, ColumnCount: count}

	if flags.Has(MFMetadataChanged) {
		id, err := r.DecodeBytes()
		if err != nil {
			return md, err
		}
		md.NewMetadataID = id
	}

	if flags.Has(MFHasMorePages) {
		ps, err := r.DecodeBytes()
		if err != nil {
			return md, err
		}
		md.PagingState = ps
	}

	if flags.Has(MFNoMetadata) {
		return md, nil
	}

	globalSpec := flags.Has(MFGlobalTablesSpec)
	var gKeyspace, gTable string
	if globalSpec {
		ks, err := r.DecodeShortString()
		if err != nil {
			return md, err
		}
		tbl, err := r.DecodeShortString()
		if err != nil {
			return md, err
		}
		gKeyspace, gTable = ks, tbl
	}

	cols := make([]ColumnSpec, 0, count)
	for i := int32(0); i < count; i++ {
		cs := ColumnSpec{Keyspace: gKeyspace, Table: gTable}
		if !globalSpec {
			ks, err := r.DecodeShortString()
			if err != nil {
				return md, err
			}
			tbl, err := r.DecodeShortString()
			if err != nil {
				return md, err
			}
			cs.Keyspace, cs.Table = ks, tbl
		}
		name, err := r.DecodeShortString()
		if err != nil {
			return md, err
		}
		opt, err := r.DecodeOption()
		if err != nil {
			return md, err
		}
		cs.Name = name
		cs.Type = opt
		cols = append(cols, cs)
	}
	md.Columns = cols

	return md, nil
}

func decodeRows(r *Reader) (*RowsResult, error) {
	md, err := decodeRowsMetadata(r)
	if err != nil {
		return nil, err
	}

	rowCount, err := r.DecodeI32()
	if err != nil {
		return nil, err
	}
	if rowCount < 0 {
		return nil, fmt.Errorf("protocol: negative row count %d", rowCount)
	}

	rows := make([][][]byte, 0, rowCount)
	for i := int32(0); i < rowCount; i++ {
		row := make([][]byte, md.ColumnCount)
		for c := int32(0); c < md.ColumnCount; c++ {
			v, err := r.DecodeBytes()
			if err != nil {
				return nil, err
			}
			row[c] = v
		}
		rows = append(rows, row)
	}

	return &RowsResult{Metadata: md, Rows: rows}, nil
}

func decodePrepared(r *Reader) (*PreparedResult, error) {
	id, err := r.DecodeBytes()
	if err != nil {
		return nil, err
	}

	p := &PreparedResult{ID: id}

	md, err := decodeRowsMetadata(r)
	if err != nil {
		return nil, err
	}
	p.Metadata = md

	if md.Flags.Has(MFMetadataChanged) {
		p.ResultMetadataID = md.NewMetadataID
	}

	resultMd, err := decodeRowsMetadata(r)
	if err != nil {
		return nil, err
	}
	p.ResultMetadata = resultMd

	return p, nil
}
