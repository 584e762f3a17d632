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

// Package protocol is the wire-protocol codec (spec.md C1): frame
// encode/decode for protocol versions v3/v4/v5(beta), the bit-exact
// primitive set of §4.1, and the request/response tagged unions of §6.
package protocol

// Version is the CQL-like wire protocol version.
type Version uint8

const (
	V3 Version = 3
	V4 Version = 4
	V5 Version = 5
)

func (v Version) StreamBytes() int { return 2 } // v3+ uses 16-bit streams

// Opcode identifies the frame body kind (spec.md §6).
type Opcode uint8

const (
	OpError        Opcode = 0x00
	OpStartup      Opcode = 0x01
	OpReady        Opcode = 0x02
	OpAuthenticate Opcode = 0x03
	OpOptions      Opcode = 0x05
	OpSupported    Opcode = 0x06
	OpQuery        Opcode = 0x07
	OpResult       Opcode = 0x08
	OpPrepare      Opcode = 0x09
	OpExecute      Opcode = 0x0A
	OpRegister     Opcode = 0x0B
	OpEvent        Opcode = 0x0C
	OpBatch        Opcode = 0x0D
	OpAuthChallenge Opcode = 0x0E
	OpAuthResponse Opcode = 0x0F
	OpAuthSuccess  Opcode = 0x10
)

// Frame header flags (spec.md §6).
type Flags uint8

const (
	FlagCompression Flags = 0x01
	FlagTracing     Flags = 0x02
	FlagCustomPayload Flags = 0x04
	FlagWarning     Flags = 0x08
	FlagBeta        Flags = 0x10
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// QUERY/EXECUTE parameter flags (spec.md §6).
type QueryFlags uint8

const (
	QFValues              QueryFlags = 0x01
	QFSkipMetadata        QueryFlags = 0x02
	QFPageSize            QueryFlags = 0x04
	QFWithPagingState     QueryFlags = 0x08
	QFWithSerialConsistency QueryFlags = 0x10
	QFWithDefaultTimestamp QueryFlags = 0x20
	QFWithNames           QueryFlags = 0x40
	QFWithKeyspace        QueryFlags = 0x80 // v5
)

func (f QueryFlags) Has(bit QueryFlags) bool { return f&bit != 0 }

// RESULT kinds (spec.md §6).
type ResultKind uint32

const (
	ResultVoid         ResultKind = 0x0001
	ResultRows         ResultKind = 0x0002
	ResultSetKeyspace  ResultKind = 0x0003
	ResultPrepared     ResultKind = 0x0004
	ResultSchemaChange ResultKind = 0x0005
)

// RESULT metadata flags (spec.md §6).
type MetadataFlags uint32

const (
	MFGlobalTablesSpec MetadataFlags = 0x01
	MFHasMorePages     MetadataFlags = 0x02
	MFNoMetadata       MetadataFlags = 0x04
	MFMetadataChanged  MetadataFlags = 0x08 // v5
)

func (f MetadataFlags) Has(bit MetadataFlags) bool { return f&bit != 0 }

// Consistency levels (standard CQL wire values).
type Consistency uint16

const (
	ConsistencyAny Consistency = iota
	ConsistencyOne
	ConsistencyTwo
	ConsistencyThree
	ConsistencyQuorum
	ConsistencyAll
	ConsistencyLocalQuorum
	ConsistencyEachQuorum
	ConsistencySerial
	ConsistencyLocalSerial
	ConsistencyLocalOne
)

func (c Consistency) IsLocal() bool {
	switch c {
	case ConsistencyLocalQuorum, ConsistencyLocalSerial, ConsistencyLocalOne:
		return true
	default:
		return false
	}
}

// ErrorCode is the wire-level error code carried by an ERROR frame,
// mapped 1:1 onto errors.CodeError by conn.MapErrorCode.
type ErrorCode uint32

const (
	ErrServerError     ErrorCode = 0x0000
	ErrProtocolError   ErrorCode = 0x000A
	ErrBadCredentials  ErrorCode = 0x0100
	ErrUnavailable     ErrorCode = 0x1000
	ErrOverloaded      ErrorCode = 0x1001
	ErrIsBootstrapping ErrorCode = 0x1002
	ErrTruncateError   ErrorCode = 0x1003
	ErrWriteTimeout    ErrorCode = 0x1100
	ErrReadTimeout     ErrorCode = 0x1200
	ErrReadFailure     ErrorCode = 0x1300
	ErrFunctionFailure ErrorCode = 0x1400
	ErrWriteFailure    ErrorCode = 0x1500
	ErrSyntaxError     ErrorCode = 0x2000
	ErrUnauthorized    ErrorCode = 0x2100
	ErrInvalid         ErrorCode = 0x2200
	ErrConfigError     ErrorCode = 0x2300
	ErrAlreadyExists   ErrorCode = 0x2400
	ErrUnprepared      ErrorCode = 0x2500
)

// WriteType is the server-reported kind of write that timed out/failed
// (spec.md §4.1).
type WriteType uint8

const (
	WriteTypeUnknown WriteType = iota
	WriteTypeSimple
	WriteTypeBatch
	WriteTypeUnloggedBatch
	WriteTypeCounter
	WriteTypeBatchLog
	WriteTypeCAS
	WriteTypeView
	WriteTypeCDC
)

var writeTypeNames = map[string]WriteType{
	"SIMPLE":          WriteTypeSimple,
	"BATCH":           WriteTypeBatch,
	"UNLOGGED_BATCH":  WriteTypeUnloggedBatch,
	"COUNTER":         WriteTypeCounter,
	"BATCH_LOG":       WriteTypeBatchLog,
	"CAS":             WriteTypeCAS,
	"VIEW":            WriteTypeView,
	"CDC":             WriteTypeCDC,
}

// ParseWriteType maps the server's write-type string; unknown strings map
// to WriteTypeUnknown and the caller should emit a warning (spec.md §4.1).
func ParseWriteType(s string) (WriteType, bool) {
	wt, ok := writeTypeNames[s]
	return wt, ok
}

func (w WriteType) IsLoggedBatchFamily() bool {
	switch w {
	case WriteTypeSimple, WriteTypeBatch, WriteTypeBatchLog, WriteTypeUnloggedBatch:
		return true
	default:
		return false
	}
}

// EVENT types (spec.md §6).
type EventType string

const (
	EventTopologyChange EventType = "TOPOLOGY_CHANGE"
	EventStatusChange   EventType = "STATUS_CHANGE"
	EventSchemaChange   EventType = "SCHEMA_CHANGE"
)

type TopologyChangeType string

const (
	TopologyNewNode     TopologyChangeType = "NEW_NODE"
	TopologyRemovedNode TopologyChangeType = "REMOVED_NODE"
	TopologyMovedNode   TopologyChangeType = "MOVED_NODE"
)

type StatusChangeType string

const (
	StatusUp   StatusChangeType = "UP"
	StatusDown StatusChangeType = "DOWN"
)
