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

// Package request drives one application request through its full
// lifecycle (spec.md §4.9): building a query plan from the load-balancing
// policy, writing to a connection, dispatching the response, and retrying
// per the configured retry/speculative policies until a Future resolves
// exactly once.
package request

import (
	"time"

	"github.com/sabouaram/cassandra-core/host"
	"github.com/sabouaram/cassandra-core/lbpolicy"
	"github.com/sabouaram/cassandra-core/logger"
	"github.com/sabouaram/cassandra-core/pool"
	"github.com/sabouaram/cassandra-core/protocol"
	"github.com/sabouaram/cassandra-core/retry"
	"github.com/sabouaram/cassandra-core/speculative"
)

// Kind distinguishes the four statement shapes a Handler can carry.
type Kind uint8

const (
	KindQuery Kind = iota
	KindExecute
	KindBatch
	KindPrepare
)

// Statement pairs the already-built wire request with enough metadata to
// recover from an UNPREPARED response: the original CQL text lets the
// handler re-PREPARE on the same connection without consulting the
// caller (spec.md §4.9 step 6).
type Statement struct {
	Kind     Kind
	CQL      string // required for KindExecute and KindPrepare; informational otherwise
	Request  protocol.Request
	Keyspace string // per-request keyspace override, "" uses the session default
}

// Options is one request's execution profile (spec.md §4.9 step 1).
type Options struct {
	Consistency              protocol.Consistency
	SerialConsistency        protocol.Consistency
	Timeout                  time.Duration
	Idempotent               bool
	Tracing                  bool
	SkipMetadata             bool
	RecordAttemptedAddresses bool
	RetryPolicy              retry.Policy
	SpeculativePolicy        speculative.Policy
	Routing                  lbpolicy.RoutingInfo

	// Timestamp supplies the client-side write timestamp when the request
	// doesn't already carry an explicit one; nil leaves timestamp
	// assignment to the server.
	Timestamp TimestampGenerator
}

// PreparedEntry is what the session's prepared-statement cache stores per
// CQL string (spec.md §4.9 step 5 RESULT(prepared), §4.10).
type PreparedEntry struct {
	ID               []byte
	ResultMetadataID []byte
	Metadata         protocol.RowsMetadata
	ResultMetadata   protocol.RowsMetadata
	Keyspace         string
	CQL              string
}

// PreparedCache is the collaborator boundary onto the session-owned,
// read-write-locked prepared-statement cache (spec.md §5: "guarded by a
// read-write lock; writes are rare broadcasts").
type PreparedCache interface {
	Lookup(cql string) (*PreparedEntry, bool)
	Store(cql string, entry *PreparedEntry)
}

// Dependencies bundles every collaborator a Handler needs but does not
// own itself, so request/ never imports session/ (session/ imports
// request/, not the other way around).
type Dependencies struct {
	// Pools resolves a query-plan host to its connection pool; false means
	// the host has no pool yet (never seen, or pool closed), so the
	// handler moves on to the next host in the plan.
	Pools func(h *host.Host) (*pool.Pool, bool)

	Policy   lbpolicy.Policy
	Registry *host.Registry
	Prepared PreparedCache

	// WaitForSchemaAgreement blocks (bounded by its own internal budget)
	// until live hosts agree on schema_version; nil disables the
	// RESULT(schema_change) completion gate (spec.md §4.9.2).
	WaitForSchemaAgreement func() error

	// AwaitKeyspaceBroadcast blocks until a RESULT(set_keyspace) has been
	// fanned out to every pool of every session thread; nil completes
	// immediately (spec.md §4.9 step 5 RESULT(set_keyspace)).
	AwaitKeyspaceBroadcast func(keyspace string)

	// AwaitTracingData blocks (bounded by its own internal budget) and
	// returns once system_traces has been polled for the given session,
	// or its wait elapses; nil skips tracing entirely even if requested
	// (spec.md §4.9.1).
	AwaitTracingData func(tracingID [16]byte)

	// OnPrepared fires after a successful RESULT(prepared), before the
	// future is set, so the session can store the cache entry and
	// trigger the prepare-all coordinator (spec.md §4.10). hst is the
	// host the PREPARE succeeded on, so the coordinator's fan-out can
	// exclude it from the "every other ready pool" target set.
	OnPrepared func(hst *host.Host, stmt Statement, entry *PreparedEntry)

	Logger logger.Logger
}

func (d *Dependencies) withDefaults() *Dependencies {
	cp := *d
	if cp.Logger == nil {
		cp.Logger = logger.Discard()
	}
	return &cp
}
