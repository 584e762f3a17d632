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

package request

import (
	"context"
	"sync"
	"time"

	cassatomic "github.com/sabouaram/cassandra-core/atomic"
	"github.com/sabouaram/cassandra-core/conn"
	goerr "github.com/sabouaram/cassandra-core/errors"
	"github.com/sabouaram/cassandra-core/host"
	"github.com/sabouaram/cassandra-core/lbpolicy"
	"github.com/sabouaram/cassandra-core/logger"
	logfld "github.com/sabouaram/cassandra-core/logger/fields"
	"github.com/sabouaram/cassandra-core/pool"
	"github.com/sabouaram/cassandra-core/protocol"
	"github.com/sabouaram/cassandra-core/retry"
	"github.com/sabouaram/cassandra-core/speculative"
)

// action is what an execution attempt does next after a response lands.
type action uint8

const (
	actionDone action = iota
	actionRetrySameHost
	actionRetryNextHost
)

// Handler drives one application request end to end (spec.md §4.9): it
// owns a single query plan shared by the primary execution and every
// speculative one, and a single Future that the first non-aborted
// completion resolves.
type Handler struct {
	deps *Dependencies
	stmt Statement
	opts Options
	log  logger.Logger

	correlationID string

	ctx    context.Context
	cancel context.CancelFunc

	future *Future

	planMu sync.Mutex
	plan   lbpolicy.QueryPlan

	specPlan speculative.Plan

	runningExecutions cassatomic.Counter
	numRetries        cassatomic.Counter
	done              cassatomic.Flag // latched the instant finishResponse/finishError picks a winner

	mu          sync.Mutex
	consistency protocol.Consistency
	attempted   []host.Address

	reqTimer *time.Timer
}

// NewHandler runs spec.md §4.9 step 1 (Init): it resolves the routing
// keyspace, builds the query plan from the load-balancing policy, and
// prepares the speculative-execution plan.
func NewHandler(ctx context.Context, deps *Dependencies, stmt Statement, opts Options) *Handler {
	deps = deps.withDefaults()

	keyspace := stmt.Keyspace
	if keyspace == "" {
		keyspace = opts.Routing.Keyspace
	}

	var tmap *host.TokenMap
	if deps.Registry != nil {
		tmap = deps.Registry.TokenMap()
	}

	var plan lbpolicy.QueryPlan
	if deps.Policy != nil {
		plan = deps.Policy.NewQueryPlan(keyspace, opts.Routing, tmap)
	}

	specPlan := speculative.Plan(nil)
	if opts.Idempotent && opts.SpeculativePolicy != nil {
		specPlan = opts.SpeculativePolicy.NewPlan()
	}

	hctx, cancel := context.WithCancel(ctx)

	return &Handler{
		deps:              deps,
		stmt:              stmt,
		opts:              opts,
		log:               deps.Logger,
		correlationID:     newCorrelationID(),
		ctx:               hctx,
		cancel:            cancel,
		future:            NewFuture(),
		plan:              plan,
		specPlan:          specPlan,
		runningExecutions: cassatomic.NewCounter(),
		numRetries:        cassatomic.NewCounter(),
		done:              cassatomic.NewFlag(),
		consistency:       opts.Consistency,
	}
}

// Execute is spec.md §4.9 step 2: it starts the primary execution plus,
// for idempotent requests with a speculative policy, the chain of extra
// parallel attempts. It never blocks; the caller waits on the returned
// Future.
func (h *Handler) Execute() *Future {
	if h.opts.Timeout > 0 {
		h.reqTimer = time.AfterFunc(h.opts.Timeout, h.onTimeout)
	}

	h.runningExecutions.Inc()
	go h.runAttempt()

	if h.specPlan != nil {
		go h.specScheduler()
	}

	return h.future
}

// specScheduler is the single caller of specPlan.Next(), matching its
// single-threaded-iterator contract; every time it decides to start
// another execution it asks again for the wait before the one after that
// (spec.md §4.8: "speculative execution runs in parallel ... schedules a
// new RequestExecution when the timer fires").
func (h *Handler) specScheduler() {
	for {
		wait := h.specPlan.Next()
		if wait == speculative.NoMore {
			return
		}
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-t.C:
			case <-h.ctx.Done():
				t.Stop()
				return
			}
		}
		if h.done.IsSet() {
			return
		}
		h.runningExecutions.Inc()
		go h.runAttempt()
	}
}

func (h *Handler) nextHost() (*host.Host, bool) {
	h.planMu.Lock()
	defer h.planMu.Unlock()
	if h.plan == nil {
		return nil, false
	}
	return h.plan.Next()
}

// runAttempt is one execution's walk through the shared query plan
// (spec.md §4.9 step 3, internal_retry): it pulls a host, writes on its
// pool's least-busy connection, and dispatches the response. A retry
// decision either re-sends on the very same connection (RETRY same_host,
// UNPREPARED re-prepare) or falls through to the next plan host.
func (h *Handler) runAttempt() {
	defer h.runningExecutions.Dec()

	var hst *host.Host
	var p *pool.Pool
	var c *conn.Conn
	reprepared := false
	advance := true

	for {
		if h.done.IsSet() {
			return
		}

		if advance {
			var ok bool
			hst, ok = h.nextHost()
			if !ok {
				h.finishError(goerr.New(goerr.CodeNoHostsAvailable, "no hosts available"))
				return
			}
			p, ok = h.deps.Pools(hst)
			if !ok {
				continue
			}
			// Acquire parks on the pool's pending queue when no connection
			// is immediately ready (spec.md §4.5) instead of failing this
			// host outright; it only returns an error when the pool is
			// closing, its queue is full, or h.ctx is done, in which case
			// this execution moves on to the next plan host.
			var aerr error
			c, aerr = p.Acquire(h.ctx)
			if aerr != nil {
				h.log.Debug("no connection available, trying next host", logfld.New().Add("correlation_id", h.correlationID).Add("host", hst.Address.String()).Add("error", aerr.Error()))
				continue
			}
			reprepared = false
		}
		advance = true

		if h.opts.RecordAttemptedAddresses {
			h.mu.Lock()
			h.attempted = append(h.attempted, hst.Address)
			h.mu.Unlock()
		}

		// spec.md §4.4: a wrapper keyspace that differs from the
		// connection's current one is prefixed by a SET_KEYSPACE
		// callback before the real request goes out.
		if h.stmt.Keyspace != "" && h.stmt.Keyspace != c.Keyspace() {
			if err := c.SetKeyspace(h.ctx, h.stmt.Keyspace); err != nil {
				h.log.Debug("USE failed, trying next host", logfld.New().Add("correlation_id", h.correlationID).Add("host", hst.Address.String()).Add("error", err.Error()))
				continue
			}
		}

		resp, err := c.Execute(h.ctx, h.buildRequest())
		if err != nil {
			h.log.Debug("write failed, trying next host", logfld.New().Add("correlation_id", h.correlationID).Add("host", hst.Address.String()).Add("error", err.Error()))
			continue
		}

		act := h.onSet(hst, c, resp, &reprepared)
		switch act {
		case actionDone:
			return
		case actionRetrySameHost:
			advance = false
		case actionRetryNextHost:
			advance = true
		}
	}
}

func (h *Handler) buildRequest() protocol.Request {
	h.mu.Lock()
	cl := h.consistency
	h.mu.Unlock()
	req := withConsistency(h.stmt.Request, cl)
	if h.opts.Timestamp != nil {
		req = withTimestamp(req, h.opts.Timestamp())
	}
	return req
}

// CorrelationID identifies this request across its retries and
// speculative executions for tracing/logging.
func (h *Handler) CorrelationID() string { return h.correlationID }

func withConsistency(req protocol.Request, cl protocol.Consistency) protocol.Request {
	switch r := req.(type) {
	case protocol.Query:
		r.Params.Consistency = cl
		return r
	case protocol.Execute:
		r.Params.Consistency = cl
		return r
	case protocol.Batch:
		r.Consistency = cl
		return r
	default:
		return req
	}
}

// onSet is spec.md §4.9 step 5: demultiplex by opcode.
func (h *Handler) onSet(hst *host.Host, c *conn.Conn, resp protocol.Response, reprepared *bool) action {
	switch r := resp.(type) {
	case protocol.Result:
		return h.onResult(hst, r)
	case protocol.ErrorResponse:
		return h.onError(hst, c, r, reprepared)
	default:
		h.finishError(goerr.New(goerr.CodeUnexpectedResponse, "unexpected response opcode"))
		return actionDone
	}
}

func (h *Handler) onResult(hst *host.Host, r protocol.Result) action {
	switch r.Kind {
	case protocol.ResultRows:
		if h.stmt.Kind == KindExecute && r.Rows != nil && r.Rows.Metadata.Flags.Has(protocol.MFNoMetadata) && h.deps.Prepared != nil {
			if entry, ok := h.deps.Prepared.Lookup(h.stmt.CQL); ok {
				r.Rows.Metadata = entry.ResultMetadata
			}
		}
		if h.opts.Tracing && r.TracingID != nil && h.deps.AwaitTracingData != nil {
			h.deps.AwaitTracingData(*r.TracingID)
		}
		h.finishResponse(&r)
		return actionDone

	case protocol.ResultSetKeyspace:
		if h.deps.AwaitKeyspaceBroadcast != nil {
			h.deps.AwaitKeyspaceBroadcast(r.SetKeyspace)
		}
		h.finishResponse(&r)
		return actionDone

	case protocol.ResultSchemaChange:
		if h.deps.WaitForSchemaAgreement != nil {
			if err := h.deps.WaitForSchemaAgreement(); err != nil {
				h.log.Warning("schema agreement wait ended early", logfld.New().Add("error", err.Error()))
			}
		}
		h.finishResponse(&r)
		return actionDone

	case protocol.ResultPrepared:
		if r.Prepared != nil && h.deps.OnPrepared != nil {
			entry := &PreparedEntry{
				ID:               r.Prepared.ID,
				ResultMetadataID: r.Prepared.ResultMetadataID,
				Metadata:         r.Prepared.Metadata,
				ResultMetadata:   r.Prepared.ResultMetadata,
				Keyspace:         h.stmt.Keyspace,
				CQL:              h.stmt.CQL,
			}
			h.deps.OnPrepared(hst, h.stmt, entry)
		}
		h.finishResponse(&r)
		return actionDone

	default:
		h.finishResponse(&r)
		return actionDone
	}
}

// onError is spec.md §4.9 step 6, the ERROR dispatch table.
func (h *Handler) onError(hst *host.Host, c *conn.Conn, r protocol.ErrorResponse, reprepared *bool) action {
	switch r.Code {
	case protocol.ErrIsBootstrapping:
		h.log.Debug("host is bootstrapping, moving to next host", logfld.New().Add("host", hst.Address.String()))
		return actionRetryNextHost

	case protocol.ErrUnprepared:
		return h.onUnprepared(c, r, reprepared)

	case protocol.ErrServerError:
		h.log.Warning("server error, defuncting connection", logfld.New().Add("host", hst.Address.String()))
		_ = c.Close()
		if !h.opts.Idempotent {
			h.finishError(goerr.New(conn.MapErrorCode(r.Code), r.Message))
			return actionDone
		}
		return h.consultRetry(r)

	default:
		return h.consultRetry(r)
	}
}

// onUnprepared re-PREPAREs on the same connection the original CQL text
// of an EXECUTE, then retries the EXECUTE there; a second UNPREPARED in
// the same attempt chain escalates to the next host instead of looping
// forever (spec.md §4.9 step 6).
func (h *Handler) onUnprepared(c *conn.Conn, r protocol.ErrorResponse, reprepared *bool) action {
	if h.stmt.Kind != KindExecute || h.stmt.CQL == "" {
		h.finishError(goerr.New(goerr.CodeUnprepared, r.Message))
		return actionDone
	}
	if *reprepared {
		return actionRetryNextHost
	}
	*reprepared = true

	prepResp, err := c.Execute(h.ctx, protocol.Prepare{CQL: h.stmt.CQL, Keyspace: h.stmt.Keyspace})
	if err != nil {
		return actionRetryNextHost
	}
	res, ok := prepResp.(protocol.Result)
	if !ok || res.Kind != protocol.ResultPrepared || res.Prepared == nil {
		return actionRetryNextHost
	}

	if exec, ok := h.stmt.Request.(protocol.Execute); ok {
		exec.PreparedID = res.Prepared.ID
		h.stmt.Request = exec
	}
	if h.deps.Prepared != nil {
		h.deps.Prepared.Store(h.stmt.CQL, &PreparedEntry{
			ID:               res.Prepared.ID,
			ResultMetadataID: res.Prepared.ResultMetadataID,
			Metadata:         res.Prepared.Metadata,
			ResultMetadata:   res.Prepared.ResultMetadata,
			Keyspace:         h.stmt.Keyspace,
			CQL:              h.stmt.CQL,
		})
	}
	return actionRetrySameHost
}

// consultRetry is the "others" branch of spec.md §4.9 step 6: every
// server error not given unconditional treatment above goes through the
// configured retry.Policy.
func (h *Handler) consultRetry(r protocol.ErrorResponse) action {
	if h.opts.RetryPolicy == nil {
		h.finishError(goerr.New(conn.MapErrorCode(r.Code), r.Message))
		return actionDone
	}

	rc := int(h.numRetries.Get())
	var outcome retry.Outcome
	generic := false

	switch r.Code {
	case protocol.ErrReadTimeout, protocol.ErrReadFailure:
		cl, _ := r.Extra["consistency"].(protocol.Consistency)
		received, _ := r.Extra["received"].(int32)
		blockfor, _ := r.Extra["blockfor"].(int32)
		present, _ := r.Extra["data_present"].(bool)
		outcome = h.opts.RetryPolicy.OnReadTimeout(cl, received, blockfor, present, rc)

	case protocol.ErrWriteTimeout, protocol.ErrWriteFailure:
		cl, _ := r.Extra["consistency"].(protocol.Consistency)
		received, _ := r.Extra["received"].(int32)
		blockfor, _ := r.Extra["blockfor"].(int32)
		wtStr, _ := r.Extra["write_type"].(string)
		wt, _ := protocol.ParseWriteType(wtStr)
		outcome = h.opts.RetryPolicy.OnWriteTimeout(cl, received, blockfor, wt, h.opts.Idempotent, rc)

	case protocol.ErrUnavailable:
		cl, _ := r.Extra["consistency"].(protocol.Consistency)
		required, _ := r.Extra["required"].(int32)
		alive, _ := r.Extra["alive"].(int32)
		outcome = h.opts.RetryPolicy.OnUnavailable(cl, required, alive, rc)

	default: // OVERLOADED, TRUNCATE_ERROR, and anything else left
		generic = true
		outcome = h.opts.RetryPolicy.OnRequestError(h.opts.Idempotent, rc)
	}

	switch outcome.Decision {
	case retry.ReturnError:
		h.finishError(goerr.New(conn.MapErrorCode(r.Code), r.Message))
		return actionDone

	case retry.Ignore:
		h.finishResponse(&protocol.Result{Kind: protocol.ResultRows, Rows: &protocol.RowsResult{}})
		return actionDone

	default: // Retry
		h.numRetries.Inc()
		if !generic {
			h.mu.Lock()
			h.consistency = outcome.Consistency
			h.mu.Unlock()
		}
		if outcome.SameHost {
			return actionRetrySameHost
		}
		return actionRetryNextHost
	}
}

// onTimeout is spec.md §4.9 step 7: it sets LIB_REQUEST_TIMED_OUT on the
// future; any execution still running may finish but its late
// set_response/set_error will simply be counted as aborted.
func (h *Handler) onTimeout() {
	h.finishError(goerr.New(goerr.CodeRequestTimedOut, "request timed out"))
}

// finishResponse/finishError are the only callers of Future.setResponse/
// setError; once either has run once (is_done), any further call is a
// no-op besides the speculative_aborted bump (spec.md §4.9 step 8).
func (h *Handler) finishResponse(r *protocol.Result) {
	if !h.done.TrySet() {
		h.future.setResponse(r) // still routes through Future's own bookkeeping for the aborted counter
		return
	}
	h.cancel()
	if h.reqTimer != nil {
		h.reqTimer.Stop()
	}
	h.future.setResponse(r)
}

func (h *Handler) finishError(err error) {
	if !h.done.TrySet() {
		h.future.setError(err)
		return
	}
	h.cancel()
	if h.reqTimer != nil {
		h.reqTimer.Stop()
	}
	h.future.setError(err)
}

// AttemptedAddresses returns every host address this handler has written
// to, in attempt order, when Options.RecordAttemptedAddresses was set.
func (h *Handler) AttemptedAddresses() []host.Address {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]host.Address, len(h.attempted))
	copy(out, h.attempted)
	return out
}

// RunningExecutions reports the number of executions (primary plus any
// speculative ones) still in flight for this request.
func (h *Handler) RunningExecutions() int64 { return h.runningExecutions.Get() }

// NumRetries reports how many RETRY decisions this request has consumed.
func (h *Handler) NumRetries() int64 { return h.numRetries.Get() }

// Cancel aborts the request: every suspension point (stream acquisition,
// a re-prepare round-trip, the schema/tracing waits) observes ctx done
// and unwinds without blocking a thread (spec.md §5 "Suspension points").
func (h *Handler) Cancel() {
	h.finishError(context.Canceled)
}
