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

package pool

import (
	"context"
	stderr "errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sabouaram/cassandra-core/conn"
	durpkg "github.com/sabouaram/cassandra-core/duration"
	goerr "github.com/sabouaram/cassandra-core/errors"
	"github.com/sabouaram/cassandra-core/logger"
	logfld "github.com/sabouaram/cassandra-core/logger/fields"
	"github.com/sabouaram/cassandra-core/protocol"
)

// ErrNoConnection means this pool currently has no READY connection able
// to take a write and its pending queue could not park the caller either
// (pool closing); the caller (request/'s internal_retry) should move on
// to the next host in its query plan (spec.md §4.9 step 3).
var ErrNoConnection = stderr.New("pool: no ready connection available")

// ConnFactory builds one not-yet-connected connection, wiring onClose as
// its conn.Config.OnClose hook; supplied by session/ so pool/ never needs
// TLS/auth/keyspace configuration details of its own.
type ConnFactory func(onClose func()) *conn.Conn

// Config bounds one host's connection pool (spec.md §6 table).
type Config struct {
	CoreConnections             int
	MaxConnections              int
	MaxConcurrentRequestsThreshold int
	ConnectTimeout               durpkg.Duration
	ReconnectBase                durpkg.Duration
	ReconnectCap                 durpkg.Duration
	MaxConsecutiveFailures       int // before is_critical_failure

	// PendingQueueSize bounds the pool's pending-write queue (spec.md
	// §4.5/§5: "a pending-write queue for requests awaiting a stream ...
	// bounded by policy"; "overflow → NO_HOSTS_AVAILABLE"). Writes beyond
	// this bound fail fast with CodeRequestQueueFull instead of parking.
	PendingQueueSize int

	Factory ConnFactory
	Logger  logger.Logger
}

func (c *Config) withDefaults() *Config {
	cp := *c
	if cp.CoreConnections <= 0 {
		cp.CoreConnections = 1
	}
	if cp.MaxConnections < cp.CoreConnections {
		cp.MaxConnections = cp.CoreConnections
	}
	if cp.MaxConcurrentRequestsThreshold <= 0 {
		cp.MaxConcurrentRequestsThreshold = 128
	}
	if cp.ConnectTimeout.Duration == 0 {
		cp.ConnectTimeout = durpkg.MustParse("5s")
	}
	if cp.MaxConsecutiveFailures <= 0 {
		cp.MaxConsecutiveFailures = 5
	}
	if cp.PendingQueueSize <= 0 {
		cp.PendingQueueSize = 256
	}
	if cp.Logger == nil {
		cp.Logger = logger.Discard()
	}
	return &cp
}

// Pool owns every connection to one (host, event-loop) pair (spec.md
// §3 Pool, §4.5).
type Pool struct {
	cfg *Config
	log logger.Logger

	mu    sync.RWMutex
	state State
	conns []*conn.Conn

	// pending holds wake channels for callers parked in acquireConn
	// because no connection was READY at the time (spec.md §4.5: "the
	// request is parked in the pool's pending queue ... and retried on
	// the next connection-ready event"). Bounded by cfg.PendingQueueSize.
	pending []chan struct{}

	consecutiveFailures int
	criticalFailure     bool

	growSem *semaphore.Weighted

	closeOnce sync.Once
}

// New returns a not-yet-connected Pool.
func New(cfg *Config) *Pool {
	cfg = cfg.withDefaults()
	return &Pool{
		cfg:     cfg,
		log:     cfg.Logger,
		state:   StateNew,
		growSem: semaphore.NewWeighted(1),
	}
}

func (p *Pool) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Pool) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// IsCriticalFailure reports whether connection creation has failed
// MaxConsecutiveFailures times in a row; the host is considered down
// until an external event reopens it (spec.md §4.5).
func (p *Pool) IsCriticalFailure() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.criticalFailure
}

// Open eagerly establishes CoreConnections connections in parallel.
func (p *Pool) Open() error {
	p.setState(StateWaitingToConnect)
	p.setState(StateConnecting)

	var eg errgroup.Group
	results := make([]*conn.Conn, p.cfg.CoreConnections)

	for i := 0; i < p.cfg.CoreConnections; i++ {
		i := i
		eg.Go(func() error {
			c, err := p.dialOne()
			if err != nil {
				return err
			}
			results[i] = c
			return nil
		})
	}

	err := eg.Wait()

	p.mu.Lock()
	for _, c := range results {
		if c != nil {
			p.conns = append(p.conns, c)
		}
	}
	ready := len(p.conns)
	p.mu.Unlock()

	if ready == 0 {
		p.setState(StateClosed)
		return goerr.Wrap(goerr.CodeUnableToInit, "pool: no core connections could be established", err)
	}

	p.setState(StateReady)
	p.notifyReady()
	return nil
}

func (p *Pool) dialOne() (*conn.Conn, error) {
	var c *conn.Conn
	// The connection's own OnClose hook routes back here so reconnection
	// stays scoped to the connection actually lost (spec.md §4.5: "the
	// pool does not flap the whole host").
	c = p.cfg.Factory(func() { p.Remove(c) })

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ConnectTimeout.Duration)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		p.noteFailure()
		return nil, err
	}
	p.noteSuccess()
	return c, nil
}

func (p *Pool) noteFailure() {
	p.mu.Lock()
	p.consecutiveFailures++
	if p.consecutiveFailures >= p.cfg.MaxConsecutiveFailures {
		p.criticalFailure = true
	}
	p.mu.Unlock()
}

func (p *Pool) noteSuccess() {
	p.mu.Lock()
	p.consecutiveFailures = 0
	p.criticalFailure = false
	p.mu.Unlock()
}

// Write picks the least-busy READY connection and writes req on it,
// parking in the pending queue first if none is immediately available
// (spec.md §4.5 write path), and growing the pool if the connection it
// lands on is already past the concurrency threshold.
func (p *Pool) Write(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	best, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	if best.InFlight() >= p.cfg.MaxConcurrentRequestsThreshold {
		p.maybeGrow()
	}

	return best.Execute(ctx, req)
}

// Acquire returns the current least-busy READY connection, parking the
// caller in the pool's bounded pending queue when none is available yet
// and waking it on the next connection-ready event (spec.md §4.5: "If no
// connection is immediately available, the request is parked in the
// pool's pending queue ... and retried on the next connection-ready
// event"; §5: "Each pool has a bounded pending queue; overflow →
// NO_HOSTS_AVAILABLE"). Returns ErrNoConnection if the pool is closing,
// CodeRequestQueueFull if the queue is already at capacity, or ctx's
// error if the caller's deadline/cancellation fires first.
func (p *Pool) Acquire(ctx context.Context) (*conn.Conn, error) {
	if best := p.leastBusy(); best != nil {
		return best, nil
	}

	wake, err := p.park()
	if err != nil {
		return nil, err
	}

	for {
		select {
		case <-wake:
			if best := p.leastBusy(); best != nil {
				return best, nil
			}
			// Woken but another parked caller (or a racing dial) took the
			// only connection first; re-park and keep waiting.
			wake, err = p.park()
			if err != nil {
				return nil, err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// park appends a wake channel to the pending queue, or fails if the pool
// is closing or the queue is already at its configured bound.
func (p *Pool) park() (chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateClosing || p.state == StateClosed {
		return nil, ErrNoConnection
	}
	if len(p.pending) >= p.cfg.PendingQueueSize {
		return nil, goerr.New(goerr.CodeRequestQueueFull, "pool: pending queue full")
	}

	wake := make(chan struct{})
	p.pending = append(p.pending, wake)
	return wake, nil
}

// notifyReady wakes every parked Acquire/Write caller; called whenever a
// connection transitions into the pool's READY set (initial Open, growth
// dial, or scoped reconnection after Remove). Every waiter re-checks
// leastBusy itself, so a single ready connection correctly wakes however
// many callers are parked without over-promising availability.
func (p *Pool) notifyReady() {
	p.mu.Lock()
	waiters := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
}

// LeastBusy exposes the current least-loaded READY connection, used by
// request/ to pin a retried execution to the same host/connection
// (spec.md §4.8 RETRY(cl, same_host)). Unlike Acquire, it never parks.
func (p *Pool) LeastBusy() *conn.Conn { return p.leastBusy() }

func (p *Pool) leastBusy() *conn.Conn {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var best *conn.Conn
	for _, c := range p.conns {
		if c.State() != conn.StateReady {
			continue
		}
		if best == nil || c.InFlight() < best.InFlight() {
			best = c
		}
	}
	return best
}

// maybeGrow spawns one additional connection in the background, up to
// MaxConnections, gated by growSem so concurrent callers don't pile up
// redundant dials for the same threshold breach.
func (p *Pool) maybeGrow() {
	p.mu.RLock()
	n := len(p.conns)
	p.mu.RUnlock()
	if n >= p.cfg.MaxConnections {
		return
	}
	if !p.growSem.TryAcquire(1) {
		return
	}

	go func() {
		defer p.growSem.Release(1)
		c, err := p.dialOne()
		if err != nil {
			p.log.Debug("pool: growth dial failed", logfld.New().Add("error", err.Error()))
			return
		}
		p.mu.Lock()
		p.conns = append(p.conns, c)
		p.mu.Unlock()
		p.notifyReady()
	}()
}

// Remove prunes c from the pool's connection slice (called by the
// OnClose hook session/ wires per-connection) and schedules a scoped
// reconnection if the pool is still open.
func (p *Pool) Remove(c *conn.Conn) {
	p.mu.Lock()
	for i, existing := range p.conns {
		if existing == c {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			break
		}
	}
	closing := p.state == StateClosing || p.state == StateClosed
	p.mu.Unlock()

	if closing {
		return
	}

	backoff := NewBackoff(p.cfg.ReconnectBase, p.cfg.ReconnectCap)
	var attempt int
	var retry func()
	retry = func() {
		p.mu.RLock()
		done := p.state == StateClosing || p.state == StateClosed
		n := len(p.conns)
		p.mu.RUnlock()
		if done || n >= p.cfg.CoreConnections {
			return
		}

		replacement, err := p.dialOne()
		if err != nil {
			attempt++
			time.AfterFunc(backoff.Next(attempt), retry)
			return
		}
		p.mu.Lock()
		p.conns = append(p.conns, replacement)
		p.mu.Unlock()
		p.notifyReady()
	}
	retry()
}

// Connections returns a snapshot of the currently tracked connections.
func (p *Pool) Connections() []*conn.Conn {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*conn.Conn, len(p.conns))
	copy(out, p.conns)
	return out
}

// Size reports how many connections (any state) the pool currently
// tracks; healthy-host invariant: CoreConnections <= Size() <= MaxConnections.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

// Close drains and closes every connection exactly once.
func (p *Pool) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.setState(StateClosing)
		p.mu.Lock()
		conns := p.conns
		p.conns = nil
		p.mu.Unlock()
		// Wake every parked Acquire/Write caller now that the pool is
		// closing: each re-checks leastBusy (nil) and re-parks via park(),
		// which now observes StateClosing and returns ErrNoConnection
		// instead of hanging.
		p.notifyReady()

		for _, c := range conns {
			if e := c.Close(); e != nil {
				err = e
			}
		}
		p.setState(StateClosed)
	})
	return err
}
