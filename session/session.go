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

// Package session is the public entry point (C11): it owns the pools,
// the host registry and control connection, the pluggable policies, and
// the N event-loop threads a request is dispatched across (spec.md
// §4.11, grounded on nabbar-golib/config/manage.go's "own components,
// dispatch, broadcast" shape).
package session

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	cassatomic "github.com/sabouaram/cassandra-core/atomic"
	"github.com/sabouaram/cassandra-core/config"
	goerr "github.com/sabouaram/cassandra-core/errors"
	"github.com/sabouaram/cassandra-core/host"
	"github.com/sabouaram/cassandra-core/lbpolicy"
	"github.com/sabouaram/cassandra-core/logger"
	logfld "github.com/sabouaram/cassandra-core/logger/fields"
	"github.com/sabouaram/cassandra-core/pool"
	"github.com/sabouaram/cassandra-core/prepare"
	"github.com/sabouaram/cassandra-core/protocol"
	"github.com/sabouaram/cassandra-core/request"
	"github.com/sabouaram/cassandra-core/retry"
	"github.com/sabouaram/cassandra-core/speculative"
)

// Session is the top-level handle an application holds: prepare/execute/
// close, all future-returning (spec.md §6 "Public API").
type Session struct {
	cfg *config.Config
	log logger.Logger

	registry *host.Registry
	control  *host.Control

	policy      lbpolicy.Policy
	retryPolicy retry.Policy
	specPolicy  speculative.Policy

	procs    []*processor
	nextProc cassatomic.Counter

	prepared   *preparedCache
	prepareAll *prepare.Coordinator

	metrics *Metrics

	keyspace cassatomic.Value[string]

	closeOnce sync.Once
	closed    cassatomic.Flag
}

// New connects to the configured contact points, bootstraps the host
// registry off the control connection, and spins up cfg.NumThreads
// event-loop threads. It returns once the control connection is usable;
// per-host pools open asynchronously as OnHostAdded fires.
func New(cfg *config.Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, goerr.Wrap(goerr.CodeExecutionProfileInvalid, "invalid session configuration", err)
	}

	log := logger.New()

	s := &Session{
		cfg:         cfg,
		log:         log,
		registry:    host.NewRegistry(),
		policy:      buildPolicy(cfg),
		retryPolicy: buildRetryPolicy(cfg),
		specPolicy:  buildSpecPolicy(cfg),
		prepared:    newPreparedCache(),
		metrics:     NewMetrics("cassandra_core"),
		nextProc:    cassatomic.NewCounter(),
		keyspace:    cassatomic.NewValue[string](),
		closed:      cassatomic.NewFlag(),
	}
	s.keyspace.Store(cfg.Keyspace)
	s.prepareAll = prepare.New(prepare.Config{Enabled: cfg.PrepareOnAllHosts}, log)

	for i := 0; i < cfg.NumThreads; i++ {
		s.procs = append(s.procs, newProcessor(i, 256, log))
	}

	// The session itself is the host.Listener: registered before Start so
	// every host.Upsert the control connection performs during its own
	// bootstrap fans straight out to OnHostAdded (spec.md §4.6: "notify
	// pools to create a pool for this host").
	s.registry.AddListener(s)

	contactAddrs, err := resolveContactPoints(cfg.ContactPoints, cfg.Port)
	if err != nil {
		return nil, goerr.Wrap(goerr.CodeHostResolution, "failed to resolve contact points", err)
	}

	s.control = host.NewControl(s.registry, &host.ControlConfig{
		Dial:                   s.controlDial,
		ConnectTimeout:         cfg.Timeouts.Connect,
		ReconnectBase:          cfg.Pool.ReconnectBase,
		ReconnectCap:           cfg.Pool.ReconnectCap,
		SchemaAgreementTimeout: cfg.Timeouts.SchemaWait,
		NativePort:             int32(cfg.Port),
		Logger:                 log,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Connect.Duration)
	defer cancel()
	if err := s.control.Start(ctx, contactAddrs); err != nil {
		return nil, err
	}

	s.policy.Init(nil, s.registry.Snapshot(), rand.New(rand.NewSource(time.Now().UnixNano())))

	return s, nil
}

func resolveContactPoints(points []string, defaultPort int) ([]host.Address, error) {
	out := make([]host.Address, 0, len(points))
	for _, p := range points {
		h, portStr, err := net.SplitHostPort(p)
		port := defaultPort
		if err != nil {
			h = p
		} else if portStr != "" {
			port, err = strconv.Atoi(portStr)
			if err != nil {
				return nil, fmt.Errorf("session: invalid contact point port %q: %w", p, err)
			}
		}

		ip := net.ParseIP(h)
		if ip == nil {
			resolved, rerr := net.ResolveIPAddr("ip", h)
			if rerr != nil {
				return nil, fmt.Errorf("session: resolve contact point %q: %w", h, rerr)
			}
			ip = resolved.IP
		}

		addr, aerr := host.NewAddress(ip, int32(port))
		if aerr != nil {
			return nil, aerr
		}
		addr.Hostname = h
		out = append(out, addr)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("session: no contact points supplied")
	}
	return out, nil
}

func buildPolicy(cfg *config.Config) lbpolicy.Policy {
	var base lbpolicy.Policy
	switch cfg.LoadBalancing.Policy {
	case "dc_aware":
		base = lbpolicy.NewDCAware(cfg.LoadBalancing.LocalDC, cfg.LoadBalancing.UsedHostsPerRemoteDC)
	case "rack_aware":
		base = lbpolicy.NewRackAware(cfg.LoadBalancing.LocalDC, cfg.LoadBalancing.LocalRack, cfg.LoadBalancing.UsedHostsPerRemoteDC)
	case "token_aware":
		base = lbpolicy.NewTokenAware(lbpolicy.NewRoundRobin(), host.SimpleStrategy{ReplicationFactor: 3})
	default:
		base = lbpolicy.NewRoundRobin()
	}
	if len(cfg.LoadBalancing.FilterAllow) > 0 || len(cfg.LoadBalancing.FilterDeny) > 0 {
		return lbpolicy.NewFilter(base, cfg.LoadBalancing.FilterAllow, cfg.LoadBalancing.FilterDeny)
	}
	return base
}

func buildRetryPolicy(cfg *config.Config) retry.Policy {
	if cfg.Retry.Policy == "downgrading" {
		return retry.Downgrading{}
	}
	return retry.Default{}
}

func buildSpecPolicy(cfg *config.Config) speculative.Policy {
	if cfg.Speculative.Policy == "constant" {
		return speculative.Constant{Delay: cfg.Speculative.Delay.Duration, Max: cfg.Speculative.MaxTries}
	}
	return speculative.None{}
}

// --- host.Listener -----------------------------------------------------

// OnHostAdded opens a pool for h on every thread: each (host, event-loop)
// pair owns its own connections (spec.md §3 Pool, §4.11).
func (s *Session) OnHostAdded(h *host.Host) {
	cfg := s.poolConfigFor(h)
	for _, p := range s.procs {
		p.addHost(h, s.connFactoryFor(h), cfg)
	}
	if s.cfg.PrepareOnUpOrAddHost {
		go s.reprepareAllOn(h)
	}
}

func (s *Session) OnHostRemoved(h *host.Host) {
	for _, p := range s.procs {
		p.removeHost(h)
	}
}

func (s *Session) OnHostUp(h *host.Host) {
	s.log.Debug("host marked up", logfld.New().Add("host", h.Address.String()))
}

func (s *Session) OnHostDown(h *host.Host) {
	s.log.Debug("host marked down", logfld.New().Add("host", h.Address.String()))
}

func (s *Session) poolConfigFor(h *host.Host) *pool.Config {
	return &pool.Config{
		CoreConnections:                s.cfg.Pool.CoreConnectionsPerHost,
		MaxConnections:                 s.cfg.Pool.MaxConnectionsPerHost,
		MaxConcurrentRequestsThreshold: s.cfg.Pool.MaxConcurrentRequestsThreshold,
		ConnectTimeout:                 s.cfg.Timeouts.Connect,
		ReconnectBase:                  s.cfg.Pool.ReconnectBase,
		ReconnectCap:                   s.cfg.Pool.ReconnectCap,
		MaxConsecutiveFailures:         s.cfg.Pool.MaxConsecutiveFailures,
		PendingQueueSize:               s.cfg.Pool.PendingQueueSize,
		Logger:                         s.log,
	}
}

// reprepareAllOn re-issues every cached prepared statement against a
// newly added host (spec.md §6 `prepare_on_up_or_add_host`): a host that
// joins after statements were already prepared elsewhere would otherwise
// only learn them lazily, via the first UNPREPARED a client hits there.
func (s *Session) reprepareAllOn(h *host.Host) {
	cached := s.prepared.all()
	if len(cached) == 0 {
		return
	}
	time.Sleep(200 * time.Millisecond) // let the pool's core connections come up first
	proc := s.procs[0]
	p, ok := proc.getPool(h)
	if !ok {
		return
	}
	for cql, entry := range cached {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeouts.Request.Duration)
		c := p.LeastBusy()
		if c != nil {
			_, _ = c.Execute(ctx, prepareRequest(cql, entry.Keyspace))
		}
		cancel()
	}
}

// --- dispatch ------------------------------------------------------

func (s *Session) nextProcessor() *processor {
	n := int(s.nextProc.Inc()) % len(s.procs)
	return s.procs[n]
}

func (s *Session) dependenciesFor(proc *processor) *request.Dependencies {
	return &request.Dependencies{
		Pools: func(h *host.Host) (*pool.Pool, bool) { return proc.getPool(h) },
		Policy: s.policy,
		Registry: s.registry,
		Prepared: s.prepared,
		WaitForSchemaAgreement: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeouts.SchemaWait.Duration)
			defer cancel()
			return s.control.WaitForSchemaAgreement(ctx)
		},
		AwaitKeyspaceBroadcast: func(keyspace string) { s.keyspace.Store(keyspace) },
		OnPrepared: func(hst *host.Host, stmt request.Statement, entry *request.PreparedEntry) {
			s.prepared.Store(stmt.CQL, entry)
			if s.cfg.PrepareOnAllHosts {
				targets := proc.poolsExcept(hst, s.registry.Snapshot())
				go s.prepareAll.PrepareAll(context.Background(), stmt.CQL, stmt.Keyspace, targets)
			}
		},
		Logger: s.log,
	}
}

func (s *Session) defaultOptions(opts request.Options) request.Options {
	if opts.RetryPolicy == nil {
		opts.RetryPolicy = s.retryPolicy
	}
	if opts.SpeculativePolicy == nil {
		opts.SpeculativePolicy = s.specPolicy
	}
	if opts.Timeout == 0 {
		opts.Timeout = s.cfg.Timeouts.Request.Duration
	}
	return opts
}

// Prepare sends a PREPARE for cql and returns a Future resolving to the
// PREPARED result (spec.md §6 `prepare(query) -> future<Prepared>`).
func (s *Session) Prepare(ctx context.Context, cql string, opts request.Options) *request.Future {
	proc := s.nextProcessor()
	stmt := request.Statement{Kind: request.KindPrepare, CQL: cql, Request: prepareRequest(cql, opts.Routing.Keyspace), Keyspace: opts.Routing.Keyspace}
	h := request.NewHandler(ctx, s.dependenciesFor(proc), stmt, s.defaultOptions(opts))
	return h.Execute()
}

// Execute runs one statement (QUERY or EXECUTE, already built into
// stmt.Request) through the full request lifecycle (spec.md §6
// `execute(statement) -> future<Result>`).
func (s *Session) Execute(ctx context.Context, stmt request.Statement, opts request.Options) *request.Future {
	proc := s.nextProcessor()
	if stmt.Keyspace == "" {
		stmt.Keyspace = s.Keyspace()
	}
	h := request.NewHandler(ctx, s.dependenciesFor(proc), stmt, s.defaultOptions(opts))
	return h.Execute()
}

// ExecuteBatch runs a BATCH request (spec.md §6
// `execute_batch(batch) -> future<Result>`).
func (s *Session) ExecuteBatch(ctx context.Context, stmt request.Statement, opts request.Options) *request.Future {
	stmt.Kind = request.KindBatch
	return s.Execute(ctx, stmt, opts)
}

// Keyspace returns the session-wide default keyspace last broadcast by a
// RESULT(set_keyspace) (spec.md §4.9 step 5, §4.11 `set_keyspace`).
func (s *Session) Keyspace() string { return s.keyspace.Load() }

// SetKeyspace is the session-wide keyspace change of spec.md §4.11: it
// stores the new default so every subsequent request lazily USEs it on
// whatever connection it lands on (spec.md §4.4).
func (s *Session) SetKeyspace(keyspace string) { s.keyspace.Store(keyspace) }

// Registry exposes the host registry for diagnostics (cmd/cqlcli) and
// for callers that want to build their own RoutingInfo.Token from the
// current token map.
func (s *Session) Registry() *host.Registry { return s.registry }

// Metrics exposes the session's registered Prometheus metric set.
func (s *Session) Metrics() *Metrics { return s.metrics }

// Close drains every thread's in-flight work up to cfg.Timeouts.Shutdown,
// then closes every pool and the control connection (spec.md §4.11
// `close() -> future<void>`, implemented here as a blocking call since
// shutdown has no further caller-visible continuation).
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.TrySet()
		var wg sync.WaitGroup
		for _, p := range s.procs {
			wg.Add(1)
			go func(p *processor) {
				defer wg.Done()
				p.close(s.cfg.Timeouts.Shutdown.Duration)
			}(p)
		}
		wg.Wait()
		if s.control != nil {
			err = s.control.Close()
		}
	})
	return err
}

// IsClosed reports whether Close has already run.
func (s *Session) IsClosed() bool { return s.closed.IsSet() }

func prepareRequest(cql, keyspace string) protocol.Request {
	return protocol.Prepare{CQL: cql, Keyspace: keyspace}
}
