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

// Package host tracks the cluster's host set (C6): the host registry, the
// token ring / replication strategies, and the control connection that
// keeps both current by discovering topology and subscribing to server
// push events (spec.md §4.6).
package host

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sabouaram/cassandra-core/conn"
	durpkg "github.com/sabouaram/cassandra-core/duration"
	goerr "github.com/sabouaram/cassandra-core/errors"
	"github.com/sabouaram/cassandra-core/logger"
	logfld "github.com/sabouaram/cassandra-core/logger/fields"
	"github.com/sabouaram/cassandra-core/pool"
	"github.com/sabouaram/cassandra-core/protocol"
)

// DialFunc builds and connects a bare control-plane connection to addr;
// supplied by session/ so host/ never needs TLS/auth details of its own
// (mirrors pool.ConnFactory's separation of concerns).
type DialFunc func(addr string, onEvent func(protocol.EventResponse), onClose func()) *conn.Conn

// ControlConfig configures the Control connection (spec.md §4.6, §9 Open
// Question #3: re-election shares the pool reconnection schedule).
type ControlConfig struct {
	Dial DialFunc

	ConnectTimeout durpkg.Duration
	ReconnectBase  durpkg.Duration
	ReconnectCap   durpkg.Duration

	SchemaAgreementTimeout durpkg.Duration
	SchemaPollInterval     durpkg.Duration

	// NativePort is the CQL native-protocol port assumed for peers
	// discovered off system.peers, whose "peer" column carries no port
	// (system.peers_v2's native_port is left as a documented gap, see
	// DESIGN.md).
	NativePort int32

	Logger logger.Logger
}

func (c *ControlConfig) withDefaults() *ControlConfig {
	cp := *c
	if cp.ConnectTimeout.Duration == 0 {
		cp.ConnectTimeout = durpkg.MustParse("5s")
	}
	if cp.SchemaAgreementTimeout.Duration == 0 {
		cp.SchemaAgreementTimeout = durpkg.MustParse("10s")
	}
	if cp.SchemaPollInterval.Duration == 0 {
		cp.SchemaPollInterval = durpkg.MustParse("200ms")
	}
	if cp.NativePort <= 0 {
		cp.NativePort = 9042
	}
	if cp.Logger == nil {
		cp.Logger = logger.Discard()
	}
	return &cp
}

// Control owns the single connection used for topology/schema discovery
// and server push events (spec.md §4.6: "one dedicated connection per
// cluster, re-elected from the live host set on defunct").
type Control struct {
	cfg *ControlConfig
	log logger.Logger
	reg *Registry

	mu      sync.Mutex
	current *conn.Conn
	host    Address

	// reElectLimiter throttles thrashing re-election attempts separately
	// from the exponential Backoff (at most one attempt per second).
	reElectLimiter *rate.Limiter

	closed bool
}

// NewControl returns a Control bound to reg; call Start to establish the
// first connection.
func NewControl(reg *Registry, cfg *ControlConfig) *Control {
	cfg = cfg.withDefaults()
	return &Control{
		cfg:            cfg,
		log:            cfg.Logger,
		reg:            reg,
		reElectLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Start dials each contact point in turn until one accepts the control
// connection, then bootstraps topology and subscribes to events.
func (c *Control) Start(ctx context.Context, contactPoints []Address) error {
	var lastErr error
	for _, addr := range contactPoints {
		if err := c.connectTo(ctx, addr); err != nil {
			lastErr = err
			continue
		}
		return c.bootstrap(ctx)
	}
	return goerr.Wrap(goerr.CodeUnableToInit, "control: no contact point accepted a control connection", lastErr)
}

func (c *Control) connectTo(ctx context.Context, addr Address) error {
	cc := c.cfg.Dial(addr.String(), c.handleEvent, c.onDefunct)

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout.Duration)
	defer cancel()

	if err := cc.Connect(dialCtx); err != nil {
		return err
	}

	c.mu.Lock()
	c.current = cc
	c.host = addr
	c.mu.Unlock()
	return nil
}

// bootstrap populates the registry from system.local/system.peers and
// registers for push events (spec.md §4.6).
func (c *Control) bootstrap(ctx context.Context) error {
	if err := c.refreshTopology(ctx); err != nil {
		return err
	}

	cc := c.connection()
	if cc == nil {
		return goerr.New(goerr.CodeUnableToInit, "control: lost connection during bootstrap")
	}

	_, err := cc.Execute(ctx, protocol.Register{EventTypes: []protocol.EventType{
		protocol.EventTopologyChange,
		protocol.EventStatusChange,
		protocol.EventSchemaChange,
	}})
	if err != nil {
		return goerr.Wrap(goerr.CodeUnableToInit, "REGISTER failed", err)
	}
	return nil
}

func (c *Control) connection() *conn.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// refreshTopology re-queries system.local and system.peers, upserts every
// host into the registry, and rebuilds the token map (spec.md §4.6, §3).
func (c *Control) refreshTopology(ctx context.Context) error {
	cc := c.connection()
	if cc == nil {
		return goerr.New(goerr.CodeUnableToInit, "control: no active connection")
	}

	localRes, err := c.query(ctx, cc, "SELECT data_center, rack, tokens, schema_version, host_id, release_version, rpc_address FROM system.local")
	if err != nil {
		return err
	}
	peersRes, err := c.query(ctx, cc, "SELECT peer, data_center, rack, tokens, schema_version, host_id, release_version FROM system.peers")
	if err != nil {
		return err
	}

	type assignment struct {
		Token Token
		HostID string
		DC     string
	}
	var assignments []assignment

	addHost := func(addr Address, row systemRow) {
		addr.Port = c.cfg.NativePort
		h := NewHost(addr)
		h.DC, h.Rack, h.SchemaVer, h.ReleaseVer, h.HostID = row.DataCenter, row.Rack, row.SchemaVersion, row.ReleaseVersion, row.HostID
		for _, t := range row.Tokens {
			tok, terr := ParseMurmur3(t)
			if terr != nil {
				continue
			}
			h.Tokens = append(h.Tokens, tok)
			assignments = append(assignments, assignment{Token: tok, HostID: row.HostID, DC: row.DataCenter})
		}
		if !c.reg.Upsert(h) {
			if cur, ok := c.reg.Get(h.Address); ok {
				cur.SchemaVer, cur.Tokens = h.SchemaVer, h.Tokens
			}
		}
	}

	for _, row := range decodeSystemRows(localRes, "rpc_address") {
		addHost(Address{Family: c.host.Family, Octets: c.host.Octets}, row)
	}
	for _, row := range decodeSystemRows(peersRes, "peer") {
		addHost(row.Peer, row)
	}

	if len(assignments) > 0 {
		entries := make([]struct {
			Token  Token
			HostID string
			DC     string
		}, len(assignments))
		for i, a := range assignments {
			entries[i] = struct {
				Token  Token
				HostID string
				DC     string
			}{a.Token, a.HostID, a.DC}
		}
		ring := BuildRing(entries)
		c.reg.SetTokenMap(c.reg.TokenMap().WithRing("", ring))
	}

	return nil
}

func (c *Control) query(ctx context.Context, cc *conn.Conn, cql string) (*protocol.RowsResult, error) {
	resp, err := cc.Execute(ctx, protocol.Query{CQL: cql, Params: protocol.QueryParams{Consistency: protocol.ConsistencyOne}})
	if err != nil {
		return nil, err
	}
	res, ok := resp.(protocol.Result)
	if !ok || res.Rows == nil {
		return nil, goerr.New(goerr.CodeUnexpectedResponse, "expected a rows result from "+cql)
	}
	return res.Rows, nil
}

// handleEvent dispatches one pushed EVENT frame (spec.md §4.6: NEW_NODE,
// REMOVED_NODE, MOVED_NODE, UP, DOWN, and every SCHEMA_CHANGE sub-kind).
func (c *Control) handleEvent(ev protocol.EventResponse) {
	var addr Address
	if ev.Type != protocol.EventSchemaChange {
		a, err := FromInet(ev.Address)
		if err != nil {
			c.log.Debug("control: event carried an unparsable address", logfld.New().Add("error", err.Error()))
			return
		}
		addr = a
	}

	switch ev.Type {
	case protocol.EventTopologyChange:
		switch protocol.TopologyChangeType(ev.ChangeType) {
		case protocol.TopologyNewNode, protocol.TopologyMovedNode:
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout.Duration)
			_ = c.refreshTopology(ctx)
			cancel()
			if h, ok := c.reg.Get(addr); ok {
				h.MarkUp()
			}
		case protocol.TopologyRemovedNode:
			c.reg.Remove(addr)
		}
	case protocol.EventStatusChange:
		switch protocol.StatusChangeType(ev.ChangeType) {
		case protocol.StatusUp:
			c.reg.MarkUp(addr)
		case protocol.StatusDown:
			c.reg.MarkDown(addr)
		}
	case protocol.EventSchemaChange:
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SchemaAgreementTimeout.Duration)
			defer cancel()
			_ = c.WaitForSchemaAgreement(ctx)
		}()
	}
}

// WaitForSchemaAgreement polls every UP host's schema_version until they
// converge to one value or the deadline expires (spec.md §4.9.2: "the
// driver polls system.local/system.peers schema_version across all UP
// hosts until they agree, or a timeout elapses").
func (c *Control) WaitForSchemaAgreement(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.SchemaPollInterval.Duration)
	defer ticker.Stop()

	for {
		if err := c.refreshTopology(ctx); err == nil {
			versions := make(map[string]struct{})
			for _, h := range c.reg.Snapshot() {
				if h.IsUp() {
					versions[h.SchemaVer] = struct{}{}
				}
			}
			if len(versions) <= 1 {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return goerr.New(goerr.CodeRequestTimedOut, "schema agreement wait timed out")
		case <-ticker.C:
		}
	}
}

// onDefunct is the control connection's conn.Config.OnClose hook: it
// re-elects a new control host from the live registry using the same
// backoff schedule pool/ uses for its own reconnection (spec.md §9 Open
// Question #3).
func (c *Control) onDefunct() {
	c.mu.Lock()
	closed := c.closed
	c.current = nil
	c.mu.Unlock()
	if closed {
		return
	}

	backoff := pool.NewBackoff(c.cfg.ReconnectBase, c.cfg.ReconnectCap)
	go c.reElectLoop(backoff)
}

func (c *Control) reElectLoop(backoff *pool.Backoff) {
	for attempt := 0; ; attempt++ {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		if !c.reElectLimiter.Allow() {
			time.Sleep(backoff.Next(attempt))
			continue
		}

		candidates := c.reg.Snapshot()
		var connected bool
		for _, h := range candidates {
			if !h.IsUp() {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout.Duration)
			err := c.connectTo(ctx, h.Address)
			cancel()
			if err == nil {
				connected = true
				break
			}
		}

		if connected {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout.Duration)
			if err := c.bootstrap(ctx); err != nil {
				c.log.Warning("control: re-elected host failed bootstrap", logfld.New().Add("error", err.Error()))
			}
			cancel()
			return
		}

		c.log.Debug("control: re-election found no candidate, retrying", logfld.New().Add("attempt", attempt))
		time.Sleep(backoff.Next(attempt))
	}
}

// Close shuts down the control connection and stops re-election.
func (c *Control) Close() error {
	c.mu.Lock()
	c.closed = true
	cc := c.current
	c.current = nil
	c.mu.Unlock()

	if cc == nil {
		return nil
	}
	return cc.Close()
}
