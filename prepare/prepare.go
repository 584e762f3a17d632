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

// Package prepare fans a successful PREPARE out to every other ready host,
// independent of the user's future (spec.md §4.10). The session triggers it
// from request.Dependencies.OnPrepared; nothing in this package ever touches
// a Future.
package prepare

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	cassatomic "github.com/sabouaram/cassandra-core/atomic"
	"github.com/sabouaram/cassandra-core/host"
	"github.com/sabouaram/cassandra-core/logger"
	logfld "github.com/sabouaram/cassandra-core/logger/fields"
	"github.com/sabouaram/cassandra-core/pool"
	"github.com/sabouaram/cassandra-core/protocol"
)

// Config controls whether prepare-all runs at all, and the per-host budget
// for each fan-out PREPARE.
type Config struct {
	Enabled bool
	Timeout time.Duration // 0 means the parent context's deadline governs
}

// Coordinator is the prepare-all fan-out described in spec.md §4.10: "the
// coordinator writes a PREPARE with the same query on every other ready
// pool ... individual failures are logged, never surfaced."
type Coordinator struct {
	cfg Config
	log logger.Logger
}

func New(cfg Config, log logger.Logger) *Coordinator {
	if log == nil {
		log = logger.Discard()
	}
	return &Coordinator{cfg: cfg, log: log}
}

// PrepareAll writes cql/keyspace to every pool in targets. targets is
// expected to already exclude the host whose PREPARE produced the entry
// the caller is fanning out. It holds a shared remaining counter that
// reaches zero once every callback has fired (success, error, or timeout),
// purely for the completion log line below; the original PREPARE's
// response to the user was already set by the caller before this runs.
func (c *Coordinator) PrepareAll(ctx context.Context, cql string, keyspace string, targets map[*host.Host]*pool.Pool) {
	if !c.cfg.Enabled || len(targets) == 0 {
		return
	}

	remaining := cassatomic.NewCounter()
	remaining.Set(int64(len(targets)))

	var mu sync.Mutex
	var errs *multierror.Error

	var g errgroup.Group
	for hst, p := range targets {
		hst, p := hst, p
		g.Go(func() error {
			defer remaining.Dec()
			if err := c.prepareOne(ctx, hst, p, cql, keyspace); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", hst.Address.String(), err))
				mu.Unlock()
			}
			return nil // a single host's failure never aborts the rest of the fan-out
		})
	}
	_ = g.Wait()

	fields := logfld.New().Add("cql", cql).Add("hosts", len(targets)).Add("remaining", remaining.Get())
	if errs != nil {
		c.log.Debug("prepare-all: one or more hosts failed", fields.Add("errors", errs.Error()))
	} else {
		c.log.Debug("prepare-all: complete", fields)
	}
}

func (c *Coordinator) prepareOne(ctx context.Context, hst *host.Host, p *pool.Pool, cql, keyspace string) error {
	cctx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	conn := p.LeastBusy()
	if conn == nil {
		return fmt.Errorf("no connection available")
	}

	resp, err := conn.Execute(cctx, protocol.Prepare{CQL: cql, Keyspace: keyspace})
	if err != nil {
		return err
	}
	if errResp, ok := resp.(protocol.ErrorResponse); ok {
		return fmt.Errorf("%s", errResp.Message)
	}
	return nil
}
