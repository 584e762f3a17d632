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

package session

import (
	"sync"
	"time"

	"github.com/sabouaram/cassandra-core/host"
	"github.com/sabouaram/cassandra-core/logger"
	logfld "github.com/sabouaram/cassandra-core/logger/fields"
	"github.com/sabouaram/cassandra-core/pool"
)

// workItem is one closure submitted to a processor's queue; this is the
// "lock-free MPMC queue per thread with a wake async handle" of spec.md
// §4.11 — a buffered Go channel already gives every sender a wait-free
// enqueue and the receiving goroutine's channel-read is the wake, so a
// hand-rolled ring buffer would only duplicate what the runtime provides
// (no pack example implements one to ground a third-party choice on).
type workItem func()

// processor is one event-loop thread: it owns a set of pools, one per
// live host (spec.md §4.11: "each thread runs one set of pools"). The
// pools map is guarded by mu; the session calls addHost, removeHost and
// getPool directly from its own goroutines.
type processor struct {
	id  int
	log logger.Logger

	mu    sync.RWMutex
	pools map[string]*pool.Pool // keyed by host.Address.Key()

	queue chan workItem
	done  chan struct{}
}

func newProcessor(id int, queueSize int, log logger.Logger) *processor {
	if queueSize <= 0 {
		queueSize = 256
	}
	p := &processor{
		id:    id,
		log:   log,
		pools: make(map[string]*pool.Pool),
		queue: make(chan workItem, queueSize),
		done:  make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *processor) loop() {
	for {
		select {
		case w := <-p.queue:
			w()
		case <-p.done:
			return
		}
	}
}

// submit enqueues w to run on p's own goroutine. Host add/remove does not
// go through it: the session calls addHost and removeHost directly.
func (p *processor) submit(w workItem) {
	select {
	case p.queue <- w:
	case <-p.done:
	}
}

func (p *processor) addHost(h *host.Host, factory pool.ConnFactory, cfg *pool.Config) {
	p.mu.Lock()
	if _, exists := p.pools[h.Address.Key()]; exists {
		p.mu.Unlock()
		return
	}
	cp := *cfg
	cp.Factory = factory
	pl := pool.New(&cp)
	p.pools[h.Address.Key()] = pl
	p.mu.Unlock()

	go func() {
		if err := pl.Open(); err != nil {
			p.log.Warning("pool failed to open", logfld.New().Add("thread", p.id).Add("host", h.Address.String()).Add("error", err.Error()))
		}
	}()
}

func (p *processor) removeHost(h *host.Host) {
	p.mu.Lock()
	pl, ok := p.pools[h.Address.Key()]
	delete(p.pools, h.Address.Key())
	p.mu.Unlock()
	if ok {
		_ = pl.Close()
	}
}

func (p *processor) getPool(h *host.Host) (*pool.Pool, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pl, ok := p.pools[h.Address.Key()]
	return pl, ok
}

// poolsExcept returns every pool on this thread keyed by Host, excluding
// origin; used by the prepare-all fan-out (spec.md §4.10).
func (p *processor) poolsExcept(origin *host.Host, hosts []*host.Host) map[*host.Host]*pool.Pool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[*host.Host]*pool.Pool)
	for _, h := range hosts {
		if origin != nil && h.Address.Equal(origin.Address) {
			continue
		}
		if pl, ok := p.pools[h.Address.Key()]; ok {
			out[h] = pl
		}
	}
	return out
}

func (p *processor) close(deadline time.Duration) {
	p.mu.Lock()
	pools := make([]*pool.Pool, 0, len(p.pools))
	for _, pl := range p.pools {
		pools = append(pools, pl)
	}
	p.pools = make(map[string]*pool.Pool)
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, pl := range pools {
		wg.Add(1)
		go func(pl *pool.Pool) {
			defer wg.Done()
			_ = pl.Close()
		}(pl)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(deadline):
		p.log.Warning("pool shutdown exceeded deadline", logfld.New().Add("thread", p.id))
	}

	close(p.done)
}
