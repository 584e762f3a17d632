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

// White-box tests: this file lives in package pool (not pool_test) so it
// can assert on p.state/p.pending directly when exercising the parking
// behavior added for spec.md §4.5/§5.
package pool

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/cassandra-core/conn"
	durpkg "github.com/sabouaram/cassandra-core/duration"
	goerr "github.com/sabouaram/cassandra-core/errors"
	"github.com/sabouaram/cassandra-core/logger"
	"github.com/sabouaram/cassandra-core/protocol"
)

// serveReadyEcho accepts one connection on ln and answers every inbound
// frame with a READY frame on the same stream id — enough to satisfy
// conn.Conn's handshake (OPTIONS round-trip, then STARTUP round-trip with
// no keyspace/auth configured) and any subsequent no-auth request.
func serveReadyEcho(ln net.Listener) {
	c, err := ln.Accept()
	if err != nil {
		return
	}
	defer c.Close()

	for {
		hdr := make([]byte, protocol.HeaderSize)
		if _, err := io.ReadFull(c, hdr); err != nil {
			return
		}
		h, err := protocol.DecodeHeader(hdr)
		if err != nil {
			return
		}
		body := make([]byte, h.Length)
		if _, err := io.ReadFull(c, body); err != nil {
			return
		}

		reply := protocol.WriteFrame(protocol.Header{
			Version:  protocol.V4,
			StreamID: h.StreamID,
			Opcode:   protocol.OpReady,
		}, nil)
		if _, err := c.Write(reply); err != nil {
			return
		}
	}
}

func newReadyFactory(addr string) ConnFactory {
	return func(onClose func()) *conn.Conn {
		return conn.New(&conn.Config{
			Address:        addr,
			ConnectTimeout: durpkg.New(2 * time.Second),
			RequestTimeout: durpkg.New(2 * time.Second),
			Logger:         logger.Discard(),
			OnClose:        onClose,
		})
	}
}

var _ = Describe("Pool.Open / Write against a no-auth fake node", func() {
	var ln net.Listener

	BeforeEach(func() {
		var err error
		ln, err = net.Listen("tcp", "127.0.0.1:0")
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		_ = ln.Close()
	})

	It("opens its core connections and serves a write", func() {
		go serveReadyEcho(ln)

		p := New(&Config{
			CoreConnections: 1,
			MaxConnections:  1,
			Factory:         newReadyFactory(ln.Addr().String()),
			Logger:          logger.Discard(),
		})
		Expect(p.Open()).To(Succeed())
		defer p.Close()

		Expect(p.State()).To(Equal(StateReady))
		Expect(p.Size()).To(Equal(1))

		resp, err := p.Write(context.Background(), protocol.Options{})
		Expect(err).ToNot(HaveOccurred())
		Expect(resp).ToNot(BeNil())
	})
})

var _ = Describe("Pool.Acquire parking", func() {
	It("parks and returns the ctx error when no connection ever becomes ready", func() {
		p := New(&Config{
			CoreConnections: 1,
			Factory:         func(func()) *conn.Conn { return conn.New(&conn.Config{Address: "unused", Logger: logger.Discard()}) },
			Logger:          logger.Discard(),
		})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := p.Acquire(ctx)
		Expect(err).To(Equal(context.DeadlineExceeded))
	})

	It("wakes a parked Acquire once notifyReady fires", func() {
		p := New(&Config{
			CoreConnections: 1,
			Factory:         func(func()) *conn.Conn { return conn.New(&conn.Config{Address: "unused", Logger: logger.Discard()}) },
			Logger:          logger.Discard(),
		})

		done := make(chan error, 1)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, err := p.Acquire(ctx)
			done <- err
		}()

		Eventually(func() int {
			p.mu.RLock()
			defer p.mu.RUnlock()
			return len(p.pending)
		}, "1s").Should(Equal(1))

		// No connection was ever actually added, so the woken caller
		// re-checks leastBusy (still nil) and parks again; closing the
		// pool is what finally resolves it deterministically.
		Consistently(done, "50ms").ShouldNot(Receive())
		p.notifyReady()
		Consistently(done, "50ms").ShouldNot(Receive())

		Expect(p.Close()).To(Succeed())
		Eventually(done, "1s").Should(Receive(Equal(ErrNoConnection)))
	})

	It("fails fast with CodeRequestQueueFull once the pending queue is at capacity", func() {
		p := New(&Config{
			CoreConnections:  1,
			PendingQueueSize: 2,
			Factory:          func(func()) *conn.Conn { return conn.New(&conn.Config{Address: "unused", Logger: logger.Discard()}) },
			Logger:           logger.Discard(),
		})

		ctx := context.Background()
		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = p.Acquire(ctx)
			}()
		}

		Eventually(func() int {
			p.mu.RLock()
			defer p.mu.RUnlock()
			return len(p.pending)
		}, "1s").Should(Equal(2))

		_, err := p.Acquire(context.Background())
		Expect(err).To(HaveOccurred())

		gerr, ok := err.(goerr.Error)
		Expect(ok).To(BeTrue())
		Expect(gerr.HasCode(goerr.CodeRequestQueueFull)).To(BeTrue())

		Expect(p.Close()).To(Succeed())
		wg.Wait()
	})

	It("returns ErrNoConnection for a new park attempt once the pool is closing", func() {
		p := New(&Config{
			CoreConnections: 1,
			Factory:         func(func()) *conn.Conn { return conn.New(&conn.Config{Address: "unused", Logger: logger.Discard()}) },
			Logger:          logger.Discard(),
		})
		Expect(p.Close()).To(Succeed())

		_, err := p.Acquire(context.Background())
		Expect(err).To(Equal(ErrNoConnection))
	})
})
