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

// Package transport is the raw byte-stream socket layer (spec.md C2): it
// owns the net.Conn/tls.Conn, reassembles whole frames out of an
// arbitrarily fragmented TCP stream, and serializes writes through a
// pending-write queue. It knows nothing about CQL opcodes or streams —
// that is conn/'s job. The public surface (New/Connect/IsConnected/Close)
// mirrors the teacher's socket/client/tcp client, and the read loop's
// peek-header-then-read-body shape follows cowsql's Protocol.recv.
package transport

import (
	stderr "errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sabouaram/cassandra-core/logger"
	"github.com/sabouaram/cassandra-core/protocol"
)

var (
	ErrAddress    = stderr.New("transport: empty or invalid address")
	ErrClosed     = stderr.New("transport: socket is closed")
	ErrNotConnected = stderr.New("transport: socket is not connected")
)

// Dialer opens the underlying connection; production code passes
// (&net.Dialer{}).DialContext or a TLS-wrapping variant built from
// certs.Config.Build.
type Dialer func(network, address string) (net.Conn, error)

// Socket is the minimal contract conn/ drives: queue a write, receive
// decoded frames, observe liveness, close exactly once.
type Socket interface {
	Connect() error
	Close() error
	IsConnected() bool

	// Send enqueues a fully-encoded frame for writing. It returns once the
	// frame is queued, not once it hits the wire (spec.md §4.2: "a
	// pending-write queue absorbs writes issued faster than the kernel
	// socket buffer drains").
	Send(frame []byte) error

	// Frames delivers fully reassembled inbound frames in arrival order.
	Frames() <-chan protocol.Frame

	// Errors delivers at most one fatal transport error, after which the
	// socket closes itself. Neither this channel nor Frames is ever closed.
	Errors() <-chan error
}

type socket struct {
	addr   string
	dial   Dialer
	log    logger.Logger

	mu     sync.Mutex
	conn   net.Conn
	closed bool

	writeCh chan []byte
	frameCh chan protocol.Frame
	errCh   chan error
	doneCh  chan struct{}

	closeOnce sync.Once
}

// New validates addr and returns a not-yet-connected Socket, the way
// sckclt.New validates its address before any dial attempt.
func New(addr string, dial Dialer, log logger.Logger) (Socket, error) {
	if addr == "" {
		return nil, ErrAddress
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrAddress, err)
	}
	if dial == nil {
		dial = net.Dial
	}
	if log == nil {
		log = logger.Discard()
	}

	return &socket{
		addr:    addr,
		dial:    dial,
		log:     log,
		writeCh: make(chan []byte, 256),
		frameCh: make(chan protocol.Frame, 64),
		errCh:   make(chan error, 1),
	}, nil
}

func (s *socket) Connect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}

	conn, err := s.dial("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	if err := tuneKeepalive(conn, 30*time.Second); err != nil {
		s.log.Debug("keepalive sockopt tuning unavailable", nil)
	}

	s.conn = conn
	s.doneCh = make(chan struct{})
	done := s.doneCh
	s.mu.Unlock()

	go s.readLoop(conn, done)
	go s.writeLoop(conn, done)

	return nil
}

func (s *socket) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.conn != nil
}

func (s *socket) Send(frame []byte) error {
	s.mu.Lock()
	if s.closed || s.conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.mu.Unlock()

	select {
	case s.writeCh <- frame:
		return nil
	case <-s.doneChSnapshot():
		return ErrNotConnected
	}
}

func (s *socket) doneChSnapshot() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doneCh
}

func (s *socket) Frames() <-chan protocol.Frame { return s.frameCh }
func (s *socket) Errors() <-chan error          { return s.errCh }

func (s *socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		conn := s.conn
		done := s.doneCh
		s.mu.Unlock()

		if done != nil {
			close(done)
		}
		if conn != nil {
			err = conn.Close()
		}
	})
	return err
}

func (s *socket) writeLoop(conn net.Conn, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case buf := <-s.writeCh:
			if _, err := conn.Write(buf); err != nil {
				s.fail(fmt.Errorf("transport: write: %w", err))
				return
			}
		}
	}
}

// readLoop mirrors cowsql's recvHeader/recvBody split: peek the fixed
// 9-byte header, then read exactly Length more bytes into a pooled scratch
// buffer and hand on an exact-size copy of them.
func (s *socket) readLoop(conn net.Conn, done chan struct{}) {
	hdr := make([]byte, protocol.HeaderSize)
	pool := newBufferPool()

	for {
		if _, err := readFull(conn, hdr, done); err != nil {
			s.fail(err)
			return
		}

		h, err := protocol.DecodeHeader(hdr)
		if err != nil {
			s.fail(fmt.Errorf("transport: bad frame header: %w", err))
			return
		}

		body, err := pool.readInto(int(h.Length), func(buf []byte) error {
			_, err := readFull(conn, buf, done)
			return err
		})
		if err != nil {
			s.fail(err)
			return
		}

		select {
		case s.frameCh <- protocol.Frame{Header: h, Body: body}:
		case <-done:
			return
		}
	}
}

func readFull(conn net.Conn, buf []byte, done chan struct{}) (int, error) {
	total := 0
	for total < len(buf) {
		select {
		case <-done:
			return total, ErrClosed
		default:
		}

		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return total, err
		}
	}
	return total, nil
}

func (s *socket) fail(err error) {
	select {
	case s.errCh <- err:
	default:
	}
	_ = s.Close()
}
