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

// White-box tests: this file lives in package conn (not conn_test) so it
// can splice a fake transport.Socket into a Conn without going through a
// real TCP handshake, and so it can assert on streams.InUse() directly.
package conn

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	durpkg "github.com/sabouaram/cassandra-core/duration"
	"github.com/sabouaram/cassandra-core/logger"
	"github.com/sabouaram/cassandra-core/protocol"
)

// fakeSocket is a transport.Socket double driven entirely by the test: Send
// captures outbound frames instead of writing to a real kernel socket, and
// the test pushes inbound frames onto frames to simulate a server reply.
type fakeSocket struct {
	mu     sync.Mutex
	sent   []protocol.Frame
	frames chan protocol.Frame
	errs   chan error

	// holdReply, when true, makes Send only record the outbound frame —
	// the test drives the reply itself via pushReady. When false (the
	// default), Send immediately echoes back a READY frame on the same
	// stream id, simulating a server that answers right away.
	holdReply bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		frames: make(chan protocol.Frame, 8),
		errs:   make(chan error, 1),
	}
}

func (f *fakeSocket) Connect() error    { return nil }
func (f *fakeSocket) Close() error      { return nil }
func (f *fakeSocket) IsConnected() bool { return true }

func (f *fakeSocket) Send(frame []byte) error {
	hdr, err := protocol.DecodeHeader(frame)
	if err != nil {
		return err
	}
	body := make([]byte, len(frame)-protocol.HeaderSize)
	copy(body, frame[protocol.HeaderSize:])

	f.mu.Lock()
	f.sent = append(f.sent, protocol.Frame{Header: hdr, Body: body})
	hold := f.holdReply
	f.mu.Unlock()

	if !hold {
		f.pushReady(hdr.StreamID)
	}
	return nil
}

func (f *fakeSocket) Frames() <-chan protocol.Frame { return f.frames }
func (f *fakeSocket) Errors() <-chan error          { return f.errs }

// pushReady delivers a READY frame for streamID. A real server sends READY
// only in reply to STARTUP; these tests also use it as a stand-in reply to
// whatever request holds that stream.
func (f *fakeSocket) pushReady(streamID int16) {
	f.frames <- protocol.Frame{
		Header: protocol.Header{Version: protocol.V4, StreamID: streamID, Opcode: protocol.OpReady},
		Body:   nil,
	}
}

func newTestConn(maxStreams int, requestTimeout time.Duration) (*Conn, *fakeSocket) {
	cfg := &Config{
		Address:        "test",
		MaxStreams:     maxStreams,
		RequestTimeout: durpkg.New(requestTimeout),
		Logger:         logger.Discard(),
	}
	c := New(cfg)
	sock := newFakeSocket()
	c.sock = sock
	c.setState(StateReady)
	go c.dispatchLoop()
	return c, sock
}

var _ = Describe("Conn round-trip / stream lifecycle", func() {
	It("releases the stream id on a normal success reply", func() {
		c, sock := newTestConn(4, time.Second)

		resp, err := c.roundtrip(context.Background(), protocol.Options{})
		Expect(err).ToNot(HaveOccurred())
		Expect(resp).ToNot(BeNil())

		Expect(c.streams.InUse()).To(Equal(0))
		Expect(sock.sent).To(HaveLen(1))
	})

	It("keeps the stream allocated across a timeout and releases it once the late reply lands", func() {
		c, sock := newTestConn(4, 20*time.Millisecond)
		sock.holdReply = true

		var (
			wg       sync.WaitGroup
			roundErr error
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, roundErr = c.roundtrip(context.Background(), protocol.Options{})
		}()
		wg.Wait()

		Expect(roundErr).To(HaveOccurred())
		// The request timed out before any reply arrived, yet spec.md §4.4
		// says the stream id stays allocated until the reply shows up or
		// the connection defuncts — it must NOT be released here.
		Expect(c.streams.InUse()).To(Equal(1))
		Expect(c.pend).To(HaveLen(1))

		var streamID int16
		for id := range c.pend {
			streamID = id
		}

		sock.pushReady(streamID)

		Eventually(func() int { return c.streams.InUse() }, "1s").Should(Equal(0))
		Expect(c.pend).To(HaveLen(0))
	})

	It("keeps the stream allocated across ctx cancellation and releases it once the late reply lands", func() {
		c, sock := newTestConn(4, time.Second)
		sock.holdReply = true

		ctx, cancel := context.WithCancel(context.Background())
		var (
			wg       sync.WaitGroup
			roundErr error
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, roundErr = c.roundtrip(ctx, protocol.Options{})
		}()

		Eventually(func() int { return c.streams.InUse() }, "1s").Should(Equal(1))
		cancel()
		wg.Wait()

		Expect(roundErr).To(Equal(context.Canceled))
		Expect(c.streams.InUse()).To(Equal(1))

		var streamID int16
		for id := range c.pend {
			streamID = id
		}
		sock.pushReady(streamID)

		Eventually(func() int { return c.streams.InUse() }, "1s").Should(Equal(0))
	})

	It("exhausts and reclaims stream ids across many sequential round-trips", func() {
		c, _ := newTestConn(2, time.Second)

		for i := 0; i < 10; i++ {
			_, err := c.roundtrip(context.Background(), protocol.Options{})
			Expect(err).ToNot(HaveOccurred())
		}
		Expect(c.streams.InUse()).To(Equal(0))
	})
})

var _ = Describe("Conn.Close", func() {
	It("wakes every pending round-trip with a defunct error and releases its stream id", func() {
		c, sock := newTestConn(4, time.Second)
		sock.holdReply = true

		ctx := context.Background()
		errs := make(chan error, 2)
		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := c.roundtrip(ctx, protocol.Options{})
				errs <- err
			}()
		}

		Eventually(func() int { return c.streams.InUse() }, "1s").Should(Equal(2))

		Expect(c.Close()).To(Succeed())
		wg.Wait()
		close(errs)

		for err := range errs {
			Expect(err).To(HaveOccurred())
		}
		Expect(c.streams.InUse()).To(Equal(0))
	})

	It("is idempotent", func() {
		c, _ := newTestConn(2, time.Second)
		Expect(c.Close()).To(Succeed())
		Expect(c.Close()).To(Succeed())
	})
})
