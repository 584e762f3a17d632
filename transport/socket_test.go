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

package transport_test

import (
	"io"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/cassandra-core/protocol"
	"github.com/sabouaram/cassandra-core/transport"
)

// echoServer accepts one connection and echoes back a single complete
// frame (header + body), mirroring the request/response shape a real CQL
// node would send back.
func echoServer(ln net.Listener) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	hdr := make([]byte, protocol.HeaderSize)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return
	}
	h, err := protocol.DecodeHeader(hdr)
	if err != nil {
		return
	}
	body := make([]byte, h.Length)
	if _, err := io.ReadFull(conn, body); err != nil {
		return
	}

	_, _ = conn.Write(hdr)
	_, _ = conn.Write(body)
}

var _ = Describe("transport.Socket", func() {
	var ln net.Listener

	BeforeEach(func() {
		var err error
		ln, err = net.Listen("tcp", "127.0.0.1:0")
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		_ = ln.Close()
	})

	It("rejects an empty address", func() {
		_, err := transport.New("", nil, nil)
		Expect(err).To(MatchError(transport.ErrAddress))
	})

	It("rejects a malformed address", func() {
		_, err := transport.New("not-an-address", nil, nil)
		Expect(err).To(HaveOccurred())
	})

	It("connects and round-trips one frame", func() {
		go echoServer(ln)

		sock, err := transport.New(ln.Addr().String(), nil, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(sock.Connect()).To(Succeed())
		defer sock.Close()

		Expect(sock.IsConnected()).To(BeTrue())

		frame := protocol.WriteFrame(protocol.Header{
			Version:  protocol.V4,
			StreamID: 7,
			Opcode:   protocol.OpOptions,
		}, nil)
		Expect(sock.Send(frame)).To(Succeed())

		select {
		case got := <-sock.Frames():
			Expect(got.Header.StreamID).To(Equal(int16(7)))
			Expect(got.Header.Opcode).To(Equal(protocol.OpOptions))
		case <-time.After(2 * time.Second):
			Fail("timed out waiting for echoed frame")
		}
	})

	It("reports ErrNotConnected when sending before Connect", func() {
		sock, err := transport.New(ln.Addr().String(), nil, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(sock.Send([]byte{0})).To(MatchError(transport.ErrNotConnected))
	})

	It("is idempotent on repeated Close", func() {
		sock, err := transport.New(ln.Addr().String(), nil, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(sock.Connect()).To(Succeed())
		Expect(sock.Close()).ToNot(HaveOccurred())
		Expect(sock.Close()).ToNot(HaveOccurred())
	})
})
