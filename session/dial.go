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
	"crypto/tls"

	"github.com/sabouaram/cassandra-core/certs"
	"github.com/sabouaram/cassandra-core/conn"
	"github.com/sabouaram/cassandra-core/host"
	"github.com/sabouaram/cassandra-core/protocol"
)

// plainAuth implements conn.Authenticator for spec.md §6's plain-text
// `credentials` option; a pluggable authenticator (§1) is any other
// conn.Authenticator a caller supplies instead.
type plainAuth struct {
	username string
	password string
}

func (a plainAuth) InitialResponse(authenticator string) ([]byte, error) {
	resp := make([]byte, 0, len(a.username)+len(a.password)+2)
	resp = append(resp, 0)
	resp = append(resp, a.username...)
	resp = append(resp, 0)
	resp = append(resp, a.password...)
	return resp, nil
}

func (a plainAuth) EvaluateChallenge(token []byte) ([]byte, error) { return nil, nil }

func (a plainAuth) OnAuthenticationSuccess(token []byte) error { return nil }

func (s *Session) buildTLS(serverName string) (*tls.Config, error) {
	if !s.cfg.TLS.Enabled {
		return nil, nil
	}
	c := &certs.Config{
		CAFile:             s.cfg.TLS.CAFile,
		ClientCertFile:     s.cfg.TLS.CertFile,
		ClientKeyFile:      s.cfg.TLS.KeyFile,
		InsecureSkipVerify: s.cfg.TLS.InsecureSkipVerify,
	}
	if s.cfg.TLS.HostnameVerify {
		c.HostnameVerify = certs.VerifyIdentity
	}
	return c.Build(serverName)
}

func (s *Session) authenticator() conn.Authenticator {
	if s.cfg.Credentials.Username != "" {
		return plainAuth{username: s.cfg.Credentials.Username, password: s.cfg.Credentials.Password}
	}
	return conn.NoAuth{}
}

func (s *Session) protocolVersion() protocol.Version {
	switch s.cfg.ProtocolVersion {
	case 3:
		return protocol.V3
	case 5:
		return protocol.V5
	default:
		return protocol.V4
	}
}

func (s *Session) compression() string {
	return protocol.CompressionLZ4
}

// connFactoryFor builds a pool.ConnFactory for h: every connection it
// produces carries this session's TLS/auth/compression/timeouts, so
// pool/ never needs to know about any of that (spec.md §4.5 separation
// mirrored from pool.ConnFactory's own doc comment).
func (s *Session) connFactoryFor(h *host.Host) func(onClose func()) *conn.Conn {
	addr := h.Address.String()
	return func(onClose func()) *conn.Conn {
		tlsCfg, err := s.buildTLS(h.Address.Hostname)
		if err != nil {
			s.log.Warning("tls config build failed", nil)
		}
		return conn.New(&conn.Config{
			Address:           addr,
			TLS:               tlsCfg,
			Compression:       s.compression(),
			Keyspace:          s.Keyspace(),
			Auth:              s.authenticator(),
			HeartbeatInterval: s.cfg.Timeouts.HeartbeatSecs,
			IdleTimeout:       s.cfg.Timeouts.IdleTimeoutSec,
			ConnectTimeout:    s.cfg.Timeouts.Connect,
			RequestTimeout:    s.cfg.Timeouts.Request,
			EventHandler:      nil,
			Logger:            s.log,
			OnClose:           onClose,
		})
	}
}

func (s *Session) controlDial(addr string, onEvent func(protocol.EventResponse), onClose func()) *conn.Conn {
	tlsCfg, err := s.buildTLS("")
	if err != nil {
		s.log.Warning("tls config build failed for control connection", nil)
	}
	return conn.New(&conn.Config{
		Address:           addr,
		TLS:               tlsCfg,
		Compression:       s.compression(),
		Auth:              s.authenticator(),
		HeartbeatInterval: s.cfg.Timeouts.HeartbeatSecs,
		IdleTimeout:       s.cfg.Timeouts.IdleTimeoutSec,
		ConnectTimeout:    s.cfg.Timeouts.Connect,
		RequestTimeout:    s.cfg.Timeouts.Request,
		EventHandler:      onEvent,
		Logger:            s.log,
		OnClose:           onClose,
	})
}
