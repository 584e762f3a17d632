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

// Package certs assembles a *tls.Config for the socket layer's TLS bridge
// (spec.md §4.1: "TLS session implementation treated as a byte-stream
// transform" is an external collaborator — this package only builds the
// config that crypto/tls consumes, the way the teacher's certificates
// package assembles tls.Config from CA/cert/cipher/curve/version options).
package certs

import (
	"crypto/tls"
	"crypto/x509"
	"os"
)

// HostnameVerifyMode controls how the peer certificate is checked against
// the connection's resolved/advertised hostname (spec.md §4.1: "the peer
// certificate hostname/subject is verified if configured").
type HostnameVerifyMode uint8

const (
	// VerifyNone disables hostname verification beyond the default chain
	// validation crypto/tls already performs.
	VerifyNone HostnameVerifyMode = iota
	// VerifyIdentity requires the peer certificate's SAN/CN to match the
	// connection's resolved hostname.
	VerifyIdentity
)

// Config is the TLS context surface named in the session builder
// (spec.md §6: "tls_context: CA, client cert, hostname-verification mode").
type Config struct {
	CAFile           string
	ClientCertFile   string
	ClientKeyFile    string
	HostnameVerify   HostnameVerifyMode
	InsecureSkipVerify bool
	MinVersion       uint16
}

// Build produces a *tls.Config from Config. serverName is the hostname to
// verify the peer certificate against when HostnameVerify == VerifyIdentity.
func (c *Config) Build(serverName string) (*tls.Config, error) {
	tc := &tls.Config{
		MinVersion:         minOrDefault(c.MinVersion),
		InsecureSkipVerify: c.InsecureSkipVerify, //nolint:gosec // explicit opt-in only
	}

	if c.HostnameVerify == VerifyIdentity {
		tc.ServerName = serverName
	}

	if c.CAFile != "" {
		pool, err := loadCAPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		tc.RootCAs = pool
	}

	if c.ClientCertFile != "" && c.ClientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.ClientCertFile, c.ClientKeyFile)
		if err != nil {
			return nil, err
		}
		tc.Certificates = []tls.Certificate{cert}
	}

	return tc, nil
}

func minOrDefault(v uint16) uint16 {
	if v == 0 {
		return tls.VersionTLS12
	}
	return v
}

func loadCAPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(pem)
	return pool, nil
}
