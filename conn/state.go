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

// Package conn drives one physical connection through its handshake and
// keeps it alive (spec.md §4.4, C4): NEW → CONNECTING → CONNECTED →
// SSL_HANDSHAKE → SUPPORTED → STARTUP → AUTHENTICATING → [SET_KEYSPACE] →
// READY → CLOSING → CLOSED. Grounded on cowsql's Protocol (mutex-serialized
// Call, deadline honoring) for the request/response pairing and on the
// teacher's socket/client/tcp lifecycle (Connect/IsConnected/Close) for the
// public surface shape.
package conn

// State is one point in the connection's handshake/lifecycle state
// machine.
type State uint8

const (
	StateNew State = iota
	StateConnecting
	StateConnected
	StateSSLHandshake
	StateSupported
	StateStartup
	StateAuthenticating
	StateSetKeyspace
	StateReady
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateSSLHandshake:
		return "SSL_HANDSHAKE"
	case StateSupported:
		return "SUPPORTED"
	case StateStartup:
		return "STARTUP"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateSetKeyspace:
		return "SET_KEYSPACE"
	case StateReady:
		return "READY"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// IsPreReady reports whether s precedes READY — an error in any of these
// states transitions straight to CLOSING (spec.md §4.4).
func (s State) IsPreReady() bool { return s < StateReady }
