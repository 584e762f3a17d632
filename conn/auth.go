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

package conn

// Authenticator is the pluggable SASL collaborator the handshake drives
// when the server responds AUTHENTICATE (spec.md §4.4 step 3 and §1: "an
// authenticator implementation is a pluggable external collaborator").
// This package never implements a concrete mechanism (PLAIN, GSSAPI,
// LDAP, ...) itself.
type Authenticator interface {
	// InitialResponse returns the first AUTH_RESPONSE token. authenticator
	// is the server's advertised authenticator class name from the
	// AUTHENTICATE frame.
	InitialResponse(authenticator string) ([]byte, error)
	// EvaluateChallenge replies to one AUTH_CHALLENGE token.
	EvaluateChallenge(challenge []byte) ([]byte, error)
	// OnAuthenticationSuccess observes the server's final AUTH_SUCCESS
	// token (may be empty); most mechanisms ignore it.
	OnAuthenticationSuccess(token []byte) error
}

// NoAuth is the default Authenticator used when the server never sends
// AUTHENTICATE; its methods are never called in that path.
type NoAuth struct{}

func (NoAuth) InitialResponse(string) ([]byte, error)    { return nil, nil }
func (NoAuth) EvaluateChallenge([]byte) ([]byte, error)  { return nil, nil }
func (NoAuth) OnAuthenticationSuccess([]byte) error       { return nil }
