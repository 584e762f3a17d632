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

// Package host owns the cluster's known-host set and the control
// connection that keeps it current (spec.md C6): topology/schema
// discovery off system.local/system.peers, event-driven updates, and
// the token map feeding token-aware routing.
package host

import (
	"fmt"
	"net"
	"strconv"

	"github.com/sabouaram/cassandra-core/protocol"
)

// Family distinguishes IPv4 from IPv6 addresses; spec.md's invariant
// "family matches octet count" is enforced by NewAddress below rather
// than stored redundantly trusted from callers.
type Family uint8

const (
	FamilyV4 Family = 4
	FamilyV6 Family = 16
)

// Address identifies one cluster node's socket endpoint (spec.md §3
// Address: "(family, octets, port, optional server-name, optional
// resolved-hostname)"). Comparison (Key) deliberately excludes Hostname.
type Address struct {
	Family   Family
	Octets   []byte
	Port     int32
	ServerName string // SNI / rpc broadcast name, optional
	Hostname string // reverse-resolved name, optional, excluded from Key
}

// NewAddress validates that octet count matches the IP family.
func NewAddress(ip net.IP, port int32) (Address, error) {
	if v4 := ip.To4(); v4 != nil {
		return Address{Family: FamilyV4, Octets: []byte(v4), Port: port}, nil
	}
	if v6 := ip.To16(); v6 != nil {
		return Address{Family: FamilyV6, Octets: []byte(v6), Port: port}, nil
	}
	return Address{}, fmt.Errorf("host: %q is neither a valid IPv4 nor IPv6 address", ip.String())
}

// FromInet adapts a decoded wire Inet (spec.md §4.1) into an Address.
func FromInet(in protocol.Inet) (Address, error) {
	switch len(in.IP) {
	case 4:
		return Address{Family: FamilyV4, Octets: in.IP, Port: in.Port}, nil
	case 16:
		return Address{Family: FamilyV6, Octets: in.IP, Port: in.Port}, nil
	default:
		return Address{}, fmt.Errorf("host: inet address length %d is neither 4 nor 16", len(in.IP))
	}
}

// IP returns the net.IP view of the address octets.
func (a Address) IP() net.IP { return net.IP(a.Octets) }

// Key is the comparison/map key: every field except Hostname (spec.md §3:
// "Compared by all fields except hostname").
func (a Address) Key() string {
	return fmt.Sprintf("%d|%x|%d|%s", a.Family, a.Octets, a.Port, a.ServerName)
}

// String renders "host:port" suitable for net.Dial.
func (a Address) String() string {
	return net.JoinHostPort(a.IP().String(), strconv.Itoa(int(a.Port)))
}

func (a Address) Equal(b Address) bool { return a.Key() == b.Key() }
