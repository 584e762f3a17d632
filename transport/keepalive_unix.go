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

//go:build linux || darwin

package transport

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// tuneKeepalive enables SO_KEEPALIVE and sets the idle time before the
// first probe (TCP_KEEPIDLE on Linux, TCP_KEEPALIVE on Darwin); the probe
// interval and count stay at the kernel defaults. This lets a dead peer be
// detected well before the application-level
// heartbeat in conn/ would notice (spec.md §4.3: heartbeat is the primary
// liveness signal, kernel keepalive is a second line of defense).
func tuneKeepalive(conn net.Conn, idle time.Duration) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	raw, err := tc.SyscallConn()
	if err != nil {
		return err
	}

	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = setKeepaliveOpts(int(fd), int(idle.Seconds()))
	})
	if err != nil {
		return err
	}
	return sockErr
}

func setKeepaliveOpts(fd int, idleSeconds int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
		return err
	}
	return unix.SetsockoptInt(fd, keepaliveIdleLevel, keepaliveIdleOpt, idleSeconds)
}
