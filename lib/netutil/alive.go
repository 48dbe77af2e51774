// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"fmt"
	"net"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// SocketAlive reports whether conn is still usable for reads. It
// distinguishes three socket states without consuming any data:
//
//   - no readable/error/hangup condition pending: idle but alive
//   - condition pending with bytes available: data waiting, alive
//   - condition pending with zero bytes available: the peer sent FIN
//     or the socket errored — dead
//
// Connections that do not expose a raw file descriptor (such as
// net.Pipe endpoints used in tests) are reported alive; for those the
// subsequent read surfaces the failure instead.
func SocketAlive(conn net.Conn) bool {
	if conn == nil {
		return false
	}
	syscallConn, ok := conn.(syscall.Conn)
	if !ok {
		return true
	}
	raw, err := syscallConn.SyscallConn()
	if err != nil {
		return false
	}

	alive := true
	controlErr := raw.Control(func(fd uintptr) {
		pollFDs := []unix.PollFd{{
			Fd:     int32(fd),
			Events: unix.POLLIN | unix.POLLPRI,
		}}
		// Zero timeout: report the current condition without blocking.
		// POLLERR and POLLHUP are always reported regardless of the
		// requested events. EINTR means no condition was observed.
		n, err := unix.Poll(pollFDs, 0)
		if err != nil || n == 0 {
			return
		}

		available, err := unix.IoctlGetInt(int(fd), unix.TIOCINQ)
		if err != nil || available <= 0 {
			// A pending condition with nothing to read is EOF or a
			// socket error.
			alive = false
		}
	})
	if controlErr != nil {
		return false
	}
	return alive
}

// HostString formats an ip and port as the "<ip>:<port>" string
// exchanged in host-info frames.
func HostString(ip string, port int) string {
	return net.JoinHostPort(ip, strconv.Itoa(port))
}

// ParseHostString splits a "<ip>:<port>" host-info string into its
// parts.
func ParseHostString(host string) (string, int, error) {
	ip, portText, err := net.SplitHostPort(host)
	if err != nil {
		return "", 0, fmt.Errorf("malformed host string %q: %w", host, err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		return "", 0, fmt.Errorf("malformed port in host string %q: %w", host, err)
	}
	return ip, port, nil
}

// AvailablePort asks the kernel for a free TCP port by binding to
// port zero and reading back the assignment. The port is released
// before returning, so a racing process could claim it; callers bind
// it again promptly.
func AvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, fmt.Errorf("probing for a free port: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	if err := listener.Close(); err != nil {
		return 0, fmt.Errorf("releasing probe listener: %w", err)
	}
	return port, nil
}
