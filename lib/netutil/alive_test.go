// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"net"
	"testing"
	"time"
)

// tcpPair returns two connected TCP endpoints on the loopback
// interface, closed automatically when the test ends.
func tcpPair(t *testing.T) (client, server net.Conn) {
	t.Helper()
	listener, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	client, err = net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	select {
	case server = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for accept")
	}
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestSocketAliveIdleConnection(t *testing.T) {
	t.Parallel()
	client, _ := tcpPair(t)
	if !SocketAlive(client) {
		t.Error("idle connection reported dead")
	}
}

func TestSocketAliveWithPendingData(t *testing.T) {
	t.Parallel()
	client, server := tcpPair(t)
	if _, err := server.Write([]byte("pending")); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Wait for the bytes to land in the client's receive buffer.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if SocketAlive(client) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("connection with pending data reported dead")
}

func TestSocketAliveAfterPeerClose(t *testing.T) {
	t.Parallel()
	client, server := tcpPair(t)
	if err := server.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// The FIN takes a moment to arrive; poll until the probe notices.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !SocketAlive(client) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("connection whose peer sent FIN still reported alive")
}

func TestSocketAliveNilConnection(t *testing.T) {
	t.Parallel()
	if SocketAlive(nil) {
		t.Error("nil connection reported alive")
	}
}

func TestHostStringRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		ip   string
		port int
	}{
		{"127.0.0.1", 7891},
		{"localhost", 0},
		{"192.168.1.10", 65535},
	}
	for _, test := range tests {
		host := HostString(test.ip, test.port)
		ip, port, err := ParseHostString(host)
		if err != nil {
			t.Errorf("ParseHostString(%q): %v", host, err)
			continue
		}
		if ip != test.ip || port != test.port {
			t.Errorf("round trip of %s:%d: got %s:%d", test.ip, test.port, ip, port)
		}
	}
}

func TestParseHostStringMalformed(t *testing.T) {
	t.Parallel()
	for _, host := range []string{"", "no-port", "1.2.3.4:notaport"} {
		if _, _, err := ParseHostString(host); err == nil {
			t.Errorf("ParseHostString(%q): want error, got nil", host)
		}
	}
}

func TestAvailablePort(t *testing.T) {
	t.Parallel()
	port, err := AvailablePort()
	if err != nil {
		t.Fatalf("AvailablePort: %v", err)
	}
	if port <= 0 || port > 65535 {
		t.Errorf("port %d out of range", port)
	}

	// The port must be bindable right after discovery.
	listener, err := net.Listen("tcp", HostString("localhost", port))
	if err != nil {
		t.Fatalf("binding discovered port %d: %v", port, err)
	}
	listener.Close()
}
