// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

package edge

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tensorlink-foundation/tensorlink/lib/netutil"
	"github.com/tensorlink-foundation/tensorlink/wire"
)

// defaultTimeout is the fallback deadline applied to every socket
// send and receive. Closing a connection pokes an immediate deadline
// to unblock in-flight I/O, so this only bounds the case where a
// close signal is lost to a kernel-level stall.
const defaultTimeout = 10 * time.Second

// connection is one live socket of a duplex channel: either the
// inbound socket the peer dialed into this node (src) or the outbound
// socket this node dialed into the peer (sink). A src connection owns
// a receiver goroutine; sink connections are send-only.
//
// Closing follows a strict order to avoid use-after-close: clear the
// running flag, unblock any in-flight read or write, join the
// receiver goroutine, then close the socket.
type connection struct {
	// address is the remote "ip:port" this connection talks to.
	address string

	// conn is the underlying socket.
	conn net.Conn

	// timeout bounds each individual socket operation.
	timeout time.Duration

	// running is the receiver loop's continue flag. Cleared by close
	// and by the receiver itself when an I/O failure ends the loop.
	running atomic.Bool

	// done is closed by the receiver goroutine on exit. Nil for
	// connections without a receiver.
	done chan struct{}

	// closeOnce makes close idempotent.
	closeOnce sync.Once
}

// newConnection wraps an established socket. TCP sockets get
// TCP_NODELAY so small command frames are not batched behind Nagle's
// algorithm.
func newConnection(raw net.Conn, timeout time.Duration) *connection {
	if tcp, ok := raw.(*net.TCPConn); ok {
		// Best effort; a socket that rejects the option still works.
		_ = tcp.SetNoDelay(true)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &connection{
		address: raw.RemoteAddr().String(),
		conn:    raw,
		timeout: timeout,
	}
}

// sendFrame writes one frame to the socket, looping on partial writes
// until complete. Failures are classified as ErrIO.
func (c *connection) sendFrame(frame *wire.Frame) error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("%w: connection is not open", ErrInvalidParameter)
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return fmt.Errorf("%w: arming write deadline: %w", ErrIO, err)
	}
	if err := wire.WriteFrame(c.conn, frame); err != nil {
		return fmt.Errorf("%w: send %v frame to %s: %w", ErrIO, frame.Command, c.address, err)
	}
	return nil
}

// receiveFrame reads one complete frame from the socket. An oversize
// advertisement is classified as ErrOutOfMemory (the receiver refuses
// to allocate it); every other failure is ErrIO.
func (c *connection) receiveFrame() (*wire.Frame, error) {
	if c == nil || c.conn == nil {
		return nil, fmt.Errorf("%w: connection is not open", ErrInvalidParameter)
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("%w: arming read deadline: %w", ErrIO, err)
	}
	frame, err := wire.ReadFrame(c.conn)
	if err != nil {
		if errors.Is(err, wire.ErrTooLarge) {
			return nil, fmt.Errorf("%w: receive frame from %s: %w", ErrOutOfMemory, c.address, err)
		}
		return nil, fmt.Errorf("%w: receive frame from %s: %w", ErrIO, c.address, err)
	}
	return frame, nil
}

// alive probes the socket without consuming data. A peer that sent
// FIN with nothing left to read is dead; idle and data-pending
// sockets are alive.
func (c *connection) alive() bool {
	return c != nil && netutil.SocketAlive(c.conn)
}

// close tears the connection down. Idempotent. Safe to call while the
// receiver goroutine is blocked in a read: the immediate deadline
// unblocks it with an I/O error, the goroutine observes the cleared
// running flag and exits, and only then is the socket closed.
func (c *connection) close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		c.running.Store(false)
		if c.conn != nil {
			// Unblock any read or write in flight.
			_ = c.conn.SetDeadline(time.Now())
		}
		if c.done != nil {
			<-c.done
		}
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
