// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

package edge

import (
	"fmt"
	"net"
	"strings"

	"github.com/tensorlink-foundation/tensorlink/lib/netutil"
	"github.com/tensorlink-foundation/tensorlink/wire"
)

// acceptPeer runs the accept-side handshake on a socket the listener
// just produced:
//
//  1. Send a capability frame carrying the local capability string.
//     The peer id in the frame is newly generated when this node is
//     the server, or this node's own assigned id when it is a client
//     being dialed back.
//  2. Receive the peer's host-info frame with its reachable address.
//  3. Spawn the message receiver and register the socket as the
//     inbound connection for the peer id.
//  4. Server only: dial the advertised address to establish the
//     outbound connection for the same peer id. This reverse dial is
//     what turns two simplex TCP connections into a duplex channel.
//
// If any step through 3 fails, the partially-built connection is
// closed and no table entry is committed for this attempt. A failed
// reverse dial leaves the inbound registration in place — the peer
// can still push data to us, and an explicit Connect can complete
// the channel later.
func (h *Handle) acceptPeer(raw net.Conn) error {
	conn := newConnection(raw, h.timeout)

	h.mu.Lock()
	if !h.valid.Load() {
		h.mu.Unlock()
		conn.close()
		return fmt.Errorf("%w: handle released during accept", ErrInvalidParameter)
	}
	caps := h.caps
	isServer := h.isServer
	var peerID int64
	if isServer {
		peerID = h.lastPeerID.Add(1)
	} else {
		peerID = h.peerID
	}
	h.mu.Unlock()

	capFrame := wire.NewFrame(wire.CmdCapability, peerID)
	if err := capFrame.AppendBuffer([]byte(caps)); err != nil {
		conn.close()
		return err
	}
	if err := conn.sendFrame(capFrame); err != nil {
		conn.close()
		return fmt.Errorf("%w: sending capability: %w", ErrConnectionFailure, err)
	}

	frame, err := conn.receiveFrame()
	if err != nil {
		conn.close()
		return fmt.Errorf("%w: receiving host info: %w", ErrConnectionFailure, err)
	}
	if frame.Command != wire.CmdHostInfo || len(frame.Buffers) == 0 {
		conn.close()
		return fmt.Errorf("%w: expected host-info frame, got %v with %d buffers", ErrConnectionFailure, frame.Command, len(frame.Buffers))
	}
	peerIP, peerPort, err := netutil.ParseHostString(trimHandshakeString(frame.Buffers[0]))
	if err != nil {
		conn.close()
		return fmt.Errorf("%w: %w", ErrConnectionFailure, err)
	}

	h.startReceiver(conn, peerID)

	if err := h.register(peerID, conn, true); err != nil {
		conn.close()
		return err
	}
	h.logger.Info("peer accepted", "peer_id", peerID, "remote", conn.address)

	if isServer {
		if err := h.dialPeer(peerIP, peerPort); err != nil {
			return fmt.Errorf("reverse dial to %s: %w", netutil.HostString(peerIP, peerPort), err)
		}
	}
	return nil
}

// dialPeer runs the connect-side handshake against a peer's listener:
// dial, receive the peer's capability frame, let the event callback
// accept or reject it, then send this node's own reachable address
// and register the socket as the outbound connection under the peer
// id taken from the capability frame. On rejection the peer gets an
// error frame and nothing is registered.
//
// Used both by the public Connect call and by the accept side's
// reverse dial.
func (h *Handle) dialPeer(ip string, port int) error {
	raw, err := net.DialTimeout("tcp", netutil.HostString(ip, port), h.timeout)
	if err != nil {
		return fmt.Errorf("%w: dial: %w", ErrConnectionFailure, err)
	}
	conn := newConnection(raw, h.timeout)

	frame, err := conn.receiveFrame()
	if err != nil {
		conn.close()
		return fmt.Errorf("%w: receiving capability: %w", ErrConnectionFailure, err)
	}
	if frame.Command != wire.CmdCapability || len(frame.Buffers) == 0 {
		conn.close()
		return fmt.Errorf("%w: expected capability frame, got %v with %d buffers", ErrConnectionFailure, frame.Command, len(frame.Buffers))
	}
	peerID := frame.PeerID
	capability := trimHandshakeString(frame.Buffers[0])

	h.mu.Lock()
	if !h.valid.Load() {
		h.mu.Unlock()
		conn.close()
		return fmt.Errorf("%w: handle released during connect", ErrInvalidParameter)
	}
	h.peerID = peerID
	host := netutil.HostString(h.listenIP, h.listenPort)
	h.mu.Unlock()

	if err := h.invokeEvent(&Event{Kind: CapabilityCheck, Capability: capability}); err != nil {
		// The consumer rejected the peer's format. Tell the peer why
		// its handshake is going away, then abort without committing
		// anything.
		_ = conn.sendFrame(wire.NewFrame(wire.CmdError, peerID))
		conn.close()
		return fmt.Errorf("%w: capability %q rejected: %w", ErrConnectionFailure, capability, err)
	}

	hostFrame := wire.NewFrame(wire.CmdHostInfo, peerID)
	if err := hostFrame.AppendBuffer([]byte(host)); err != nil {
		conn.close()
		return err
	}
	if err := conn.sendFrame(hostFrame); err != nil {
		conn.close()
		return fmt.Errorf("%w: sending host info: %w", ErrConnectionFailure, err)
	}

	if err := h.register(peerID, conn, false); err != nil {
		conn.close()
		return err
	}
	h.logger.Info("peer connected", "peer_id", peerID, "remote", conn.address)
	return nil
}

// register commits conn as the inbound (src) or outbound (sink)
// connection of the given peer. A previous connection of the same
// direction is closed before the new one becomes visible in the
// table. The close happens outside the lock: it joins the old
// receiver goroutine, which may itself be blocked in a callback that
// takes the handle lock.
func (h *Handle) register(peerID int64, conn *connection, inbound bool) error {
	h.mu.Lock()
	if !h.valid.Load() {
		h.mu.Unlock()
		return fmt.Errorf("%w: handle released during handshake", ErrInvalidParameter)
	}
	entry := h.table.add(peerID)
	var old *connection
	if inbound {
		old, entry.src = entry.src, nil
	} else {
		old, entry.sink = entry.sink, nil
	}
	h.mu.Unlock()

	if old != nil {
		h.logger.Info("replacing connection", "peer_id", peerID, "inbound", inbound, "old_remote", old.address)
		old.close()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.valid.Load() {
		return fmt.Errorf("%w: handle released during handshake", ErrInvalidParameter)
	}
	entry = h.table.add(peerID)
	if inbound {
		entry.src = conn
	} else {
		entry.sink = conn
	}
	return nil
}

// trimHandshakeString decodes a handshake string buffer. Peers built
// on the reference C implementation send their strings with a
// trailing NUL; tolerate that so capability checks compare the
// intended text.
func trimHandshakeString(buffer []byte) string {
	return strings.TrimRight(string(buffer), "\x00")
}
