// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

package edge

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tensorlink-foundation/tensorlink/lib/netutil"
	"github.com/tensorlink-foundation/tensorlink/wire"
)

// Protocol selects the transport protocol for a handle. TCP is the
// only protocol implemented; the selector exists so the wire-level
// handshake does not have to change when another stream transport is
// added.
type Protocol int

const (
	// ProtocolTCP exchanges frames over plain TCP connections.
	ProtocolTCP Protocol = iota
)

// Options configures optional handle behavior. The zero value (or a
// nil pointer) selects the defaults.
type Options struct {
	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger

	// Timeout bounds each individual socket operation, including the
	// handshake steps. Zero selects the ten-second default.
	Timeout time.Duration
}

// callbackState bundles the event callback with its opaque user
// context so both are swapped atomically.
type callbackState struct {
	cb       EventCallback
	userData any
}

// Handle is one node's participation in the edge transport. It owns
// the listener, the connection table, and the event callback, and is
// the unit of lifecycle: created by NewHandle, torn down by Release.
//
// All methods are safe for concurrent use. Configuration and table
// structure are guarded by one coarse per-handle lock; receiver
// goroutines never take that lock, so blocking socket I/O never holds
// it.
type Handle struct {
	mu sync.Mutex

	// valid is the live marker. Release clears it first, so any
	// operation racing the release fails fast with
	// ErrInvalidParameter instead of touching torn-down state.
	// Atomic so receiver goroutines can check it without the lock.
	valid atomic.Bool

	id       string
	topic    string
	protocol Protocol

	// isServer distinguishes the node that accepts first contact and
	// assigns peer ids (server) from the node that dials it (client).
	isServer bool

	// listenIP and listenPort form the reachable address this node
	// advertises in host-info frames.
	listenIP   string
	listenPort int

	// caps is the capability string sent to every peer that dials in.
	caps string

	// peerID is this node's own id, assigned by the server's
	// capability frame during the connect handshake.
	peerID int64

	// lastPeerID generates monotonically increasing peer ids when
	// acting as server. Seeded from the wall clock so ids stay unique
	// across restarts.
	lastPeerID atomic.Int64

	callback atomic.Pointer[callbackState]

	table    *connTable
	listener net.Listener

	timeout time.Duration
	logger  *slog.Logger
}

// NewHandle creates a handle for the node identified by id,
// participating in the given topic. Defaults: TCP, server role,
// listening on "localhost" with an ephemeral port.
func NewHandle(id, topic string, options *Options) (*Handle, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: node id is empty", ErrInvalidParameter)
	}
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is empty", ErrInvalidParameter)
	}

	h := &Handle{
		id:       id,
		topic:    topic,
		protocol: ProtocolTCP,
		isServer: true,
		listenIP: "localhost",
		table:    newConnTable(),
		timeout:  defaultTimeout,
		logger:   slog.Default(),
	}
	if options != nil {
		if options.Logger != nil {
			h.logger = options.Logger
		}
		if options.Timeout > 0 {
			h.timeout = options.Timeout
		}
	}
	h.logger = h.logger.With("node", id)
	h.lastPeerID.Store(time.Now().UnixMicro())
	h.valid.Store(true)
	return h, nil
}

// Start opens the listener and begins accepting peers. A client role
// with no configured port discovers a free one first, so its
// advertised host-info address is always reachable. Start returns as
// soon as the listener is armed; accepted sockets are handled on
// their own goroutines.
func (h *Handle) Start(isServer bool) error {
	if !h.valid.Load() {
		return fmt.Errorf("%w: handle is released", ErrInvalidParameter)
	}

	h.mu.Lock()
	if h.listener != nil {
		h.mu.Unlock()
		return fmt.Errorf("%w: handle is already started", ErrInvalidParameter)
	}
	h.isServer = isServer

	if !isServer && h.listenPort == 0 {
		port, err := netutil.AvailablePort()
		if err != nil {
			h.mu.Unlock()
			return fmt.Errorf("%w: discovering listen port: %w", ErrConnectionFailure, err)
		}
		h.listenPort = port
	}

	listener, err := net.Listen("tcp", netutil.HostString(h.listenIP, h.listenPort))
	if err != nil {
		h.mu.Unlock()
		return fmt.Errorf("%w: listen on %s: %w", ErrConnectionFailure, netutil.HostString(h.listenIP, h.listenPort), err)
	}
	if h.listenPort == 0 {
		h.listenPort = listener.Addr().(*net.TCPAddr).Port
	}
	h.listener = listener
	h.mu.Unlock()

	h.logger.Info("listener started", "address", listener.Addr().String(), "server", isServer)
	go h.acceptLoop(listener)
	return nil
}

// acceptLoop accepts peers until the listener is closed. Each
// accepted socket runs its handshake on its own goroutine so the
// loop re-arms immediately.
func (h *Handle) acceptLoop(listener net.Listener) {
	for {
		raw, err := listener.Accept()
		if err != nil {
			if !netutil.IsExpectedCloseError(err) && h.valid.Load() {
				h.logger.Error("accept failed, listener stopping", "error", err)
			}
			return
		}
		go func() {
			if err := h.acceptPeer(raw); err != nil {
				h.logger.Error("inbound handshake failed", "remote", raw.RemoteAddr().String(), "error", err)
			}
		}()
	}
}

// ListenAddress returns the "ip:port" address this handle advertises
// to peers.
func (h *Handle) ListenAddress() (string, error) {
	if !h.valid.Load() {
		return "", fmt.Errorf("%w: handle is released", ErrInvalidParameter)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return netutil.HostString(h.listenIP, h.listenPort), nil
}

// SetEventCallback registers the event callback and its opaque user
// context. The previous callback receives a CallbackReleased event
// first; an error from that aborts the swap.
func (h *Handle) SetEventCallback(cb EventCallback, userData any) error {
	if !h.valid.Load() {
		return fmt.Errorf("%w: handle is released", ErrInvalidParameter)
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.invokeEvent(&Event{Kind: CallbackReleased}); err != nil {
		return fmt.Errorf("previous callback refused release: %w", err)
	}
	if cb == nil {
		h.callback.Store(nil)
		return nil
	}
	h.callback.Store(&callbackState{cb: cb, userData: userData})
	return nil
}

// Connect establishes the outbound connection to a peer at ip:port,
// running the connect-side handshake: receive the peer's capability,
// let the callback accept or reject it, then advertise this node's
// own reachable address so the peer can dial back. Marks the handle
// as client — peer ids are then taken from the peer's capability
// frames instead of generated locally.
func (h *Handle) Connect(ip string, port int) error {
	if ip == "" {
		return fmt.Errorf("%w: peer ip is empty", ErrInvalidParameter)
	}
	if !h.valid.Load() {
		return fmt.Errorf("%w: handle is released", ErrInvalidParameter)
	}

	h.mu.Lock()
	if h.callback.Load() == nil {
		h.mu.Unlock()
		return fmt.Errorf("%w: no event callback registered to check the peer capability", ErrConnectionFailure)
	}
	h.isServer = false
	h.mu.Unlock()

	if err := h.dialPeer(ip, port); err != nil {
		return fmt.Errorf("connect to %s: %w", netutil.HostString(ip, port), err)
	}
	return nil
}

// Disconnect closes every registered connection, both directions of
// every peer. The handle stays valid and can connect again.
func (h *Handle) Disconnect() error {
	if !h.valid.Load() {
		return fmt.Errorf("%w: handle is released", ErrInvalidParameter)
	}
	h.mu.Lock()
	taken := h.table.takeAll()
	h.mu.Unlock()

	// Closing joins receiver goroutines, so it must happen outside
	// the lock: a receiver blocked inside Respond would otherwise
	// deadlock against us.
	for _, conn := range taken {
		conn.close()
	}
	return nil
}

// Request pushes data to the peer this client handle is connected
// to, on the outbound connection registered under the handle's own
// peer id.
func (h *Handle) Request(data *Data) error {
	if err := data.checkValid(); err != nil {
		return err
	}
	if !h.valid.Load() {
		return fmt.Errorf("%w: handle is released", ErrInvalidParameter)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sendTo(h.peerID, data)
}

// Respond pushes data back to the peer that originated it, using the
// peer id stashed in the data's metadata by the message receiver.
func (h *Handle) Respond(data *Data) error {
	if err := data.checkValid(); err != nil {
		return err
	}
	if !h.valid.Load() {
		return fmt.Errorf("%w: handle is released", ErrInvalidParameter)
	}

	value, err := data.Meta(MetaPeerID)
	if err != nil {
		return fmt.Errorf("%w: data carries no origin peer id", ErrInvalidParameter)
	}
	peerID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: malformed origin peer id %q", ErrInvalidParameter, value)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sendTo(peerID, data)
}

// sendTo builds a transfer frame from data and sends it on the
// outbound connection of the given peer. Callers hold the handle
// lock.
func (h *Handle) sendTo(peerID int64, data *Data) error {
	entry := h.table.get(peerID)
	if entry == nil || entry.sink == nil {
		return fmt.Errorf("%w: no outbound connection for peer %d", ErrInvalidParameter, peerID)
	}
	if !entry.sink.alive() {
		return fmt.Errorf("%w: outbound connection for peer %d is dead", ErrConnectionFailure, peerID)
	}

	frame := wire.NewFrame(wire.CmdTransferData, peerID)
	for i := 0; i < data.BufferCount(); i++ {
		buffer, err := data.Buffer(i)
		if err != nil {
			return err
		}
		if err := frame.AppendBuffer(buffer); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidParameter, err)
		}
	}
	return entry.sink.sendFrame(frame)
}

// SetInfo updates one configuration value. Keys are matched
// case-insensitively: CAPS appends to the capability string, IP and
// PORT set the advertised listen address, TOPIC replaces the topic.
// Unrecognized keys are logged and ignored, not rejected.
func (h *Handle) SetInfo(key, value string) error {
	if key == "" {
		return fmt.Errorf("%w: info key is empty", ErrInvalidParameter)
	}
	if !h.valid.Load() {
		return fmt.Errorf("%w: handle is released", ErrInvalidParameter)
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case strings.EqualFold(key, "CAPS"):
		h.caps += value
	case strings.EqualFold(key, "IP"):
		h.listenIP = value
	case strings.EqualFold(key, "PORT"):
		port, err := strconv.Atoi(value)
		if err != nil || port < 0 || port > 65535 {
			return fmt.Errorf("%w: malformed port %q", ErrInvalidParameter, value)
		}
		h.listenPort = port
	case strings.EqualFold(key, "TOPIC"):
		h.topic = value
	default:
		h.logger.Warn("ignoring unknown info key", "key", key)
	}
	return nil
}

// Topic returns the handle's topic.
func (h *Handle) Topic() (string, error) {
	if !h.valid.Load() {
		return "", fmt.Errorf("%w: handle is released", ErrInvalidParameter)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.topic, nil
}

// ID returns the node id the handle was created with.
func (h *Handle) ID() string {
	return h.id
}

// Publish is a pass-through for the surrounding system's topic
// broker. This transport layer performs no brokered publishing; the
// call validates its arguments and succeeds without effect.
func (h *Handle) Publish(data *Data) error {
	if err := data.checkValid(); err != nil {
		return err
	}
	if !h.valid.Load() {
		return fmt.Errorf("%w: handle is released", ErrInvalidParameter)
	}
	return nil
}

// Subscribe is a pass-through for the surrounding system's topic
// broker, with the same contract as Publish.
func (h *Handle) Subscribe(data *Data) error {
	if err := data.checkValid(); err != nil {
		return err
	}
	if !h.valid.Load() {
		return fmt.Errorf("%w: handle is released", ErrInvalidParameter)
	}
	return nil
}

// Unsubscribe is a pass-through for the surrounding system's topic
// broker.
func (h *Handle) Unsubscribe() error {
	if !h.valid.Load() {
		return fmt.Errorf("%w: handle is released", ErrInvalidParameter)
	}
	return nil
}

// Release invalidates the handle, then closes the listener and every
// registered connection. The marker is cleared before any teardown so
// operations racing the release fail fast instead of touching state
// mid-teardown. Release joins all receiver goroutines before
// returning.
func (h *Handle) Release() error {
	if !h.valid.CompareAndSwap(true, false) {
		return fmt.Errorf("%w: handle is already released", ErrInvalidParameter)
	}

	h.mu.Lock()
	h.callback.Store(nil)
	listener := h.listener
	h.listener = nil
	taken := h.table.takeAll()
	h.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}
	for _, conn := range taken {
		conn.close()
	}
	h.logger.Info("handle released")
	return nil
}

// invokeEvent delivers an event to the registered callback. A handle
// without a callback drops the event with a warning — this matters
// only for data events, since Connect requires a callback before any
// capability check can happen.
func (h *Handle) invokeEvent(event *Event) error {
	state := h.callback.Load()
	if state == nil || state.cb == nil {
		h.logger.Warn("no event callback registered, dropping event", "kind", event.Kind.String())
		return nil
	}
	return state.cb(event, state.userData)
}
