// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

package edge

import "fmt"

// EventKind identifies an asynchronous event delivered to a handle's
// event callback. The callback is the only channel through which
// asynchronous failures and incoming data reach the application;
// synchronous calls report their own status directly.
type EventKind int

const (
	// CapabilityCheck is raised during the connect-side handshake with
	// the peer's capability string. Returning an error rejects the
	// peer: the handshake sends an error frame and aborts, and no
	// connection is registered.
	CapabilityCheck EventKind = iota

	// NewDataReceived is raised by a message receiver for each
	// incoming data transfer. The event carries the received buffer
	// set, tagged with the originating peer id in its metadata so a
	// later Respond can route back. Returning an error is advisory
	// only — it is logged but does not close the connection.
	NewDataReceived

	// CallbackReleased is raised to the previous callback when a new
	// one is registered, so it can release any per-callback state.
	CallbackReleased
)

// String returns the human-readable name of an event kind.
func (k EventKind) String() string {
	switch k {
	case CapabilityCheck:
		return "capability-check"
	case NewDataReceived:
		return "new-data-received"
	case CallbackReleased:
		return "callback-released"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Event is one asynchronous notification from a handle.
type Event struct {
	// Kind identifies the notification.
	Kind EventKind

	// Capability is the peer's capability string. Set only for
	// CapabilityCheck events.
	Capability string

	// Data is the received buffer set. Set only for NewDataReceived
	// events. The transport destroys it after the callback returns;
	// callbacks that need the payload longer must copy it.
	Data *Data
}

// EventCallback handles events from a handle. The userData value is
// the opaque context registered alongside the callback. Callbacks run
// on transport goroutines and must not block for long — a slow
// callback stalls that connection's receiver.
type EventCallback func(event *Event, userData any) error
