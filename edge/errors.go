// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

package edge

import "errors"

// Sentinel errors returned by handle operations. Callers classify
// failures with errors.Is:
//
//	if errors.Is(err, edge.ErrConnectionFailure) { ... }
//
// Errors are wrapped with call-site context, so the message always
// says which operation failed and on which connection.
var (
	// ErrInvalidParameter indicates a null or empty required argument,
	// a released handle or data set, or a connection lookup that found
	// no entry for the requested peer.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrOutOfMemory indicates a message would require more memory
	// than the transport allows, such as a frame advertising a buffer
	// above the per-buffer maximum. The rejection happens before any
	// allocation is attempted.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrIO indicates a partial or failed socket operation. A failed
	// frame terminates that connection's receiver loop; the handle
	// itself stays valid and other connections are unaffected.
	ErrIO = errors.New("i/o failure")

	// ErrConnectionFailure indicates a handshake or liveness failure.
	// Nothing is retried automatically — reconnection is always an
	// explicit caller action.
	ErrConnectionFailure = errors.New("connection failure")
)
