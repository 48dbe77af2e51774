// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package edge implements the tensorlink edge transport: brokerless
// exchange of tensor payloads between independent processing nodes.
//
// Each node owns a Handle. The handle starts a listener, and first
// contact between two nodes runs a capability handshake that builds a
// duplex channel out of two independent simplex TCP connections: the
// accepting side registers the inbound socket, then immediately dials
// the peer's advertised address to establish the outbound one. Both
// sides end up able to push data to the other without head-of-line
// blocking between requests and responses.
//
// Incoming data is delivered asynchronously through the handle's
// event callback; Request and Respond push data synchronously on the
// outbound connection of the relevant peer. Nothing reconnects
// automatically — a lost connection stays lost until an explicit
// Connect call re-establishes it.
package edge
