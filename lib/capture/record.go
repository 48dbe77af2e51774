// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import "time"

// Record is the manifest of one captured message: identity, origin,
// and the ordered payload references. Stored as a CBOR file named by
// the record id.
type Record struct {
	// ID is the hex-encoded record hash, computed over the payload
	// hashes in order. Derived, never assigned.
	ID string `cbor:"id"`

	// Topic is the stream topic the message belonged to.
	Topic string `cbor:"topic"`

	// PeerID is the originating peer, as tagged by the message
	// receiver. Zero when the origin is unknown (locally injected
	// data).
	PeerID int64 `cbor:"peer_id,omitempty"`

	// CapturedAt is when the store recorded the message.
	CapturedAt time.Time `cbor:"captured_at"`

	// Payloads are the message buffers in their original order.
	Payloads []PayloadRef `cbor:"payloads"`
}

// PayloadRef points at one content-addressed payload file.
type PayloadRef struct {
	// Hash is the hex-encoded payload-domain hash of the uncompressed
	// bytes, and the payload's file name.
	Hash string `cbor:"hash"`

	// Size is the uncompressed payload length in bytes.
	Size int64 `cbor:"size"`

	// StoredSize is the on-disk length after compression.
	StoredSize int64 `cbor:"stored_size"`

	// Compression names the algorithm the payload file was written
	// with. Recorded per payload so reads never depend on the store's
	// current configuration.
	Compression string `cbor:"compression"`
}
