// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture implements the local stream capture store: a
// content-addressed on-disk record of tensor payloads that passed
// through a node.
//
// Each captured message becomes one [Record]: a CBOR manifest naming
// the topic, the originating peer, and a list of payload references.
// Payload bytes are stored in separate content-addressed files, named
// by the BLAKE3 keyed hash of the uncompressed bytes, so identical
// payloads captured repeatedly (a common pattern for static model
// weights) are stored once.
//
// Payload files are compressed independently of the manifest. The
// store's configured algorithm is a preference, not a guarantee:
// incompressible payloads fall back to plain storage, and the tag
// actually used is recorded per payload so reads never depend on the
// store's current configuration.
package capture
