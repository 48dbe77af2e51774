// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Tensorlink's standard CBOR encoding
// configuration.
//
// Capture records and any other structured state written to disk use
// CBOR; the wire protocol itself frames raw buffers and never goes
// through this package. The shared encoding and decoding modes live
// here so that every Tensorlink package encodes identically without
// duplicating configuration.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Same logical data always produces identical bytes, so re-encoding an
// unchanged record never dirties its file.
//
// For buffer-oriented operations (files):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations:
//
//	encoder := codec.NewEncoder(w)
//	decoder := codec.NewDecoder(r)
package codec
