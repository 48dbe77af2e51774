// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the tensorlink command frame: a fixed-size
// header (command, peer id, buffer count, per-buffer sizes) followed by
// the raw payload buffers concatenated back to back.
//
// The header always carries all MaxBuffers size slots so its length on
// the wire is constant regardless of the payload; only the first
// buffer-count entries are meaningful. Integers are encoded in the
// host's native byte order — no network-order normalization is
// performed, so both ends of a connection must agree on architecture
// endianness.
package wire
