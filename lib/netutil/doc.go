// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides socket-level helpers for the edge
// transport: a non-blocking liveness probe, host string formatting,
// free-port discovery, and classification of expected connection
// teardown errors.
package netutil
