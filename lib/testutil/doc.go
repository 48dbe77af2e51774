// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for tensorlink
// packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve for channel operations in concurrent tests: a handshake or
// receiver bug should fail the test with a clear message, not hang
// the whole test binary. [Eventually] polls an asynchronous condition
// until it holds, for state that settles shortly after an operation
// returns (such as a reverse dial completing a duplex channel).
package testutil
