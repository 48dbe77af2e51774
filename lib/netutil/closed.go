// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// IsExpectedCloseError reports whether err is a normal connection
// termination: EOF, closed connection, broken pipe, or connection
// reset. A message receiver whose peer disconnects mid-read sees one
// of these, and so does a sender racing a teardown on its own side.
//
// The edge transport closes connections fully rather than half-closing
// the write side, so the surviving side observes ECONNRESET or EPIPE
// instead of EOF depending on which operation was in flight. All four
// mean the same thing here and are logged at info, not error.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
