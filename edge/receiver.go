// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

package edge

import (
	"errors"
	"os"
	"strconv"

	"github.com/tensorlink-foundation/tensorlink/lib/netutil"
	"github.com/tensorlink-foundation/tensorlink/wire"
)

// startReceiver marks the connection running and spawns its message
// receiver goroutine. Called during the accept-side handshake, before
// the connection is registered, so no frame is lost between
// registration and the first read.
func (h *Handle) startReceiver(conn *connection, peerID int64) {
	conn.running.Store(true)
	conn.done = make(chan struct{})
	go h.receiverLoop(conn, peerID)
}

// receiverLoop turns incoming frames on one inbound connection into
// data events. It runs until the handle is released, the connection
// is closed, the peer hangs up, or an I/O failure ends the stream.
// The loop never takes the handle lock — callbacks it invokes are
// free to call Respond, which does.
//
// The connection is not re-established on exit; reconnection is an
// explicit Connect call by the application.
func (h *Handle) receiverLoop(conn *connection, peerID int64) {
	defer close(conn.done)
	defer conn.running.Store(false)

	logger := h.logger.With("peer_id", peerID, "remote", conn.address)
	for conn.running.Load() {
		if !h.valid.Load() {
			logger.Info("handle released, receiver stopping")
			return
		}
		if !conn.alive() {
			logger.Info("peer hung up, receiver stopping")
			return
		}

		frame, err := conn.receiveFrame()
		if err != nil {
			// An expired read deadline with the running flag still
			// set is just an idle connection: re-check liveness and
			// wait again. Cancellation also surfaces as an expired
			// deadline, but with the flag already cleared.
			if errors.Is(err, os.ErrDeadlineExceeded) && conn.running.Load() {
				continue
			}
			if conn.running.Load() && !netutil.IsExpectedCloseError(err) {
				logger.Error("receive failed, receiver stopping", "error", err)
			}
			return
		}

		switch frame.Command {
		case wire.CmdError:
			logger.Warn("peer reported an error, receiver stopping")
			return
		case wire.CmdTransferData:
			// Handled below.
		default:
			// Reserved for future command kinds.
			logger.Warn("discarding frame", "command", frame.Command.String())
			continue
		}

		data := NewData()
		// Tag the origin so a later Respond can route back here.
		_ = data.SetMeta(MetaPeerID, strconv.FormatInt(peerID, 10))
		for _, buffer := range frame.Buffers {
			// Cannot overflow: the frame carries at most
			// wire.MaxBuffers buffers, the same bound Data enforces.
			_ = data.AddBuffer(buffer, nil)
		}

		if err := h.invokeEvent(&Event{Kind: NewDataReceived, Data: data}); err != nil {
			// Advisory: the consumer refused this message, but the
			// connection stays up for the next one.
			logger.Warn("consumer did not accept data", "error", err)
		}
		data.Destroy()
	}
}
