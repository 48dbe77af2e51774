// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrTooLarge indicates a header advertised a buffer size above
// MaxBufferSize. The frame is rejected before any allocation happens.
var ErrTooLarge = errors.New("advertised buffer exceeds maximum size")

// Command identifies the kind of a frame. Encoded as 4 bytes on the
// wire. These values are protocol constants — changing them breaks
// compatibility with deployed nodes.
type Command uint32

const (
	// CmdError signals a failure to the peer, such as a rejected
	// capability during the handshake. Carries no buffers.
	CmdError Command = iota

	// CmdTransferData carries a set of tensor payload buffers.
	CmdTransferData

	// CmdHostInfo carries a single buffer holding the sender's own
	// reachable "ip:port" string. Sent during the handshake so the
	// peer can dial back and complete the duplex channel.
	CmdHostInfo

	// CmdCapability carries a single buffer holding the sender's
	// capability string. First frame on every accepted socket.
	CmdCapability
)

// String returns the human-readable name of a command.
func (c Command) String() string {
	switch c {
	case CmdError:
		return "error"
	case CmdTransferData:
		return "transfer-data"
	case CmdHostInfo:
		return "host-info"
	case CmdCapability:
		return "capability"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(c))
	}
}

// MaxBuffers is the maximum number of payload buffers a single frame
// may carry. The header reserves a size slot for each, so this bound
// fixes the header length.
const MaxBuffers = 16

// MaxBufferSize caps a single advertised buffer size. A header
// advertising more is rejected before any allocation happens, which
// protects the receiver from hostile or corrupted headers. 64 MiB is
// generous for tensor payloads at the expected edge resolutions.
const MaxBufferSize = 64 << 20

// HeaderLength is the constant wire length of a frame header:
// 4 bytes command + 8 bytes peer id + 4 bytes buffer count +
// MaxBuffers size slots of 8 bytes each.
const HeaderLength = 4 + 8 + 4 + MaxBuffers*8

// Frame is one header-plus-buffers unit exchanged over a connection.
// A frame with no buffers is valid (CmdError uses this).
type Frame struct {
	// Command is the frame kind.
	Command Command

	// PeerID identifies the remote node's logical connection pair.
	// Assigned by the accepting server during the handshake.
	PeerID int64

	// Buffers are the payload buffers, at most MaxBuffers.
	Buffers [][]byte
}

// NewFrame creates a frame with the given command and peer id and no
// buffers.
func NewFrame(command Command, peerID int64) *Frame {
	return &Frame{Command: command, PeerID: peerID}
}

// AppendBuffer adds a payload buffer to the frame. Returns an error if
// the frame already carries MaxBuffers buffers.
func (f *Frame) AppendBuffer(buffer []byte) error {
	if len(f.Buffers) >= MaxBuffers {
		return fmt.Errorf("frame already carries %d buffers (maximum)", MaxBuffers)
	}
	f.Buffers = append(f.Buffers, buffer)
	return nil
}

// EncodeHeader serializes the fixed-size header into a new byte slice
// of HeaderLength bytes.
func (f *Frame) EncodeHeader() ([]byte, error) {
	if len(f.Buffers) > MaxBuffers {
		return nil, fmt.Errorf("buffer count %d exceeds maximum %d", len(f.Buffers), MaxBuffers)
	}
	header := make([]byte, HeaderLength)
	binary.NativeEndian.PutUint32(header[0:4], uint32(f.Command))
	binary.NativeEndian.PutUint64(header[4:12], uint64(f.PeerID))
	binary.NativeEndian.PutUint32(header[12:16], uint32(len(f.Buffers)))
	for i, buffer := range f.Buffers {
		offset := 16 + i*8
		binary.NativeEndian.PutUint64(header[offset:offset+8], uint64(len(buffer)))
	}
	return header, nil
}

// decodeHeader parses a fixed-size header. Returns the command, peer
// id, and the advertised buffer sizes. Rejects a buffer count above
// MaxBuffers and any advertised size above MaxBufferSize before the
// caller allocates anything.
func decodeHeader(header []byte) (Command, int64, []uint64, error) {
	if len(header) != HeaderLength {
		return 0, 0, nil, fmt.Errorf("header must be %d bytes, got %d", HeaderLength, len(header))
	}
	command := Command(binary.NativeEndian.Uint32(header[0:4]))
	peerID := int64(binary.NativeEndian.Uint64(header[4:12]))
	count := binary.NativeEndian.Uint32(header[12:16])
	if count > MaxBuffers {
		return 0, 0, nil, fmt.Errorf("buffer count %d exceeds maximum %d", count, MaxBuffers)
	}
	sizes := make([]uint64, count)
	for i := range sizes {
		offset := 16 + i*8
		sizes[i] = binary.NativeEndian.Uint64(header[offset : offset+8])
		if sizes[i] > MaxBufferSize {
			return 0, 0, nil, fmt.Errorf("%w: buffer %d size %d exceeds maximum %d", ErrTooLarge, i, sizes[i], MaxBufferSize)
		}
	}
	return command, peerID, sizes, nil
}

// WriteFrame writes the header and then each payload buffer to w,
// looping on partial writes until every byte is transferred. Any write
// failure aborts the whole frame — buffers are never retried
// independently, so the peer either sees the complete frame or a
// broken stream it will tear down.
func WriteFrame(w io.Writer, frame *Frame) error {
	header, err := frame.EncodeHeader()
	if err != nil {
		return err
	}
	if err := writeFull(w, header); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	for i, buffer := range frame.Buffers {
		if err := writeFull(w, buffer); err != nil {
			return fmt.Errorf("write frame buffer %d: %w", i, err)
		}
	}
	return nil
}

// ReadFrame reads one frame from r: the header first, then exactly the
// advertised number of buffers of the advertised sizes. If any buffer
// read fails, everything already read for this frame is discarded so
// no partial frame is ever visible to the caller.
func ReadFrame(r io.Reader) (*Frame, error) {
	header := make([]byte, HeaderLength)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}
	command, peerID, sizes, err := decodeHeader(header)
	if err != nil {
		return nil, err
	}
	frame := &Frame{Command: command, PeerID: peerID}
	for i, size := range sizes {
		buffer := make([]byte, size)
		if _, err := io.ReadFull(r, buffer); err != nil {
			return nil, fmt.Errorf("read frame buffer %d: %w", i, err)
		}
		frame.Buffers = append(frame.Buffers, buffer)
	}
	return frame, nil
}

// writeFull writes all of data to w, looping on partial writes. Most
// io.Writer implementations already guarantee full writes, but the
// transport contract here requires the loop so a short-write transport
// still delivers the complete frame.
func writeFull(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		data = data[n:]
	}
	return nil
}
