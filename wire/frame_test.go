// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		frame *Frame
	}{
		{
			name:  "error frame with no buffers",
			frame: NewFrame(CmdError, 42),
		},
		{
			name: "capability frame",
			frame: &Frame{
				Command: CmdCapability,
				PeerID:  1700000001,
				Buffers: [][]byte{[]byte("fmt=tensor/v1")},
			},
		},
		{
			name: "host info frame",
			frame: &Frame{
				Command: CmdHostInfo,
				PeerID:  -7,
				Buffers: [][]byte{[]byte("192.168.1.10:7891")},
			},
		},
		{
			name: "transfer with several buffers",
			frame: &Frame{
				Command: CmdTransferData,
				PeerID:  99,
				Buffers: [][]byte{
					bytes.Repeat([]byte{0xAB}, 128),
					bytes.Repeat([]byte{0xCD}, 256),
					{},
					[]byte{0x00},
				},
			},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			var buffer bytes.Buffer
			if err := WriteFrame(&buffer, test.frame); err != nil {
				t.Fatalf("WriteFrame: %v", err)
			}

			want := HeaderLength
			for _, b := range test.frame.Buffers {
				want += len(b)
			}
			if buffer.Len() != want {
				t.Errorf("encoded length: got %d, want %d", buffer.Len(), want)
			}

			got, err := ReadFrame(&buffer)
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}
			if got.Command != test.frame.Command {
				t.Errorf("command: got %v, want %v", got.Command, test.frame.Command)
			}
			if got.PeerID != test.frame.PeerID {
				t.Errorf("peer id: got %d, want %d", got.PeerID, test.frame.PeerID)
			}
			if len(got.Buffers) != len(test.frame.Buffers) {
				t.Fatalf("buffer count: got %d, want %d", len(got.Buffers), len(test.frame.Buffers))
			}
			for i := range got.Buffers {
				if !bytes.Equal(got.Buffers[i], test.frame.Buffers[i]) {
					t.Errorf("buffer %d: got %v, want %v", i, got.Buffers[i], test.frame.Buffers[i])
				}
			}
		})
	}
}

func TestMaxBuffersRoundTrip(t *testing.T) {
	t.Parallel()
	frame := NewFrame(CmdTransferData, 1)
	for i := 0; i < MaxBuffers; i++ {
		if err := frame.AppendBuffer([]byte{byte(i)}); err != nil {
			t.Fatalf("AppendBuffer %d: %v", i, err)
		}
	}
	if err := frame.AppendBuffer([]byte("one too many")); err == nil {
		t.Fatal("AppendBuffer beyond MaxBuffers: want error, got nil")
	}

	var buffer bytes.Buffer
	if err := WriteFrame(&buffer, frame); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buffer)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(got.Buffers) != MaxBuffers {
		t.Errorf("buffer count: got %d, want %d", len(got.Buffers), MaxBuffers)
	}
}

func TestReadFrameRejectsExcessiveBufferCount(t *testing.T) {
	t.Parallel()
	header := make([]byte, HeaderLength)
	binary.NativeEndian.PutUint32(header[0:4], uint32(CmdTransferData))
	binary.NativeEndian.PutUint32(header[12:16], MaxBuffers+1)

	_, err := ReadFrame(bytes.NewReader(header))
	if err == nil {
		t.Fatal("ReadFrame: want error for buffer count above maximum, got nil")
	}
	if !strings.Contains(err.Error(), "exceeds maximum") {
		t.Errorf("error %q does not mention the maximum", err)
	}
}

func TestReadFrameRejectsExcessiveBufferSize(t *testing.T) {
	t.Parallel()
	header := make([]byte, HeaderLength)
	binary.NativeEndian.PutUint32(header[0:4], uint32(CmdTransferData))
	binary.NativeEndian.PutUint32(header[12:16], 1)
	binary.NativeEndian.PutUint64(header[16:24], MaxBufferSize+1)

	_, err := ReadFrame(bytes.NewReader(header))
	if err == nil {
		t.Fatal("ReadFrame: want error for buffer size above maximum, got nil")
	}
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	t.Parallel()
	frame := &Frame{
		Command: CmdTransferData,
		PeerID:  5,
		Buffers: [][]byte{bytes.Repeat([]byte{0x11}, 64)},
	}
	var buffer bytes.Buffer
	if err := WriteFrame(&buffer, frame); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	// Drop the last byte of the payload. The reader must fail rather
	// than return a short buffer.
	truncated := buffer.Bytes()[:buffer.Len()-1]
	_, err := ReadFrame(bytes.NewReader(truncated))
	if err == nil {
		t.Fatal("ReadFrame: want error for truncated payload, got nil")
	}
}

// shortWriter delivers at most limit bytes per Write call, simulating a
// transport that reports partial writes.
type shortWriter struct {
	buffer bytes.Buffer
	limit  int
}

func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) > w.limit {
		p = p[:w.limit]
	}
	return w.buffer.Write(p)
}

func TestWriteFrameShortWriteTransport(t *testing.T) {
	t.Parallel()
	frame := &Frame{
		Command: CmdTransferData,
		PeerID:  12,
		Buffers: [][]byte{
			bytes.Repeat([]byte{0xAA}, 300),
			bytes.Repeat([]byte{0xBB}, 17),
		},
	}

	writer := &shortWriter{limit: 7}
	if err := WriteFrame(writer, frame); err != nil {
		t.Fatalf("WriteFrame over short-write transport: %v", err)
	}

	got, err := ReadFrame(&writer.buffer)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got.Buffers[0], frame.Buffers[0]) || !bytes.Equal(got.Buffers[1], frame.Buffers[1]) {
		t.Error("payload does not survive a short-write transport intact")
	}
}

func TestWriteFrameAbortsOnWriteError(t *testing.T) {
	t.Parallel()
	frame := &Frame{
		Command: CmdTransferData,
		PeerID:  3,
		Buffers: [][]byte{bytes.Repeat([]byte{0x01}, 32)},
	}
	// A writer that fails after the header forces the buffer write to
	// abort the whole frame.
	writer := &failAfterWriter{remaining: HeaderLength}
	err := WriteFrame(writer, frame)
	if err == nil {
		t.Fatal("WriteFrame: want error when the transport fails mid-frame, got nil")
	}
}

type failAfterWriter struct {
	remaining int
}

func (w *failAfterWriter) Write(p []byte) (int, error) {
	if w.remaining <= 0 {
		return 0, io.ErrClosedPipe
	}
	n := len(p)
	if n > w.remaining {
		n = w.remaining
	}
	w.remaining -= n
	return n, nil
}

func TestCommandString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		command Command
		want    string
	}{
		{CmdError, "error"},
		{CmdTransferData, "transfer-data"},
		{CmdHostInfo, "host-info"},
		{CmdCapability, "capability"},
		{Command(99), "unknown(99)"},
	}
	for _, test := range tests {
		if got := test.command.String(); got != test.want {
			t.Errorf("Command(%d).String(): got %q, want %q", uint32(test.command), got, test.want)
		}
	}
}
