// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

package edge

import (
	"fmt"

	"github.com/tensorlink-foundation/tensorlink/wire"
)

// MetaPeerID is the metadata key under which a message receiver
// stashes the originating peer id of received data, formatted as a
// decimal integer. Respond reads it back to route the reply to the
// right connection.
const MetaPeerID = "peer_id"

// Buffer is one payload buffer in a data set: the bytes plus an
// optional destroy hook invoked exactly once when the data set is
// destroyed.
type Buffer struct {
	Bytes   []byte
	Destroy func()
}

// Data is the buffer-set abstraction passed across the public
// request/respond/receive boundary: an ordered sequence of buffers
// plus a string-keyed metadata map. Created per received or outgoing
// message and destroyed by the caller after use.
//
// Data is not safe for concurrent use. Each instance belongs to the
// goroutine that created it (or, for received data, to the callback
// it was delivered to).
type Data struct {
	buffers   []Buffer
	meta      map[string]string
	destroyed bool
}

// NewData creates an empty data set.
func NewData() *Data {
	return &Data{meta: make(map[string]string)}
}

// AddBuffer appends a payload buffer with an optional destroy hook.
// The data set holds at most wire.MaxBuffers buffers, matching the
// frame limit.
func (d *Data) AddBuffer(bytes []byte, destroy func()) error {
	if err := d.checkValid(); err != nil {
		return err
	}
	if len(d.buffers) >= wire.MaxBuffers {
		return fmt.Errorf("%w: data set already holds %d buffers (maximum)", ErrInvalidParameter, wire.MaxBuffers)
	}
	d.buffers = append(d.buffers, Buffer{Bytes: bytes, Destroy: destroy})
	return nil
}

// BufferCount returns the number of buffers in the data set.
func (d *Data) BufferCount() int {
	return len(d.buffers)
}

// Buffer returns the bytes of the i-th buffer.
func (d *Data) Buffer(i int) ([]byte, error) {
	if err := d.checkValid(); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(d.buffers) {
		return nil, fmt.Errorf("%w: buffer index %d out of range (count %d)", ErrInvalidParameter, i, len(d.buffers))
	}
	return d.buffers[i].Bytes, nil
}

// SetMeta stores a metadata value under the given key, replacing any
// previous value.
func (d *Data) SetMeta(key, value string) error {
	if err := d.checkValid(); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("%w: metadata key is empty", ErrInvalidParameter)
	}
	d.meta[key] = value
	return nil
}

// Meta returns the metadata value stored under key. Returns
// ErrInvalidParameter if the key is absent.
func (d *Data) Meta(key string) (string, error) {
	if err := d.checkValid(); err != nil {
		return "", err
	}
	value, ok := d.meta[key]
	if !ok {
		return "", fmt.Errorf("%w: no metadata under key %q", ErrInvalidParameter, key)
	}
	return value, nil
}

// Destroy invalidates the data set and runs each buffer's destroy
// hook. Hooks run at most once; calling Destroy again is a no-op.
func (d *Data) Destroy() {
	if d == nil || d.destroyed {
		return
	}
	d.destroyed = true
	for i := range d.buffers {
		if d.buffers[i].Destroy != nil {
			d.buffers[i].Destroy()
			d.buffers[i].Destroy = nil
		}
	}
	d.buffers = nil
}

// checkValid reports whether the data set is usable. Destroyed or nil
// data fails fast with ErrInvalidParameter.
func (d *Data) checkValid() error {
	if d == nil {
		return fmt.Errorf("%w: data set is nil", ErrInvalidParameter)
	}
	if d.destroyed {
		return fmt.Errorf("%w: data set is destroyed", ErrInvalidParameter)
	}
	return nil
}
