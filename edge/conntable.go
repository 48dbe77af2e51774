// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

package edge

// connEntry is the duplex channel for one peer: the inbound socket
// the peer dialed into this node (src, owned by a receiver goroutine)
// and the outbound socket this node dialed into the peer (sink, used
// by Request and Respond).
type connEntry struct {
	id   int64
	src  *connection
	sink *connection
}

// connTable maps peer ids to their duplex channels. The table
// structure is mutated only while holding the owning handle's lock;
// the handle closes displaced and removed connections after releasing
// the lock, so a receiver goroutine blocked inside its own callback
// can never deadlock against a table edit.
type connTable struct {
	entries map[int64]*connEntry
}

func newConnTable() *connTable {
	return &connTable{entries: make(map[int64]*connEntry)}
}

// get returns the entry for a peer id, or nil if the peer has no
// registered connections.
func (t *connTable) get(id int64) *connEntry {
	return t.entries[id]
}

// add returns the entry for a peer id, creating an empty one on first
// contact.
func (t *connTable) add(id int64) *connEntry {
	entry := t.entries[id]
	if entry == nil {
		entry = &connEntry{id: id}
		t.entries[id] = entry
	}
	return entry
}

// takeAll empties the table and returns every connection that was
// registered, both directions of every entry. The caller closes them
// outside the handle lock.
func (t *connTable) takeAll() []*connection {
	var taken []*connection
	for id, entry := range t.entries {
		if entry.src != nil {
			taken = append(taken, entry.src)
		}
		if entry.sink != nil {
			taken = append(taken, entry.sink)
		}
		delete(t.entries, id)
	}
	return taken
}
