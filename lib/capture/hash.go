// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest. Payload and record hashes are this
// size.
type Hash [32]byte

// domainKey is a 32-byte key for BLAKE3 keyed hashing. Domain
// separation ensures that the same input bytes produce different
// hashes in different contexts, preventing cross-domain collisions.
type domainKey [32]byte

// Domain separation keys. These are fixed constants — changing them
// invalidates all existing hashes in that domain. The byte values are
// the ASCII encoding of the domain name, zero-padded to 32 bytes, so
// the keys stay inspectable in hex dumps and debuggers.
var (
	payloadDomainKey = domainKey{
		't', 'e', 'n', 's', 'o', 'r', 'l', 'i', 'n', 'k', '.', 'c', 'a', 'p', 't', 'u',
		'r', 'e', '.', 'p', 'a', 'y', 'l', 'o', 'a', 'd', 0, 0, 0, 0, 0, 0,
	}

	recordDomainKey = domainKey{
		't', 'e', 'n', 's', 'o', 'r', 'l', 'i', 'n', 'k', '.', 'c', 'a', 'p', 't', 'u',
		'r', 'e', '.', 'r', 'e', 'c', 'o', 'r', 'd', 0, 0, 0, 0, 0, 0, 0,
	}
)

// HashPayload computes the payload-domain BLAKE3 keyed hash of the
// given data. This is the hash payload files are named by and the
// hash Get verifies after decompression, so it is always computed on
// uncompressed bytes — dedup and verification survive a change of
// compression algorithm.
func HashPayload(data []byte) Hash {
	return keyedHash(payloadDomainKey, data)
}

// HashRecord computes the record-domain BLAKE3 keyed hash over the
// concatenated payload hashes of a record, in buffer order. This is
// the record's identity: the same sequence of payloads always maps to
// the same record id.
func HashRecord(payloadHashes []Hash) Hash {
	hasher, err := blake3.NewKeyed(recordDomainKey[:])
	if err != nil {
		panic("capture: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	for _, hash := range payloadHashes {
		hasher.Write(hash[:])
	}
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// FormatHash returns the hex-encoded string representation of a hash.
// This is the canonical format used in file names, manifests, and
// logs.
func FormatHash(hash Hash) string {
	return hex.EncodeToString(hash[:])
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing capture hash: %w", err)
	}
	if len(decoded) != 32 {
		return hash, fmt.Errorf("capture hash is %d bytes, want 32", len(decoded))
	}
	copy(hash[:], decoded)
	return hash, nil
}

// keyedHash computes BLAKE3 keyed hash with the given domain key.
func keyedHash(key domainKey, data []byte) Hash {
	// NewKeyed requires exactly 32 bytes, which domainKey guarantees.
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("capture: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}
