// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tensorlink-foundation/tensorlink/lib/codec"
)

// Store is a content-addressed capture directory. Payload bytes live
// under payloads/ named by their hash; record manifests live under
// records/ named by the record id. Safe for concurrent use: writes go
// through temp-file renames, and identical content always produces
// identical files.
type Store struct {
	dir         string
	compression CompressionTag
	logger      *slog.Logger
}

// NewStore opens (creating if needed) a capture directory. The
// compression tag is the preference for new payloads; incompressible
// payloads fall back to plain storage.
func NewStore(dir string, compression CompressionTag, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("capture directory is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	for _, sub := range []string{"payloads", "records"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("creating capture directory: %w", err)
		}
	}
	return &Store{
		dir:         dir,
		compression: compression,
		logger:      logger.With("capture_dir", dir),
	}, nil
}

// Put captures one message: each buffer becomes a content-addressed
// payload file, and the manifest tying them together is written under
// the derived record id. Capturing the same buffers twice writes
// nothing new and returns the same record.
func (s *Store) Put(topic string, peerID int64, buffers [][]byte) (*Record, error) {
	if len(buffers) == 0 {
		return nil, fmt.Errorf("capturing empty message")
	}

	record := &Record{
		Topic:      topic,
		PeerID:     peerID,
		CapturedAt: time.Now().UTC(),
		Payloads:   make([]PayloadRef, 0, len(buffers)),
	}

	payloadHashes := make([]Hash, 0, len(buffers))
	for i, buffer := range buffers {
		hash := HashPayload(buffer)
		payloadHashes = append(payloadHashes, hash)

		ref, err := s.writePayload(hash, buffer)
		if err != nil {
			return nil, fmt.Errorf("payload %d: %w", i, err)
		}
		record.Payloads = append(record.Payloads, ref)
	}

	record.ID = FormatHash(HashRecord(payloadHashes))

	recordPath := filepath.Join(s.dir, "records", record.ID+".cbor")
	if _, err := os.Stat(recordPath); err == nil {
		// Same payload sequence captured before; keep the original
		// manifest and its timestamp.
		return s.Get(record.ID)
	}

	encoded, err := codec.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encoding record manifest: %w", err)
	}
	if err := writeFileAtomic(recordPath, encoded); err != nil {
		return nil, fmt.Errorf("writing record manifest: %w", err)
	}

	s.logger.Debug("message captured",
		"record", record.ID, "topic", topic, "peer_id", peerID, "payloads", len(buffers))
	return record, nil
}

// writePayload stores one buffer under its hash, compressing with the
// store's configured algorithm. An existing payload file is trusted
// and left alone.
func (s *Store) writePayload(hash Hash, buffer []byte) (PayloadRef, error) {
	ref := PayloadRef{
		Hash: FormatHash(hash),
		Size: int64(len(buffer)),
	}

	// Payload files are named <hash>.<tag> so the compression a file
	// was written with survives store reconfiguration; dedup recovers
	// it from the name.
	matches, err := filepath.Glob(filepath.Join(s.dir, "payloads", ref.Hash+".*"))
	if err != nil {
		return ref, err
	}
	if len(matches) > 0 {
		info, err := os.Stat(matches[0])
		if err != nil {
			return ref, err
		}
		ref.StoredSize = info.Size()
		ref.Compression = strings.TrimPrefix(filepath.Ext(matches[0]), ".")
		return ref, nil
	}

	tag := s.compression
	stored, err := Compress(buffer, tag)
	if IsIncompressible(err) {
		tag, stored = CompressionNone, buffer
	} else if err != nil {
		return ref, err
	}

	path := filepath.Join(s.dir, "payloads", ref.Hash+"."+tag.String())
	if err := writeFileAtomic(path, stored); err != nil {
		return ref, err
	}
	ref.StoredSize = int64(len(stored))
	ref.Compression = tag.String()
	return ref, nil
}

// Get loads a record manifest and its payload bytes, verifying each
// payload hash after decompression.
func (s *Store) Get(id string) (*Record, error) {
	encoded, err := os.ReadFile(filepath.Join(s.dir, "records", id+".cbor"))
	if err != nil {
		return nil, fmt.Errorf("reading record %s: %w", id, err)
	}
	var record Record
	if err := codec.Unmarshal(encoded, &record); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", id, err)
	}
	return &record, nil
}

// Payloads loads and verifies the payload bytes of a record, in their
// original buffer order.
func (s *Store) Payloads(record *Record) ([][]byte, error) {
	buffers := make([][]byte, 0, len(record.Payloads))
	for i, ref := range record.Payloads {
		buffer, err := s.readPayload(ref)
		if err != nil {
			return nil, fmt.Errorf("record %s payload %d: %w", record.ID, i, err)
		}
		buffers = append(buffers, buffer)
	}
	return buffers, nil
}

func (s *Store) readPayload(ref PayloadRef) ([]byte, error) {
	stored, err := os.ReadFile(filepath.Join(s.dir, "payloads", ref.Hash+"."+ref.Compression))
	if err != nil {
		return nil, err
	}

	tag, err := ParseCompressionTag(ref.Compression)
	if err != nil {
		return nil, err
	}
	buffer, err := Decompress(stored, tag, int(ref.Size))
	if err != nil {
		return nil, err
	}

	want, err := ParseHash(ref.Hash)
	if err != nil {
		return nil, err
	}
	if HashPayload(buffer) != want {
		return nil, fmt.Errorf("payload %s failed hash verification", ref.Hash)
	}
	return buffer, nil
}

// List returns the ids of every stored record, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, "records"))
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".cbor") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".cbor"))
	}
	sort.Strings(ids)
	return ids, nil
}

// writeFileAtomic writes data to path through a temp-file rename, so
// a concurrent reader never observes a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
