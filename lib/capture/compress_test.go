// Copyright 2026 The Tensorlink Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/rand"
	"testing"
)

// float32Bytes encodes a slice of float32 values in little-endian
// order, the layout of a raw tensor payload.
func float32Bytes(values []float32) []byte {
	result := make([]byte, len(values)*4)
	for i, value := range values {
		binary.LittleEndian.PutUint32(result[i*4:], math.Float32bits(value))
	}
	return result
}

// smoothTensor builds a float32 payload whose adjacent values are
// close in magnitude, the shape BG4 grouping exploits.
func smoothTensor(count int) []byte {
	values := make([]float32, count)
	for i := range values {
		values[i] = 0.01 * float32(i%257)
	}
	return float32Bytes(values)
}

func TestCompressRoundtrip(t *testing.T) {
	compressible := bytes.Repeat([]byte("tensorlink payload "), 200)

	for _, tag := range []CompressionTag{CompressionLZ4, CompressionZstd, CompressionBG4LZ4} {
		t.Run(tag.String(), func(t *testing.T) {
			compressed, err := Compress(compressible, tag)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			if len(compressed) >= len(compressible) {
				t.Fatalf("compressed %d bytes to %d, expected shrinkage", len(compressible), len(compressed))
			}

			decompressed, err := Decompress(compressed, tag, len(compressible))
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(decompressed, compressible) {
				t.Error("roundtrip does not reproduce the input")
			}
		})
	}
}

func TestCompressNonePassesThrough(t *testing.T) {
	data := []byte("unchanged")

	compressed, err := Compress(data, CompressionNone)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if &compressed[0] != &data[0] {
		t.Error("CompressionNone should not copy")
	}

	decompressed, err := Decompress(compressed, CompressionNone, len(data))
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(decompressed, data) {
		t.Error("roundtrip does not reproduce the input")
	}

	if _, err := Decompress(compressed, CompressionNone, len(data)+1); err == nil {
		t.Error("size mismatch should be rejected")
	}
}

func TestIncompressibleData(t *testing.T) {
	random := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(random)

	for _, tag := range []CompressionTag{CompressionLZ4, CompressionZstd} {
		if _, err := Compress(random, tag); !IsIncompressible(err) {
			t.Errorf("%s on random bytes: got %v, want incompressible", tag, err)
		}
	}
}

func TestBG4BeatsPlainLZ4OnTensors(t *testing.T) {
	tensor := smoothTensor(16384)

	bg4, err := Compress(tensor, CompressionBG4LZ4)
	if err != nil {
		t.Fatalf("bg4_lz4: %v", err)
	}
	plain, err := Compress(tensor, CompressionLZ4)
	if err != nil && !IsIncompressible(err) {
		t.Fatalf("lz4: %v", err)
	}

	// Byte grouping exists precisely because plain LZ4 does poorly on
	// float32 streams.
	if err == nil && len(bg4) >= len(plain) {
		t.Errorf("bg4_lz4 produced %d bytes, plain lz4 %d; expected grouping to win", len(bg4), len(plain))
	}

	decompressed, err := Decompress(bg4, CompressionBG4LZ4, len(tensor))
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(decompressed, tensor) {
		t.Error("bg4 roundtrip does not reproduce the tensor")
	}
}

func TestBG4TransposeUnaligned(t *testing.T) {
	// Lengths that are not multiples of 4 keep their tail unchanged.
	for _, length := range []int{0, 1, 3, 5, 9, 1023} {
		data := make([]byte, length)
		for i := range data {
			data[i] = byte(i)
		}
		if got := bg4Untranspose(bg4Transpose(data)); !bytes.Equal(got, data) {
			t.Errorf("length %d: transpose roundtrip mismatch", length)
		}
	}
}

func TestParseCompressionTag(t *testing.T) {
	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd, CompressionBG4LZ4} {
		parsed, err := ParseCompressionTag(tag.String())
		if err != nil {
			t.Errorf("ParseCompressionTag(%s): %v", tag, err)
		}
		if parsed != tag {
			t.Errorf("ParseCompressionTag(%s) = %v", tag, parsed)
		}
	}

	if _, err := ParseCompressionTag("brotli"); err == nil {
		t.Error("unknown tag should be rejected")
	}
}
