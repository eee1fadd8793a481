// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

// Package persist stores engine-state snapshots in save slots keyed by
// (owner, slot). Snapshots travel as self-contained blobs: a CBOR
// body, compressed, with a checksum so a corrupted save fails loudly
// at load time instead of producing a silently wrong game state.
package persist

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"

	"github.com/playgrid/playgrid/lib/codec"
	"github.com/playgrid/playgrid/lib/ref"
)

// Snapshot is the saved form of a session: the opaque engine state
// plus the metadata needed to rebuild an equivalent session around it.
type Snapshot struct {
	// Owner is the user the save belongs to.
	Owner ref.UserID `cbor:"owner"`

	// Slot is the owner-scoped save slot name.
	Slot string `cbor:"slot"`

	// SavedAt is the save time in Unix milliseconds.
	SavedAt int64 `cbor:"saved_at"`

	// GridWidth and GridHeight are the display dimensions the
	// session was created with, restored so the save renders at the
	// size the player chose.
	GridWidth  int `cbor:"grid_width"`
	GridHeight int `cbor:"grid_height"`

	// Engine is the engine's own serialized state, opaque to this
	// package.
	Engine []byte `cbor:"engine"`
}

// SavedTime returns SavedAt as a time.Time.
func (s *Snapshot) SavedTime() time.Time {
	return time.UnixMilli(s.SavedAt).UTC()
}

// Compression identifies how a snapshot body is compressed. The
// values are stored in the blob header; changing them breaks existing
// saves.
type Compression uint8

const (
	// CompressionNone stores the CBOR body as-is. Also the automatic
	// fallback when compression does not shrink the body.
	CompressionNone Compression = 0

	// CompressionZstd is the default: engine state is struct-heavy
	// CBOR and compresses well.
	CompressionZstd Compression = 1

	// CompressionLZ4 trades ratio for speed.
	CompressionLZ4 Compression = 2
)

// String returns the compression's config-file name.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a config-file compression name.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("persist: unknown compression %q", name)
	}
}

// Blob layout:
//
//	[0:4]   magic "PGS1"
//	[4]     compression tag
//	[5:9]   big-endian uncompressed body size
//	[9:41]  BLAKE3-256 of the uncompressed CBOR body
//	[41:]   body, compressed per the tag
const (
	blobMagic      = "PGS1"
	blobHeaderSize = 4 + 1 + 4 + 32
)

// ErrCorrupt reports a blob that failed structural or checksum
// validation.
var ErrCorrupt = errors.New("persist: snapshot blob corrupt")

var errIncompressible = errors.New("persist: body incompressible")

// EncodeSnapshot serializes a snapshot into a self-contained blob.
// If the requested compression does not shrink the body, the blob is
// written uncompressed.
func EncodeSnapshot(snapshot *Snapshot, compression Compression) ([]byte, error) {
	body, err := codec.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("persist: encoding snapshot: %w", err)
	}
	sum := blake3.Sum256(body)

	compressed, err := compress(body, compression)
	if errors.Is(err, errIncompressible) {
		compression = CompressionNone
		compressed = body
	} else if err != nil {
		return nil, err
	}

	blob := make([]byte, blobHeaderSize+len(compressed))
	copy(blob[0:4], blobMagic)
	blob[4] = byte(compression)
	binary.BigEndian.PutUint32(blob[5:9], uint32(len(body)))
	copy(blob[9:41], sum[:])
	copy(blob[blobHeaderSize:], compressed)
	return blob, nil
}

// DecodeSnapshot validates and deserializes a blob produced by
// EncodeSnapshot. Any structural damage, including a checksum
// mismatch, returns an error wrapping ErrCorrupt.
func DecodeSnapshot(blob []byte) (*Snapshot, error) {
	if len(blob) < blobHeaderSize || string(blob[0:4]) != blobMagic {
		return nil, fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	compression := Compression(blob[4])
	bodySize := int(binary.BigEndian.Uint32(blob[5:9]))

	body, err := decompress(blob[blobHeaderSize:], compression, bodySize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	sum := blake3.Sum256(body)
	if string(sum[:]) != string(blob[9:41]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	var snapshot Snapshot
	if err := codec.Unmarshal(body, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	// The checksum only guards against accidental damage. A well-formed
	// blob can still carry dimensions no session could run with.
	if snapshot.GridWidth <= 0 || snapshot.GridHeight <= 0 {
		return nil, fmt.Errorf("%w: grid %dx%d", ErrCorrupt, snapshot.GridWidth, snapshot.GridHeight)
	}
	return &snapshot, nil
}

// zstdEncoder and zstdDecoder are shared across calls; both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("persist: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("persist: zstd decoder initialization failed: " + err.Error())
	}
}

func compress(body []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return body, nil

	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(body, nil)
		if len(compressed) >= len(body) {
			return nil, errIncompressible
		}
		return compressed, nil

	case CompressionLZ4:
		bound := lz4.CompressBlockBound(len(body))
		destination := make([]byte, bound)
		written, err := lz4.CompressBlock(body, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("persist: lz4 compress: %w", err)
		}
		// CompressBlock returns 0 for incompressible input.
		if written == 0 || written >= len(body) {
			return nil, errIncompressible
		}
		return destination[:written], nil

	default:
		return nil, fmt.Errorf("persist: unsupported compression %d", compression)
	}
}

func decompress(compressed []byte, compression Compression, bodySize int) ([]byte, error) {
	switch compression {
	case CompressionNone:
		if len(compressed) != bodySize {
			return nil, fmt.Errorf("uncompressed body: size %d does not match header %d",
				len(compressed), bodySize)
		}
		return compressed, nil

	case CompressionZstd:
		body, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, bodySize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(body) != bodySize {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(body), bodySize)
		}
		return body, nil

	case CompressionLZ4:
		body := make([]byte, bodySize)
		read, err := lz4.UncompressBlock(compressed, body)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != bodySize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, bodySize)
		}
		return body, nil

	default:
		return nil, fmt.Errorf("unsupported compression %d", compression)
	}
}
