package persistence

import (
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"

	"github.com/GriffinCanCode/nexus/backend/internal/domain/hub"
)

const formatVersion = 1

// ErrUnsupportedVersion is returned for blobs written by a newer format
var ErrUnsupportedVersion = errors.New("unsupported state format version")

// Record is the persisted form of the state
type Record struct {
	Version int       `json:"version"`
	Seq     uint64    `json:"seq"`
	SavedAt time.Time `json:"saved_at"`
	State   hub.State `json:"state"`
}

// Encoder and decoder are safe for concurrent EncodeAll/DecodeAll
var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

// Encode serializes a snapshot into a compressed blob
func Encode(snap hub.Snapshot, savedAt time.Time) ([]byte, error) {
	raw, err := sonic.Marshal(Record{
		Version: formatVersion,
		Seq:     snap.Seq,
		SavedAt: savedAt.UTC(),
		State:   snap.State,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	return encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4)), nil
}

// Decode parses a blob written by Encode
func Decode(blob []byte) (Record, error) {
	raw, err := decoder.DecodeAll(blob, nil)
	if err != nil {
		return Record{}, fmt.Errorf("failed to decompress state: %w", err)
	}

	var rec Record
	if err := sonic.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to decode state: %w", err)
	}
	if rec.Version > formatVersion {
		return Record{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, rec.Version)
	}
	return rec, nil
}
