// Package codec encodes task and result payloads exchanged with workers:
// JSON, snappy-compressed, followed by a CRC32 of the compressed bytes.
package codec

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/golang/snappy"
)

var (
	ErrShortPayload     = errors.New("codec: payload too short")
	ErrChecksumMismatch = errors.New("codec: checksum mismatch")
)

const checksumSize = 4

// Encode serializes v into a compressed, checksummed payload
func Encode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal: %w", err)
	}
	compressed := snappy.Encode(nil, raw)
	out := make([]byte, len(compressed)+checksumSize)
	copy(out, compressed)
	binary.BigEndian.PutUint32(out[len(compressed):], crc32.ChecksumIEEE(compressed))
	return out, nil
}

// Decode verifies and decompresses a payload produced by Encode into v
func Decode(data []byte, v any) error {
	if len(data) < checksumSize {
		return ErrShortPayload
	}
	body := data[:len(data)-checksumSize]
	want := binary.BigEndian.Uint32(data[len(body):])
	if crc32.ChecksumIEEE(body) != want {
		return ErrChecksumMismatch
	}
	raw, err := snappy.Decode(nil, body)
	if err != nil {
		return fmt.Errorf("codec: decompress: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("codec: unmarshal: %w", err)
	}
	return nil
}

// Ratio returns the compressed size of v over its JSON size
func Ratio(v any) (float64, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	if len(raw) == 0 {
		return 1, nil
	}
	return float64(len(snappy.Encode(nil, raw))) / float64(len(raw)), nil
}
