package catalog

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Stats snapshots are published by an out-of-band batch job and read cold, so
// they use zstd-framed JSON: good ratio, self-contained stream.

// EncodeStats writes a zstd-compressed JSON stats document to w.
func EncodeStats(w io.Writer, stats Stats) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("catalog: stats encoder: %w", err)
	}
	if err := json.NewEncoder(zw).Encode(stats); err != nil {
		zw.Close()
		return fmt.Errorf("catalog: encode stats: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("catalog: flush stats: %w", err)
	}
	return nil
}

// DecodeStats reads a zstd-compressed JSON stats document from r.
func DecodeStats(r io.Reader) (Stats, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return Stats{}, fmt.Errorf("catalog: stats decoder: %w", err)
	}
	defer zr.Close()

	var stats Stats
	if err := json.NewDecoder(zr).Decode(&stats); err != nil {
		return Stats{}, fmt.Errorf("catalog: decode stats: %w", err)
	}
	return stats, nil
}
