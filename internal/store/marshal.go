package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/skirmish/internal/model"
)

// encodeRecord serializes v deterministically and digests it under domain.
func encodeRecord(domain string, v any) (record, digest string, err error) {
	data, err := model.Encode(v)
	if err != nil {
		return "", "", fmt.Errorf("encode %s: %w", domain, err)
	}
	return string(data), model.DigestBytes(domain, data), nil
}

// decodeRecord validates a stored record against its digest and decodes it.
// Any failure is a *CorruptionError.
func decodeRecord(domain, kind, key, record, digest string, dst any) error {
	if model.DigestBytes(domain, []byte(record)) != digest {
		return &CorruptionError{Record: kind, Key: key, Reason: "digest mismatch"}
	}
	if err := json.Unmarshal([]byte(record), dst); err != nil {
		return &CorruptionError{Record: kind, Key: key, Reason: "undecodable", Err: err}
	}
	return nil
}
