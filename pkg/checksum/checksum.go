// Package checksum computes stable content hashes over JSON-like values so
// that unchanged records can be detected without re-embedding them.
package checksum

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Compute returns a hex encoded hash of value.
//
// The value is normalized through a JSON round trip before hashing: object
// keys are emitted in sorted order, so two structurally equal values hash to
// the same string regardless of map iteration or struct field order.
func Compute(value any) (string, error) {
	canonical, err := canonicalize(value)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// MustCompute is like Compute but panics on values that cannot be encoded as JSON.
func MustCompute(value any) string {
	sum, err := Compute(value)
	if err != nil {
		panic(err)
	}
	return sum
}

func canonicalize(value any) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encoding checksum source: %w", err)
	}

	// Decode into generic maps so nested structs and maps alike come back out
	// with sorted keys. UseNumber keeps numeric literals byte-identical.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("normalizing checksum source: %w", err)
	}

	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("encoding normalized checksum source: %w", err)
	}
	return out, nil
}
