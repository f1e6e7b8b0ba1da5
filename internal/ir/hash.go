package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainRow     = "exportgraph/row/v1"
	DomainContent = "exportgraph/content/v1"
	DomainConfig  = "exportgraph/config/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RowKey computes the raw-row identity of a record within one source.
// Volatile fields (rotating URL tokens, fetch timestamps) are excluded so
// that the same underlying row exported twice keys identically.
//
// The key covers kind, id and the remaining fields, so two rows that share
// an id but differ in content are NOT duplicates.
func RowKey(kind, id string, fields IRObject, volatile ...string) (string, error) {
	obj := IRObject{
		"kind":   IRString(kind),
		"id":     IRString(id),
		"fields": fields.Without(volatile...),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("RowKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRow, canonical), nil
}

// ContentKey hashes a kind plus an arbitrary content object, ignoring ids.
// Used for approximate cross-source identity where ids are not comparable.
func ContentKey(kind string, content IRObject) (string, error) {
	obj := IRObject{
		"kind":    IRString(kind),
		"content": content,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ContentKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainContent, canonical), nil
}

// ConfigKey hashes a raw configuration file, recorded with each stored run
// so runs from different configs can be told apart.
func ConfigKey(data []byte) string {
	return hashWithDomain(DomainConfig, data)
}

// MustRowKey is like RowKey but panics on error.
// Use only in tests or when fields are known to be valid.
func MustRowKey(kind, id string, fields IRObject, volatile ...string) string {
	key, err := RowKey(kind, id, fields, volatile...)
	if err != nil {
		panic(err)
	}
	return key
}
