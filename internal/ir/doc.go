// Package ir provides the raw record model shared by every exportgraph layer.
//
// This package contains value and record types only. All other internal
// packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Field values are sealed IRValue types; no float64 (decimals keep their literal)
//   - Record is a tagged union: entity, link or producer error
//   - Identity hashes use canonical JSON (RFC 8785 key order, NFC strings)
//     with SHA-256 domain separation
//   - All JSON tags use snake_case
package ir
