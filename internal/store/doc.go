// Package store persists merged output to SQLite.
//
// Each merge run gets a row in runs and one row per emitted result in
// results, numbered by seq in emission order. Errors are stored in the same
// table as values so a reader sees the mixed stream exactly as the merger
// produced it.
//
// Fields and refs are stored as canonical JSON (see ir.MarshalCanonical),
// so two runs over the same exports produce byte-identical rows.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// All queries order by seq so reads are deterministic.
package store
