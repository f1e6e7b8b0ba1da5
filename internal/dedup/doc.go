// Package dedup drops repeated elements from a lazy sequence.
//
// Exports overlap: two dumps taken a month apart contain the same rows, and
// some apps repeat a row within one dump. Dedup keeps the first occurrence
// of every key and silently drops the rest; duplicates are expected data,
// not errors. Memory grows with the number of distinct keys seen, never
// with the length of the input.
//
// Key functions are supplied by the caller and may ignore volatile fields
// (see ir.RowKey). Keeping keys stable across exports is the caller's job.
//
// The guarded variants additionally reject elements that cannot be trusted
// as key material (slices, maps, pointers and other reference types whose
// equality is identity or undefined). That check is the one loud failure in
// exportgraph: it signals a producer bug, so it is reported once and ends
// the pass.
package dedup
