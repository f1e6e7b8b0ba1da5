// Package result provides the value-or-error unit every exportgraph stream
// is built on.
//
// Errors are stream elements, not control flow. A malformed row, a dangling
// reference or a rejected key becomes an *Error carried in place of the
// value, so one bad record never aborts the records after it. Consumers
// decide per use case whether to drop (Values), surface (Errors) or
// hard-fail (Unwrap, Collect).
//
// Every operation here is lazy and preserves the relative order of the
// elements it keeps.
package result
