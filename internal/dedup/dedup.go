package dedup

import (
	"iter"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/roach88/exportgraph/internal/ir"
	"github.com/roach88/exportgraph/internal/result"
)

// Seq yields the first element for every distinct key, in input order.
// The returned sequence is single-pass when src is.
func Seq[T any, K comparable](src iter.Seq[T], key func(T) K) iter.Seq[T] {
	return func(yield func(T) bool) {
		seen := make(map[K]struct{})
		for v := range src {
			k := key(v)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			if !yield(v) {
				return
			}
		}
	}
}

// Identity is the key function for elements that are their own key.
func Identity[T comparable](v T) T {
	return v
}

// Guarded is Seq with the key-material guard: before its key is computed,
// every element (and the key itself when K is an interface type) is checked
// with Check. The first violation is yielded as a hashability error and
// ends the sequence.
func Guarded[T any, K comparable](src iter.Seq[T], key func(T) K) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		seen := make(map[K]struct{})
		i := 0
		for v := range src {
			if err := checkElement(v, key, i); err != nil {
				var zero T
				yield(zero, err)
				return
			}
			k := key(v)
			i++
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// Slice deduplicates a materialized collection.
func Slice[T any, K comparable](xs []T, key func(T) K) []T {
	var out []T
	for v := range Seq(slices.Values(xs), key) {
		out = append(out, v)
	}
	return out
}

// SliceGuarded validates the whole collection before producing anything,
// so a bad element anywhere fails the call without partial output.
func SliceGuarded[T any, K comparable](xs []T, key func(T) K) ([]T, error) {
	for i, v := range xs {
		if err := checkElement(v, key, i); err != nil {
			return nil, err
		}
	}
	return Slice(xs, key), nil
}

// Results deduplicates a result stream. Values are keyed with key; errors
// are keyed by their rendered message, in a separate key space.
func Results[T any, K comparable](src iter.Seq[result.Result[T]], key func(T) K) iter.Seq[result.Result[T]] {
	return func(yield func(result.Result[T]) bool) {
		seen := make(map[K]struct{})
		seenErr := make(map[string]struct{})
		for r := range src {
			v, e := r.Get()
			if e != nil {
				msg := e.Error()
				if _, dup := seenErr[msg]; dup {
					continue
				}
				seenErr[msg] = struct{}{}
			} else {
				k := key(v)
				if _, dup := seen[k]; dup {
					continue
				}
				seen[k] = struct{}{}
			}
			if !yield(r) {
				return
			}
		}
	}
}

// Records deduplicates raw records by ir.RowKey, ignoring the named
// volatile fields. A record whose key cannot be computed is replaced by a
// producer error record rather than dropped.
func Records(src iter.Seq[ir.Record], volatile ...string) iter.Seq[ir.Record] {
	return func(yield func(ir.Record) bool) {
		seen := make(map[string]struct{})
		for rec := range src {
			k, err := rec.RowKey(volatile...)
			if err != nil {
				rec = ir.ErrorRecord(&ir.ProduceError{
					Message: "cannot compute row identity",
					Context: recordContext(rec),
					Err:     err,
				})
				k, _ = rec.RowKey()
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			if !yield(rec) {
				return
			}
		}
	}
}

// RecordsGuarded is Records in guard mode: the first record whose row
// identity cannot be computed ends the sequence with a hashability error.
func RecordsGuarded(src iter.Seq[ir.Record], volatile ...string) iter.Seq2[ir.Record, error] {
	return func(yield func(ir.Record, error) bool) {
		seen := make(map[string]struct{})
		i := 0
		for rec := range src {
			k, err := rec.RowKey(volatile...)
			if err != nil {
				e := result.Wrapf(err, result.KindHashability, "record %d has no row identity", i)
				e.Context = recordContext(rec)
				if id, ok := e.Context["id"].(ir.IRString); ok {
					e.RecordID = string(id)
				}
				yield(ir.Record{}, errors.WithHint(e, "a field holds a value with no canonical form; mark it volatile or fix the export"))
				return
			}
			i++
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func recordContext(rec ir.Record) ir.IRObject {
	switch rec.Type {
	case ir.RecordTypeEntity:
		return ir.IRObject{"kind": ir.IRString(rec.Entity.Kind), "id": ir.IRString(rec.Entity.ID)}
	case ir.RecordTypeLink:
		return ir.IRObject{"kind": ir.IRString(rec.Link.Kind), "id": ir.IRString(rec.Link.ID)}
	default:
		return nil
	}
}
