// Package sorter orders result streams by a key that error elements may
// not have, without dropping the errors.
//
// Errors stick to the next keyable element: every run of unkeyable
// elements is grouped with the keyable element that closes it and sorts
// with that element's key. A trailing run that is never closed stays at
// the end in its original order.
package sorter

import (
	"cmp"
	"iter"
	"slices"
	"time"

	"github.com/roach88/exportgraph/internal/ir"
	"github.com/roach88/exportgraph/internal/resolve"
	"github.com/roach88/exportgraph/internal/result"
)

type group[T, K any] struct {
	key   K
	items []result.Result[T]
}

// SortWithErrors sorts values by key; errors are unkeyable. It consumes
// items completely and must not be used on unbounded sequences.
func SortWithErrors[T any, K cmp.Ordered](items iter.Seq[result.Result[T]], key func(T) K) []result.Result[T] {
	return SortWithErrorsFunc(items, func(r result.Result[T]) (K, bool) {
		v, ok := r.Value()
		if !ok {
			var zero K
			return zero, false
		}
		return key(v), true
	}, cmp.Compare[K])
}

// SortWithErrorsFunc is the general form: key reports whether an element
// (value or error) is keyable, and compare orders keys. The sort is stable.
func SortWithErrorsFunc[T, K any](items iter.Seq[result.Result[T]], key func(result.Result[T]) (K, bool), compare func(a, b K) int) []result.Result[T] {
	var (
		closed  []group[T, K]
		pending []result.Result[T]
		total   int
	)
	for r := range items {
		total++
		pending = append(pending, r)
		if k, ok := key(r); ok {
			closed = append(closed, group[T, K]{key: k, items: pending})
			pending = nil
		}
	}

	slices.SortStableFunc(closed, func(a, b group[T, K]) int {
		return compare(a.key, b.key)
	})

	out := make([]result.Result[T], 0, total)
	for _, g := range closed {
		out = append(out, g.items...)
	}
	return append(out, pending...)
}

// ByTimestamp keys resolved values by the time in field and errors by
// result.ExtractTimestamp, for use with SortWithErrorsFunc and
// time.Time.Compare.
func ByTimestamp(field string) func(result.Result[*resolve.Resolved]) (time.Time, bool) {
	return func(r result.Result[*resolve.Resolved]) (time.Time, bool) {
		v, e := r.Get()
		if e != nil {
			return result.ExtractTimestamp(e)
		}
		if v == nil {
			return time.Time{}, false
		}
		return ir.Time(v.Fields[field])
	}
}
