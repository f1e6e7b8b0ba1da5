package result

import (
	"iter"

	"github.com/cockroachdb/errors"
)

// Map applies f to every value, passing errors through untouched.
func Map[T, U any](seq iter.Seq[Result[T]], f func(T) U) iter.Seq[Result[U]] {
	return func(yield func(Result[U]) bool) {
		for r := range seq {
			var out Result[U]
			if r.err != nil {
				out = Fail[U](r.err)
			} else {
				out = Ok(f(r.val))
			}
			if !yield(out) {
				return
			}
		}
	}
}

// Values keeps only the values, silently dropping errors.
func Values[T any](seq iter.Seq[Result[T]]) iter.Seq[T] {
	return func(yield func(T) bool) {
		for r := range seq {
			if r.err != nil {
				continue
			}
			if !yield(r.val) {
				return
			}
		}
	}
}

// Errors keeps only the errors.
func Errors[T any](seq iter.Seq[Result[T]]) iter.Seq[*Error] {
	return func(yield func(*Error) bool) {
		for r := range seq {
			if r.err == nil {
				continue
			}
			if !yield(r.err) {
				return
			}
		}
	}
}

// Unwrap converts the stream back into fail-fast form: values are yielded
// with a nil error until the first stream error, which is yielded once
// (wrapped with its position) and ends the sequence.
func Unwrap[T any](seq iter.Seq[Result[T]]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		i := 0
		for r := range seq {
			if r.err != nil {
				var zero T
				yield(zero, errors.Wrapf(r.err, "element %d", i))
				return
			}
			if !yield(r.val, nil) {
				return
			}
			i++
		}
	}
}

// Collect materializes the values of seq, failing on the first error.
func Collect[T any](seq iter.Seq[Result[T]]) ([]T, error) {
	var out []T
	for v, err := range Unwrap(seq) {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Partition materializes seq into its values and errors, keeping the
// relative order inside each group.
func Partition[T any](seq iter.Seq[Result[T]]) ([]T, []*Error) {
	var vals []T
	var errs []*Error
	for r := range seq {
		if r.err != nil {
			errs = append(errs, r.err)
		} else {
			vals = append(vals, r.val)
		}
	}
	return vals, errs
}
