package result

// Result holds either a value of type T or an *Error.
// The zero Result holds the zero value of T.
type Result[T any] struct {
	val T
	err *Error
}

// Ok wraps a value.
func Ok[T any](v T) Result[T] {
	return Result[T]{val: v}
}

// Fail wraps an error. A nil err produces an Ok of the zero value.
func Fail[T any](err *Error) Result[T] {
	return Result[T]{err: err}
}

// Get returns the value and error. Exactly one is meaningful.
func (r Result[T]) Get() (T, *Error) {
	return r.val, r.err
}

// Value returns the value and true, or the zero value and false for errors.
func (r Result[T]) Value() (T, bool) {
	if r.err != nil {
		var zero T
		return zero, false
	}
	return r.val, true
}

// Err returns the error, or nil for values.
func (r Result[T]) Err() *Error {
	return r.err
}

// IsErr reports whether r holds an error.
func (r Result[T]) IsErr() bool {
	return r.err != nil
}
