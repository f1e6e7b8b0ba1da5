package result

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/roach88/exportgraph/internal/ir"
)

// Kind categorizes stream errors.
type Kind string

const (
	// KindProducer marks a raw row the producer could not decode.
	KindProducer Kind = "producer"

	// KindMissingReference marks a link naming an id absent from the reference map.
	KindMissingReference Kind = "missing_reference"

	// KindHashability marks an element that cannot serve as a dedup key input.
	KindHashability Kind = "hashability"
)

// Error is an in-band stream failure.
//
// Message is human readable. Context carries whatever the originator could
// salvage (raw columns, row numbers) so the error is useful on its own, and
// is also where ExtractTimestamp looks for a date to correlate the error with
// neighbouring values.
type Error struct {
	Kind     Kind
	Message  string
	Source   string
	RecordID string
	Context  ir.IRObject

	cause     error
	timestamp time.Time
}

// Newf creates an Error of the given kind.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrapf creates an Error of the given kind caused by cause.
// The cause keeps its stack and details for errors.Is/As and for
// ExtractTimestamp.
func Wrapf(cause error, kind Kind, format string, args ...any) *Error {
	e := Newf(kind, format, args...)
	if cause != nil {
		e.cause = errors.WithStackDepth(cause, 1)
	}
	return e
}

// FromProduceError lifts a producer failure into the stream error type.
func FromProduceError(pe *ir.ProduceError) *Error {
	return &Error{
		Kind:    KindProducer,
		Message: pe.Message,
		Source:  pe.Source,
		Context: pe.Context,
		cause:   pe.Err,
	}
}

// WithRecord returns e annotated with the id of the record it concerns.
func (e *Error) WithRecord(id string) *Error {
	e.RecordID = id
	return e
}

// WithContext returns e with key set in its context.
func (e *Error) WithContext(key string, v ir.IRValue) *Error {
	if e.Context == nil {
		e.Context = ir.IRObject{}
	}
	e.Context[key] = v
	return e
}

// Error renders the error. The rendering is stable and is used as the
// error's identity when streams are deduplicated.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Source != "" {
		b.WriteString(e.Source)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.RecordID != "" {
		fmt.Fprintf(&b, " (record %s)", e.RecordID)
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

// Unwrap returns the cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// IsKind reports whether err (or anything it wraps) is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
