package result

import (
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/roach88/exportgraph/internal/ir"
)

// datePattern matches ISO-8601 dates with an optional time and zone.
var datePattern = regexp.MustCompile(
	`\d{4}-\d{2}-\d{2}(?:[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})?)?`)

// AttachTimestamp records an explicit timestamp on e, used by
// ExtractTimestamp when nothing date-shaped is found in the error itself.
func AttachTimestamp(e *Error, t time.Time) *Error {
	e.timestamp = t
	return e
}

// ExtractTimestamp finds the time an error most likely refers to.
//
// It scans, in order, the error context (keys in canonical order), the
// message, then every message and detail along the cause chain for the first
// date-shaped substring. When none parses it falls back to the attached
// timestamp. Returns false when neither is available.
func ExtractTimestamp(e *Error) (time.Time, bool) {
	if e == nil {
		return time.Time{}, false
	}
	for _, text := range searchTexts(e) {
		if t, ok := findDate(text); ok {
			return t, true
		}
	}
	if !e.timestamp.IsZero() {
		return e.timestamp, true
	}
	return time.Time{}, false
}

func searchTexts(e *Error) []string {
	var texts []string
	for _, k := range e.Context.SortedKeys() {
		if data, err := ir.MarshalIRValue(e.Context[k]); err == nil {
			texts = append(texts, string(data))
		}
	}
	texts = append(texts, e.Message)
	for c := e.cause; c != nil; c = errors.UnwrapOnce(c) {
		texts = append(texts, c.Error())
		texts = append(texts, errors.GetAllDetails(c)...)
	}
	return texts
}

func findDate(text string) (time.Time, bool) {
	for _, m := range datePattern.FindAllString(text, -1) {
		if len(m) > 10 && m[10] == ' ' {
			m = m[:10] + "T" + m[11:]
		}
		if t, ok := ir.ParseTime(strings.TrimSpace(m)); ok {
			return t, true
		}
	}
	return time.Time{}, false
}
