// Package jsonexport streams records out of a JSON export.
//
// The export is either a top-level array of elements or an object whose
// "records" field holds that array. Each element is one record:
//
//	{"type": "entity", "kind": "person", "id": "u1", "fields": {"name": "Alice"}}
//	{"type": "link", "kind": "message", "id": "m1", "fields": {...},
//	 "refs": {"sender": "u1", "reply_to": null}}
//
// Numeric ids are accepted and rendered as strings. An element of the
// wrong shape becomes an error record and reading continues; a syntax
// error ends the stream after one error record, since the decoder cannot
// resynchronize.
package jsonexport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"

	"github.com/roach88/exportgraph/internal/ir"
)

// RecordsField is the object field holding the element array.
const RecordsField = "records"

// Source is a JSON export on disk.
type Source struct {
	name   string
	path   string
	logger *slog.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) { s.logger = l }
}

// Open checks that path is readable and returns a Source for it.
func Open(name, path string, opts ...Option) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export: %w", err)
	}
	f.Close()

	s := &Source{name: name, path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close is a no-op; the file is only open while Records is iterated.
func (s *Source) Close() error {
	return nil
}

// Records opens the file and streams its elements. The file is closed
// when iteration ends, including when the consumer stops early.
func (s *Source) Records(ctx context.Context) iter.Seq[ir.Record] {
	return func(yield func(ir.Record) bool) {
		f, err := os.Open(s.path)
		if err != nil {
			yield(fail(s.name, 0, "cannot open export", nil, err))
			return
		}
		defer f.Close()

		n := 0
		for rec := range Decode(ctx, s.name, f) {
			n++
			if !yield(rec) {
				return
			}
		}
		s.logger.Debug("export read", "source", s.name, "path", s.path, "records", n)
	}
}

// Decode streams the elements of the export read from r.
func Decode(ctx context.Context, source string, r io.Reader) iter.Seq[ir.Record] {
	return func(yield func(ir.Record) bool) {
		// Exports are often one huge line; use a larger buffer than default.
		dec := json.NewDecoder(bufio.NewReaderSize(r, 1<<20))
		dec.UseNumber()

		tok, err := dec.Token()
		if err != nil {
			yield(fail(source, 0, "cannot read export", nil, err))
			return
		}
		delim, ok := tok.(json.Delim)
		if !ok {
			yield(fail(source, 0, fmt.Sprintf("expected JSON array or object, got %T", tok), nil, nil))
			return
		}

		switch delim {
		case '[':
			decodeArray(ctx, dec, source, yield)
		case '{':
			if err := seekRecords(dec); err != nil {
				yield(fail(source, 0, "cannot find records array", nil, err))
				return
			}
			decodeArray(ctx, dec, source, yield)
		default:
			yield(fail(source, 0, fmt.Sprintf("unexpected delimiter %q", delim), nil, nil))
		}
	}
}

// seekRecords advances dec past the '[' of the records field, skipping
// any other field.
func seekRecords(dec *json.Decoder) error {
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected string key, got %T", keyTok)
		}
		if key != RecordsField {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return fmt.Errorf("skip key %q value: %w", key, err)
			}
			continue
		}
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			return fmt.Errorf("field %q is not an array", RecordsField)
		}
		return nil
	}
	return fmt.Errorf("no %q field in top-level object", RecordsField)
}

func decodeArray(ctx context.Context, dec *json.Decoder, source string, yield func(ir.Record) bool) {
	n := 0
	for dec.More() {
		if ctx.Err() != nil {
			return
		}
		n++
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			yield(fail(source, n, "cannot decode element", nil, err))
			return
		}
		if !yield(element(source, n, raw)) {
			return
		}
	}
	if _, err := dec.Token(); err != nil {
		yield(fail(source, 0, fmt.Sprintf("export ends early after %d elements", n), nil, err))
	}
}

// element converts one array element into a record.
func element(source string, n int, raw json.RawMessage) ir.Record {
	v, err := ir.UnmarshalIRValue(raw)
	if err != nil {
		return fail(source, n, "cannot decode element", nil, err)
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return fail(source, n, "element is not an object", nil, nil)
	}

	typ, _ := obj.String("type")
	kind, _ := obj.String("kind")
	id, idOK := idOf(obj["id"])
	if kind == "" || !idOK {
		return fail(source, n, "element needs a kind and an id", obj, nil)
	}

	var fields ir.IRObject
	switch f := obj["fields"].(type) {
	case nil, ir.IRNull:
		fields = ir.IRObject{}
	case ir.IRObject:
		fields = f
	default:
		return fail(source, n, "fields is not an object", obj, nil)
	}

	switch typ {
	case "entity":
		return ir.EntityRecord(kind, id, fields)
	case "link":
		refs, err := refsOf(obj["refs"])
		if err != nil {
			return fail(source, n, err.Error(), obj, nil)
		}
		return ir.LinkRecord(kind, id, fields, refs)
	default:
		return fail(source, n, fmt.Sprintf("unknown element type %q", typ), obj, nil)
	}
}

func refsOf(v ir.IRValue) (map[string]*string, error) {
	switch r := v.(type) {
	case nil, ir.IRNull:
		return map[string]*string{}, nil
	case ir.IRObject:
		refs := make(map[string]*string, len(r))
		for role, rv := range r {
			if _, null := rv.(ir.IRNull); null {
				refs[role] = nil
				continue
			}
			id, ok := idOf(rv)
			if !ok {
				return nil, fmt.Errorf("ref %q is not an id", role)
			}
			refs[role] = ir.Ref(id)
		}
		return refs, nil
	default:
		return nil, fmt.Errorf("refs is not an object")
	}
}

func idOf(v ir.IRValue) (string, bool) {
	switch id := v.(type) {
	case ir.IRString:
		return string(id), id != ""
	case ir.IRInt:
		return fmt.Sprint(int64(id)), true
	default:
		return "", false
	}
}

func fail(source string, n int, msg string, element ir.IRObject, err error) ir.Record {
	var ctx ir.IRObject
	if n > 0 || element != nil {
		ctx = ir.IRObject{}
	}
	if n > 0 {
		ctx["element"] = ir.IRInt(n)
	}
	if element != nil {
		ctx["raw"] = element
	}
	if n > 0 {
		msg = fmt.Sprintf("element %d: %s", n, msg)
	}
	return ir.ErrorRecord(&ir.ProduceError{
		Source:  source,
		Message: msg,
		Context: ctx,
		Err:     err,
	})
}
