package ir

import (
	"fmt"
	"maps"
)

// RecordType distinguishes the raw record variants a producer emits.
type RecordType int

const (
	// RecordTypeEntity is a self-contained referenceable object (a person, a thread).
	RecordTypeEntity RecordType = iota + 1
	// RecordTypeLink owns scalar fields plus role-named foreign keys (a message).
	RecordTypeLink
	// RecordTypeError is a row the producer could not decode.
	RecordTypeError
)

func (t RecordType) String() string {
	switch t {
	case RecordTypeEntity:
		return "entity"
	case RecordTypeLink:
		return "link"
	case RecordTypeError:
		return "error"
	default:
		return fmt.Sprintf("RecordType(%d)", int(t))
	}
}

// Entity is a referenceable object. ID is unique only within one source pass.
type Entity struct {
	Kind   string   `json:"kind"`
	ID     string   `json:"id"`
	Fields IRObject `json:"fields"`
}

// Link is a record carrying role-named references to other records.
// A nil ref is a legitimately absent reference (e.g. a message that is not
// a reply), not an error.
type Link struct {
	Kind   string             `json:"kind"`
	ID     string             `json:"id"`
	Fields IRObject           `json:"fields"`
	Refs   map[string]*string `json:"refs"`
}

// ProduceError describes one raw row that failed to decode.
// Context holds whatever the producer could salvage (row number, raw
// columns) so the error stays useful on its own.
type ProduceError struct {
	Source  string   `json:"source,omitempty"`
	Message string   `json:"message"`
	Context IRObject `json:"context,omitempty"`
	Err     error    `json:"-"`
}

func (e *ProduceError) Error() string {
	msg := e.Message
	if e.Source != "" {
		msg = e.Source + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProduceError) Unwrap() error {
	return e.Err
}

// Record is the tagged union every producer emits.
// Exactly one of Entity, Link, Error is set, matching Type.
type Record struct {
	Type   RecordType
	Entity *Entity
	Link   *Link
	Error  *ProduceError
}

// EntityRecord wraps an entity.
func EntityRecord(kind, id string, fields IRObject) Record {
	return Record{Type: RecordTypeEntity, Entity: &Entity{Kind: kind, ID: id, Fields: fields}}
}

// LinkRecord wraps a link. The refs map is copied.
func LinkRecord(kind, id string, fields IRObject, refs map[string]*string) Record {
	return Record{Type: RecordTypeLink, Link: &Link{Kind: kind, ID: id, Fields: fields, Refs: maps.Clone(refs)}}
}

// ErrorRecord wraps a producer failure.
func ErrorRecord(err *ProduceError) Record {
	return Record{Type: RecordTypeError, Error: err}
}

// Ref returns a pointer to id, for building Link.Refs literals.
func Ref(id string) *string {
	return &id
}

// RowKey computes the raw-row identity of r (see RowKey).
// Error records key on their rendered message plus their context, so two
// rows failing the same way stay distinct.
func (r Record) RowKey(volatile ...string) (string, error) {
	switch r.Type {
	case RecordTypeEntity:
		return RowKey(r.Entity.Kind, r.Entity.ID, r.Entity.Fields, volatile...)
	case RecordTypeLink:
		fields := maps.Clone(r.Link.Fields)
		if fields == nil {
			fields = IRObject{}
		}
		refs := make(IRObject, len(r.Link.Refs))
		for role, id := range r.Link.Refs {
			if id == nil {
				refs[role] = IRNull{}
			} else {
				refs[role] = IRString(*id)
			}
		}
		// "@refs" cannot collide with a decoded column name in practice.
		fields["@refs"] = refs
		return RowKey(r.Link.Kind, r.Link.ID, fields, volatile...)
	case RecordTypeError:
		key := "error:" + r.Error.Error()
		if len(r.Error.Context) > 0 {
			if ctx, err := MarshalCanonical(r.Error.Context); err == nil {
				key += "\x00" + string(ctx)
			}
		}
		return key, nil
	default:
		return "", fmt.Errorf("RowKey: unknown record type %v", r.Type)
	}
}
