package merge

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/exportgraph/internal/ir"
	"github.com/roach88/exportgraph/internal/resolve"
)

// ErrNoKey is returned by a key function for values that have no
// cross-source identity. The merger still drops repeats of the same raw id
// within one source, but never unifies such values across sources.
var ErrNoKey = errors.New("no merge key")

// Unkeyed is the key function of kinds without a configured identity.
func Unkeyed(*resolve.Resolved) (string, error) {
	return "", ErrNoKey
}

// IDKey keys values by type, kind and raw id. It only unifies sources that
// share an id space.
func IDKey(r *resolve.Resolved) (string, error) {
	return fmt.Sprintf("%s/%s/%s", r.Type, r.Kind, r.ID), nil
}

// KeyOption configures ContentKey.
type KeyOption func(*contentKey)

type contentKey struct {
	fields    []string
	roles     []string
	timeField string
	precision time.Duration
}

// WithRoles includes the ids of the named roles in the key. Role ids are
// read after remapping, so a record whose sender was unified keys the same
// as its counterpart in the winning source.
func WithRoles(roles ...string) KeyOption {
	return func(c *contentKey) { c.roles = append(c.roles, roles...) }
}

// TruncateTime includes field as a time rounded down to precision, so that
// a source storing milliseconds and one storing seconds agree.
func TruncateTime(field string, precision time.Duration) KeyOption {
	return func(c *contentKey) {
		c.timeField = field
		c.precision = precision
	}
}

// ContentKey keys values by kind and a projection of their content instead
// of their ids, for sources whose ids are not comparable.
//
// Missing fields are left out of the key rather than keyed as null. A time
// field that does not parse is an error.
func ContentKey(fields []string, opts ...KeyOption) KeyFunc[string] {
	c := contentKey{fields: fields}
	for _, opt := range opts {
		opt(&c)
	}
	return c.key
}

func (c contentKey) key(r *resolve.Resolved) (string, error) {
	content := ir.IRObject{
		"type":   ir.IRString(r.Type.String()),
		"fields": r.Fields.Only(c.fields...),
	}
	if c.timeField != "" {
		t, ok := ir.Time(r.Fields[c.timeField])
		if !ok {
			return "", fmt.Errorf("field %q of %s %s is not a time", c.timeField, r.Kind, r.ID)
		}
		if c.precision > 0 {
			t = t.Truncate(c.precision)
		}
		content["time"] = ir.IRString(t.UTC().Format(time.RFC3339Nano))
	}
	if len(c.roles) > 0 {
		refs := make(ir.IRObject, len(c.roles))
		for _, role := range c.roles {
			ref, ok := r.Refs[role]
			if !ok || ref.IsNull() {
				refs[role] = ir.IRNull{}
				continue
			}
			refs[role] = ir.IRString(ref.ID)
		}
		content["refs"] = refs
	}
	return ir.ContentKey(r.Kind, content)
}

// ByKind dispatches to a per-kind key function, using fallback for kinds
// without one. A nil fallback means Unkeyed: raw ids of different exports
// are not comparable.
func ByKind(keys map[string]KeyFunc[string], fallback KeyFunc[string]) KeyFunc[string] {
	if fallback == nil {
		fallback = Unkeyed
	}
	return func(r *resolve.Resolved) (string, error) {
		if key, ok := keys[r.Kind]; ok {
			return key(r)
		}
		return fallback(r)
	}
}
