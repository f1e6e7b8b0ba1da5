package resolve

import (
	"github.com/roach88/exportgraph/internal/ir"
)

// Ref is one resolved role of a link.
//
// Entity or Link holds the referenced object itself, never just its id.
// Both are nil for a null role. ID and Kind are kept alongside so that the
// merge layer can rewrite identities without touching the embedded objects.
type Ref struct {
	Role   string
	Kind   string
	ID     string
	Entity *ir.Entity
	Link   *Resolved
}

// IsNull reports whether the role was legitimately absent.
func (r Ref) IsNull() bool {
	return r.Entity == nil && r.Link == nil
}

// Resolved is a link record with every role replaced by the object it
// names. Pass-through entities (see WithEntities) are also surfaced as
// Resolved values with Type ir.RecordTypeEntity and no refs.
type Resolved struct {
	Type   ir.RecordType
	Kind   string
	ID     string
	Fields ir.IRObject
	Refs   map[string]Ref
}

// Entity returns the entity embedded under role, or nil.
func (r *Resolved) Entity(role string) *ir.Entity {
	return r.Refs[role].Entity
}

// Link returns the earlier link embedded under role, or nil.
func (r *Resolved) Link(role string) *Resolved {
	return r.Refs[role].Link
}

// Clone returns a copy of r whose Refs map can be modified independently.
// Fields and embedded objects are shared.
func (r *Resolved) Clone() *Resolved {
	c := *r
	if r.Refs != nil {
		c.Refs = make(map[string]Ref, len(r.Refs))
		for role, ref := range r.Refs {
			c.Refs[role] = ref
		}
	}
	return &c
}

// Stats counts what a pass has seen so far.
type Stats struct {
	Entities int `json:"entities"`
	Links    int `json:"links"`
	Resolved int `json:"resolved"`
	Missing  int `json:"missing"`
	Passed   int `json:"passed"`
}
