package resolve

import (
	"fmt"
	"slices"
)

// SelfKind is the target kind that declares a role pointing at earlier
// resolved records of the link's own kind.
const SelfKind = "self"

// Target is the kind a role points at.
type Target struct {
	Kind string
	Self bool
}

func (t Target) String() string {
	if t.Self {
		return SelfKind
	}
	return t.Kind
}

// RoleTable declares, per link kind, which roles exist and what they point
// at. It replaces per-source ad hoc field conventions with one static table.
//
// Example:
//
//	roles := resolve.RoleTable{}.
//		Declare("message", "sender", "person").
//		Declare("message", "thread", "thread").
//		DeclareSelf("message", "reply_to")
type RoleTable map[string]map[string]Target

// Declare adds role on linkKind pointing at entities of targetKind.
// A targetKind of SelfKind is the same as DeclareSelf.
func (t RoleTable) Declare(linkKind, role, targetKind string) RoleTable {
	if targetKind == SelfKind {
		return t.DeclareSelf(linkKind, role)
	}
	return t.set(linkKind, role, Target{Kind: targetKind})
}

// DeclareSelf adds role on linkKind pointing at earlier links of linkKind.
func (t RoleTable) DeclareSelf(linkKind, role string) RoleTable {
	return t.set(linkKind, role, Target{Kind: linkKind, Self: true})
}

func (t RoleTable) set(linkKind, role string, target Target) RoleTable {
	if t == nil {
		t = RoleTable{}
	}
	if t[linkKind] == nil {
		t[linkKind] = map[string]Target{}
	}
	t[linkKind][role] = target
	return t
}

// Lookup returns the declared target of role on linkKind.
func (t RoleTable) Lookup(linkKind, role string) (Target, bool) {
	target, ok := t[linkKind][role]
	return target, ok
}

// Roles returns the roles declared for linkKind in sorted order.
func (t RoleTable) Roles(linkKind string) []string {
	roles := make([]string, 0, len(t[linkKind]))
	for role := range t[linkKind] {
		roles = append(roles, role)
	}
	slices.Sort(roles)
	return roles
}

// LinkKinds returns the declared link kinds in sorted order.
func (t RoleTable) LinkKinds() []string {
	kinds := make([]string, 0, len(t))
	for kind := range t {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	return kinds
}

// Validate checks the table for empty names.
func (t RoleTable) Validate() error {
	for linkKind, roles := range t {
		if linkKind == "" {
			return fmt.Errorf("role table: empty link kind")
		}
		for role, target := range roles {
			if role == "" {
				return fmt.Errorf("role table: %s: empty role name", linkKind)
			}
			if target.Kind == "" {
				return fmt.Errorf("role table: %s.%s: empty target kind", linkKind, role)
			}
		}
	}
	return nil
}
