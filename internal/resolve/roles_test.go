package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleTableDeclare(t *testing.T) {
	roles := RoleTable{}.
		Declare("message", "sender", "person").
		Declare("message", "reply_to", SelfKind)

	target, ok := roles.Lookup("message", "sender")
	require.True(t, ok)
	assert.Equal(t, Target{Kind: "person"}, target)
	assert.Equal(t, "person", target.String())

	target, ok = roles.Lookup("message", "reply_to")
	require.True(t, ok)
	assert.Equal(t, Target{Kind: "message", Self: true}, target)
	assert.Equal(t, "self", target.String())

	_, ok = roles.Lookup("reaction", "sender")
	assert.False(t, ok)

	assert.Equal(t, []string{"reply_to", "sender"}, roles.Roles("message"))
	assert.Empty(t, roles.Roles("reaction"))
	assert.Equal(t, []string{"message"}, roles.LinkKinds())
}

func TestRoleTableNilReceiver(t *testing.T) {
	var roles RoleTable
	roles = roles.Declare("message", "sender", "person")
	assert.Len(t, roles, 1)
}

func TestRoleTableValidate(t *testing.T) {
	assert.NoError(t, RoleTable{}.Declare("message", "sender", "person").Validate())
	assert.Error(t, RoleTable{}.Declare("", "sender", "person").Validate())
	assert.Error(t, RoleTable{}.Declare("message", "", "person").Validate())
	assert.Error(t, RoleTable{}.Declare("message", "sender", "").Validate())
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Panics(t, func() { g.Generate() })

	assert.Len(t, UUIDv7Generator{}.Generate(), 36)
}

func TestResolvedClone(t *testing.T) {
	r := &Resolved{Kind: "message", ID: "m1", Refs: map[string]Ref{"sender": {Role: "sender", ID: "u1"}}}
	c := r.Clone()
	c.Refs["sender"] = Ref{Role: "sender", ID: "u9"}

	assert.Equal(t, "u1", r.Refs["sender"].ID)
	assert.Equal(t, "u9", c.Refs["sender"].ID)
}
