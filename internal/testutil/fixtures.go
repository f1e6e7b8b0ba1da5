// Package testutil provides deterministic fixtures for exportgraph tests.
package testutil

import (
	"time"

	"github.com/roach88/exportgraph/internal/ir"
	"github.com/roach88/exportgraph/internal/resolve"
)

// ChatRoles is the role table of the chat fixtures: messages have a sender
// (person), an optional thread and an optional reply_to (earlier message).
func ChatRoles() resolve.RoleTable {
	return resolve.RoleTable{}.
		Declare("message", "sender", "person").
		Declare("message", "thread", "thread").
		DeclareSelf("message", "reply_to")
}

// Person builds a person entity record.
func Person(id, name string) ir.Record {
	return ir.EntityRecord("person", id, ir.IRObject{"name": ir.IRString(name)})
}

// Thread builds a thread entity record.
func Thread(id, title string) ir.Record {
	return ir.EntityRecord("thread", id, ir.IRObject{"title": ir.IRString(title)})
}

// Msg builds a message link record. Empty sender, thread or replyTo are null
// roles.
func Msg(id, sender, thread, replyTo, text string, at time.Time) ir.Record {
	return ir.LinkRecord("message", id, ir.IRObject{
		"text": ir.IRString(text),
		"ts":   ir.IRString(at.UTC().Format(time.RFC3339Nano)),
	}, map[string]*string{
		"sender":   optional(sender),
		"thread":   optional(thread),
		"reply_to": optional(replyTo),
	})
}

// Broken builds a producer error record.
func Broken(source, message string) ir.Record {
	return ir.ErrorRecord(&ir.ProduceError{Source: source, Message: message})
}

func optional(id string) *string {
	if id == "" {
		return nil
	}
	return ir.Ref(id)
}
