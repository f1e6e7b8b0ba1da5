// Package schema compiles CUE role declarations into a resolve.RoleTable.
//
// A schema declares entity kinds and, per link kind, the roles a link
// carries and the kind each role points at:
//
//	entity: person: {}
//	entity: thread: {}
//	link: message: roles: {
//		sender:   "person"
//		thread:   "thread"
//		reply_to: "self"
//	}
//
// "self" marks a role pointing at earlier links of the same kind. When an
// entity block is present, every other role target must name a declared
// entity kind.
package schema

import (
	"fmt"
	"os"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/exportgraph/internal/resolve"
)

// definition constrains the shape of a schema file before compilation.
const definition = `
#Schema: {
	entity?: [string]: {...}
	link?: [string]: {
		roles: [string]: string & !=""
		...
	}
}
`

// Schema is a compiled role declaration file.
type Schema struct {
	Roles    resolve.RoleTable
	Entities []string
}

// LoadFile reads and compiles the CUE schema at path.
func LoadFile(path string) (*Schema, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return CompileBytes(src, path)
}

// CompileBytes compiles CUE source. filename is used in error positions.
func CompileBytes(src []byte, filename string) (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(v)
}

// Compile parses an already built CUE value into a Schema.
func Compile(v cue.Value) (*Schema, error) {
	def := v.Context().CompileString(definition).LookupPath(cue.ParsePath("#Schema"))
	v = def.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	s := &Schema{Roles: resolve.RoleTable{}}

	entities, err := labels(v.LookupPath(cue.ParsePath("entity")))
	if err != nil {
		return nil, err
	}
	s.Entities = entities

	linkVal := v.LookupPath(cue.ParsePath("link"))
	if !linkVal.Exists() {
		return nil, &CompileError{
			Field:   "link",
			Message: "at least one link kind is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := linkVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		if err := s.compileLink(iter.Label(), iter.Value()); err != nil {
			return nil, err
		}
	}

	if err := s.Roles.Validate(); err != nil {
		return nil, &CompileError{Field: "link", Message: err.Error(), Pos: linkVal.Pos()}
	}
	return s, nil
}

func (s *Schema) compileLink(kind string, v cue.Value) error {
	iter, err := v.LookupPath(cue.ParsePath("roles")).Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		role := iter.Label()
		target, err := iter.Value().String()
		if err != nil {
			return formatCUEError(err)
		}
		if target != resolve.SelfKind && len(s.Entities) > 0 && !slices.Contains(s.Entities, target) {
			return &CompileError{
				Field:   "link." + kind + ".roles." + role,
				Message: fmt.Sprintf("unknown entity kind %q", target),
				Pos:     iter.Value().Pos(),
			}
		}
		s.Roles.Declare(kind, role, target)
	}
	return nil
}

// labels returns the field labels of v in declaration order, or nil when
// v does not exist.
func labels(v cue.Value) ([]string, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		out = append(out, iter.Label())
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
