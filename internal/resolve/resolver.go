package resolve

import (
	"iter"
	"log/slog"
	"slices"

	"github.com/roach88/exportgraph/internal/ir"
	"github.com/roach88/exportgraph/internal/result"
)

// Option configures a Pass.
type Option func(*Pass)

// WithEntities surfaces entity records as output (in addition to indexing
// them), immediately and as-is.
func WithEntities() Option {
	return func(p *Pass) { p.surfaceEntities = true }
}

// WithTimeField names the link field holding the record time. Missing
// reference errors get that time attached, so a sorter can place them
// next to their neighbours.
func WithTimeField(field string) Option {
	return func(p *Pass) { p.timeField = field }
}

// WithSource tags every error the pass creates with the source name.
func WithSource(name string) Option {
	return func(p *Pass) { p.source = name }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pass) { p.logger = l }
}

// WithIDGenerator overrides the pass ID generator (for tests).
func WithIDGenerator(g PassIDGenerator) Option {
	return func(p *Pass) { p.idGen = g }
}

// Pass is the state of one resolution pass.
type Pass struct {
	ID string

	roles           RoleTable
	refs            map[string]map[string]*ir.Entity
	arena           map[string]map[string]*Resolved
	stats           Stats
	surfaceEntities bool
	timeField       string
	source          string
	logger          *slog.Logger
	idGen           PassIDGenerator
}

// NewPass creates an empty pass over roles.
func NewPass(roles RoleTable, opts ...Option) *Pass {
	p := &Pass{
		roles:  roles,
		refs:   make(map[string]map[string]*ir.Entity),
		arena:  make(map[string]map[string]*Resolved),
		logger: slog.Default(),
		idGen:  UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.ID = p.idGen.Generate()
	return p
}

// Resolve runs records through a fresh pass.
func Resolve(records iter.Seq[ir.Record], roles RoleTable, opts ...Option) iter.Seq[result.Result[*Resolved]] {
	return NewPass(roles, opts...).Resolve(records)
}

// Resolve consumes records in order and yields one result per link record,
// error record and (with WithEntities) entity record.
//
// The returned sequence reads records only as fast as the consumer pulls.
// Stopping early is safe; the pass keeps whatever it indexed so far.
func (p *Pass) Resolve(records iter.Seq[ir.Record]) iter.Seq[result.Result[*Resolved]] {
	return func(yield func(result.Result[*Resolved]) bool) {
		for rec := range records {
			out, emit := p.step(rec)
			if emit && !yield(out) {
				return
			}
		}
		p.logger.Debug("resolution pass complete",
			"pass", p.ID,
			"source", p.source,
			"entities", p.stats.Entities,
			"links", p.stats.Links,
			"resolved", p.stats.Resolved,
			"missing", p.stats.Missing,
			"passed", p.stats.Passed,
		)
	}
}

// step handles one record. emit is false for entities that are only indexed.
func (p *Pass) step(rec ir.Record) (out result.Result[*Resolved], emit bool) {
	switch {
	case rec.Type == ir.RecordTypeEntity && rec.Entity != nil:
		p.index(rec.Entity)
		if !p.surfaceEntities {
			return out, false
		}
		e := rec.Entity
		return result.Ok(&Resolved{Type: ir.RecordTypeEntity, Kind: e.Kind, ID: e.ID, Fields: e.Fields}), true

	case rec.Type == ir.RecordTypeLink && rec.Link != nil:
		p.stats.Links++
		return p.resolveLink(rec.Link), true

	case rec.Type == ir.RecordTypeError && rec.Error != nil:
		p.stats.Passed++
		e := result.FromProduceError(rec.Error)
		if e.Source == "" {
			e.Source = p.source
		}
		return result.Fail[*Resolved](e), true

	default:
		p.stats.Passed++
		e := result.Newf(result.KindProducer, "malformed record of type %s", rec.Type)
		e.Source = p.source
		return result.Fail[*Resolved](e), true
	}
}

func (p *Pass) index(e *ir.Entity) {
	p.stats.Entities++
	byID := p.refs[e.Kind]
	if byID == nil {
		byID = make(map[string]*ir.Entity)
		p.refs[e.Kind] = byID
	}
	byID[e.ID] = e
}

func (p *Pass) resolveLink(l *ir.Link) result.Result[*Resolved] {
	out := &Resolved{
		Type:   ir.RecordTypeLink,
		Kind:   l.Kind,
		ID:     l.ID,
		Fields: l.Fields,
		Refs:   make(map[string]Ref, len(l.Refs)),
	}

	// Undeclared non-null roles on the record fail too, so a producer typo
	// cannot silently drop a reference.
	for _, role := range p.rolesOf(l) {
		target, declared := p.roles.Lookup(l.Kind, role)
		id := l.Refs[role]
		if !declared {
			if id == nil {
				continue
			}
			p.stats.Missing++
			return result.Fail[*Resolved](p.missing(l, role, id, "role is not declared for "+l.Kind))
		}
		ref := Ref{Role: role, Kind: target.Kind}
		if id == nil {
			out.Refs[role] = ref
			continue
		}
		ref.ID = *id
		if target.Self {
			ref.Link = p.arena[target.Kind][*id]
		} else {
			ref.Entity = p.refs[target.Kind][*id]
		}
		if ref.IsNull() {
			p.stats.Missing++
			return result.Fail[*Resolved](p.missing(l, role, id, ""))
		}
		out.Refs[role] = ref
	}

	byID := p.arena[l.Kind]
	if byID == nil {
		byID = make(map[string]*Resolved)
		p.arena[l.Kind] = byID
	}
	byID[l.ID] = out
	p.stats.Resolved++
	return result.Ok(out)
}

// rolesOf returns the declared roles of l's kind plus any extra role the
// record carries, sorted.
func (p *Pass) rolesOf(l *ir.Link) []string {
	roles := p.roles.Roles(l.Kind)
	for role := range l.Refs {
		if _, ok := p.roles.Lookup(l.Kind, role); !ok {
			roles = append(roles, role)
		}
	}
	slices.Sort(roles)
	return roles
}

func (p *Pass) missing(l *ir.Link, role string, id *string, why string) *result.Error {
	e := result.Newf(result.KindMissingReference, "missing reference %q", role).WithRecord(l.ID)
	e.Source = p.source
	if why != "" {
		e.Message += ": " + why
	}
	e.WithContext("kind", ir.IRString(l.Kind))
	if id != nil {
		e.WithContext("ref", ir.IRString(*id))
	}
	if l.Fields != nil {
		e.WithContext("fields", l.Fields)
	}
	if p.timeField != "" {
		if ts, ok := ir.Time(l.Fields[p.timeField]); ok {
			result.AttachTimestamp(e, ts)
		}
	}
	p.logger.Debug("missing reference",
		"pass", p.ID,
		"kind", l.Kind,
		"record", l.ID,
		"role", role,
	)
	return e
}

// Lookup returns the entity indexed under kind and id so far.
func (p *Pass) Lookup(kind, id string) (*ir.Entity, bool) {
	e, ok := p.refs[kind][id]
	return e, ok
}

// Resolved returns the link resolved under kind and id so far.
func (p *Pass) Resolved(kind, id string) (*Resolved, bool) {
	r, ok := p.arena[kind][id]
	return r, ok
}

// Stats returns the counters accumulated so far.
func (p *Pass) Stats() Stats {
	return p.stats
}
