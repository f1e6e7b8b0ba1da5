package merge

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/roach88/exportgraph/internal/ir"
	"github.com/roach88/exportgraph/internal/resolve"
	"github.com/roach88/exportgraph/internal/result"
)

// KeyFunc computes the cross-source identity of a resolved value.
type KeyFunc[K comparable] func(*resolve.Resolved) (K, error)

// Source is one resolved stream, named so remaps stay scoped to it.
type Source struct {
	Name  string
	Items iter.Seq[result.Result[*resolve.Resolved]]
}

// From names a resolved stream.
func From(name string, items iter.Seq[result.Result[*resolve.Resolved]]) Source {
	return Source{Name: name, Items: items}
}

// Stats counts what a merger has seen so far.
type Stats struct {
	Emitted    int `json:"emitted"`
	Duplicates int `json:"duplicates"`
	Remaps     int `json:"remaps"`
	Errors     int `json:"errors"`
	DupErrors  int `json:"duplicate_errors"`
}

// Option configures a Merger.
type Option func(*config)

type config struct {
	logger *slog.Logger
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Merger holds the bookkeeping of one merge: what has been emitted under
// which key, and how raw ids of each source map to canonical ones.
type Merger[K comparable] struct {
	key    KeyFunc[K]
	logger *slog.Logger

	seen   map[K]*resolve.Resolved
	local  map[string]*resolve.Resolved // source/type/kind/id of unkeyed values
	errs   map[string]struct{}
	remaps map[string]map[string]map[string]resolve.Ref // source -> kind -> raw id
	stats  Stats
}

// New creates a Merger keyed by key.
func New[K comparable](key KeyFunc[K], opts ...Option) *Merger[K] {
	c := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&c)
	}
	return &Merger[K]{
		key:    key,
		logger: c.logger,
		seen:   make(map[K]*resolve.Resolved),
		local:  make(map[string]*resolve.Resolved),
		errs:   make(map[string]struct{}),
		remaps: make(map[string]map[string]map[string]resolve.Ref),
	}
}

// Merge concatenates sources in the given priority order and yields every
// first-seen value and every distinct error.
//
// Inputs are never modified: a value whose refs need rewriting is copied
// first. Keys that cannot be computed surface as hashability errors.
func (m *Merger[K]) Merge(sources ...Source) iter.Seq[result.Result[*resolve.Resolved]] {
	return func(yield func(result.Result[*resolve.Resolved]) bool) {
		for _, src := range sources {
			for r := range src.Items {
				out, emit := m.step(src.Name, r)
				if emit && !yield(out) {
					return
				}
			}
			m.logger.Debug("merged source",
				"source", src.Name,
				"emitted", m.stats.Emitted,
				"duplicates", m.stats.Duplicates,
				"remaps", m.stats.Remaps,
			)
		}
	}
}

func (m *Merger[K]) step(source string, r result.Result[*resolve.Resolved]) (result.Result[*resolve.Resolved], bool) {
	v, e := r.Get()
	if e != nil {
		return m.fail(r, e)
	}

	raw := v
	v = m.rewrite(source, v)
	k, err := m.key(v)
	if errors.Is(err, ErrNoKey) {
		return m.stepLocal(source, raw, v)
	}
	if err != nil {
		e := result.Wrapf(err, result.KindHashability, "cannot compute merge key").WithRecord(v.ID)
		e.Source = source
		e.WithContext("kind", ir.IRString(v.Kind))
		return m.fail(result.Fail[*resolve.Resolved](e), e)
	}

	first, dup := m.seen[k]
	if !dup {
		m.seen[k] = v
		m.stats.Emitted++
		return result.Ok(v), true
	}

	m.stats.Duplicates++
	m.unify(source, raw, first)
	return r, false
}

// stepLocal handles a value without a cross-source key: only a repeat of
// the same raw id from the same source is a duplicate.
func (m *Merger[K]) stepLocal(source string, raw, v *resolve.Resolved) (result.Result[*resolve.Resolved], bool) {
	k := fmt.Sprintf("%s\x00%s/%s/%s", source, raw.Type, raw.Kind, raw.ID)
	if first, dup := m.local[k]; dup {
		m.stats.Duplicates++
		m.unify(source, raw, first)
		return result.Ok(raw), false
	}
	m.local[k] = v
	m.stats.Emitted++
	return result.Ok(v), true
}

// fail emits e unless an error with the same rendering was already emitted.
func (m *Merger[K]) fail(r result.Result[*resolve.Resolved], e *result.Error) (result.Result[*resolve.Resolved], bool) {
	msg := e.Error()
	if _, dup := m.errs[msg]; dup {
		m.stats.DupErrors++
		return r, false
	}
	m.errs[msg] = struct{}{}
	m.stats.Errors++
	return r, true
}

// rewrite returns v with every ref remapped in source's scope. v itself is
// returned when nothing changes.
func (m *Merger[K]) rewrite(source string, v *resolve.Resolved) *resolve.Resolved {
	scope := m.remaps[source]
	if len(scope) == 0 || len(v.Refs) == 0 {
		return v
	}
	var out *resolve.Resolved
	for role, ref := range v.Refs {
		if ref.IsNull() {
			continue
		}
		canon, ok := scope[ref.Kind][ref.ID]
		if !ok {
			continue
		}
		if out == nil {
			out = v.Clone()
		}
		canon.Role = role
		out.Refs[role] = canon
	}
	if out == nil {
		return v
	}
	return out
}

// unify records remaps from dup's raw ids to first's. Role ids are
// remapped role by role; dup's own id maps to first's id under its own
// kind. An id that already has a remap keeps it.
func (m *Merger[K]) unify(source string, dup, first *resolve.Resolved) {
	for role, ref := range dup.Refs {
		canon, ok := first.Refs[role]
		if ref.IsNull() || !ok || canon.IsNull() {
			continue
		}
		m.remap(source, ref.Kind, ref.ID, canon)
	}
	m.remap(source, dup.Kind, dup.ID, selfRef(first))

	m.logger.Debug("duplicate unified",
		"source", source,
		"kind", dup.Kind,
		"id", dup.ID,
		"canonical", first.ID,
	)
}

func (m *Merger[K]) remap(source, kind, rawID string, canon resolve.Ref) {
	if rawID == canon.ID {
		return
	}
	scope := m.remaps[source]
	if scope == nil {
		scope = make(map[string]map[string]resolve.Ref)
		m.remaps[source] = scope
	}
	byID := scope[kind]
	if byID == nil {
		byID = make(map[string]resolve.Ref)
		scope[kind] = byID
	}
	if _, ok := byID[rawID]; ok {
		return
	}
	byID[rawID] = canon
	m.stats.Remaps++
}

// selfRef builds the ref other records would hold to r.
func selfRef(r *resolve.Resolved) resolve.Ref {
	ref := resolve.Ref{Kind: r.Kind, ID: r.ID}
	if r.Type == ir.RecordTypeEntity {
		ref.Entity = &ir.Entity{Kind: r.Kind, ID: r.ID, Fields: r.Fields}
	} else {
		ref.Link = r
	}
	return ref
}

// Canonical returns the canonical id that raw id of kind from source has
// been unified with. Returns false when no remap is recorded.
func (m *Merger[K]) Canonical(source, kind, id string) (string, bool) {
	ref, ok := m.remaps[source][kind][id]
	if !ok {
		return "", false
	}
	return ref.ID, true
}

// Stats returns the counters accumulated so far.
func (m *Merger[K]) Stats() Stats {
	return m.stats
}
