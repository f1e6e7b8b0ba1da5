// Package sqlite reads records from an SQLite export.
//
// Each configured query yields records of one kind. Queries run in order,
// so entity queries must come before the link queries that reference them.
// A row that cannot be converted becomes an error record carrying whatever
// columns could be read; it never stops the source.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"slices"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/exportgraph/internal/config"
	"github.com/roach88/exportgraph/internal/ir"
)

// Source is an open SQLite export.
type Source struct {
	db      *sql.DB
	name    string
	queries []config.Query
	logger  *slog.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) { s.logger = l }
}

// Open opens the export at path read-only.
func Open(name, path string, queries []config.Query, opts ...Option) (*Source, error) {
	dsn := "file:" + (&url.URL{Path: path}).EscapedPath() + "?mode=ro&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open export: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to export %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &Source{db: db, name: name, queries: queries, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Source) Close() error {
	return s.db.Close()
}

// Records runs every query and yields its rows as records.
//
// Rows are read only as fast as the consumer pulls. Stopping early or
// cancelling ctx closes the open result set.
func (s *Source) Records(ctx context.Context) iter.Seq[ir.Record] {
	return func(yield func(ir.Record) bool) {
		for _, q := range s.queries {
			if ctx.Err() != nil || !s.run(ctx, q, yield) {
				return
			}
		}
	}
}

// run yields the rows of one query. Returns false when the consumer stopped
// or ctx was cancelled.
func (s *Source) run(ctx context.Context, q config.Query, yield func(ir.Record) bool) bool {
	rows, err := s.db.QueryContext(ctx, q.SQL)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		return yield(s.failure(q, 0, "query failed", nil, err))
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return yield(s.failure(q, 0, "cannot read columns", nil, err))
	}
	if !slices.Contains(cols, "id") {
		return yield(s.failure(q, 0, "query has no id column", nil, nil))
	}

	n := 0
	for rows.Next() {
		n++
		if !yield(s.convert(q, n, cols, rows)) {
			return false
		}
	}
	if err := rows.Err(); err != nil {
		if ctx.Err() != nil {
			return false
		}
		return yield(s.failure(q, n, "reading rows failed", nil, err))
	}

	s.logger.Debug("query complete", "source", s.name, "kind", q.Kind, "rows", n)
	return true
}

func (s *Source) convert(q config.Query, n int, cols []string, rows *sql.Rows) ir.Record {
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return s.failure(q, n, "cannot scan row", nil, err)
	}

	var (
		id     string
		fields = ir.IRObject{}
		refs   map[string]*string
		bad    error
	)
	if q.Record == config.RecordLink {
		refs = make(map[string]*string, len(q.Roles))
		for _, role := range q.Roles {
			refs[role] = nil
		}
	}

	for i, col := range cols {
		switch {
		case col == "id":
			if raw[i] == nil {
				bad = fmt.Errorf("id is NULL")
				continue
			}
			id = idString(raw[i])
		case refs != nil && slices.Contains(q.Roles, col):
			if raw[i] != nil {
				refs[col] = ir.Ref(idString(raw[i]))
			}
		default:
			v, err := ir.FromGo(raw[i])
			if err != nil {
				bad = fmt.Errorf("column %s: %w", col, err)
				continue
			}
			fields[col] = v
		}
	}

	if bad != nil {
		if id != "" {
			fields["id"] = ir.IRString(id)
		}
		return s.failure(q, n, "cannot convert row", fields, bad)
	}
	if refs != nil {
		return ir.LinkRecord(q.Kind, id, fields, refs)
	}
	return ir.EntityRecord(q.Kind, id, fields)
}

func (s *Source) failure(q config.Query, row int, msg string, partial ir.IRObject, err error) ir.Record {
	ctx := ir.IRObject{"kind": ir.IRString(q.Kind)}
	where := q.Kind
	if row > 0 {
		ctx["row"] = ir.IRInt(row)
		where = fmt.Sprintf("%s row %d", q.Kind, row)
	}
	if len(partial) > 0 {
		ctx["columns"] = partial
	}
	return ir.ErrorRecord(&ir.ProduceError{
		Source:  s.name,
		Message: fmt.Sprintf("%s: %s", where, msg),
		Context: ctx,
		Err:     err,
	})
}

// idString renders an id column. Integer ids are common in exports.
func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case []byte:
		return string(id)
	default:
		if f, ok := v.(float64); ok && f == float64(int64(f)) {
			return fmt.Sprint(int64(f))
		}
		return fmt.Sprint(v)
	}
}
