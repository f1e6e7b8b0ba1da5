package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/exportgraph/internal/ir"
)

// Row is one stored result. For errors, ID is the record id the error
// concerns (if any) and Fields holds the error context.
type Row struct {
	Seq       int64
	Type      string
	Kind      string
	ID        string
	Fields    ir.IRObject
	Refs      ir.IRObject
	Error     string
	ErrorKind string
	Source    string
	ErrorTime time.Time
}

// IsError reports whether the row stores an error.
func (r Row) IsError() bool {
	return r.Type == "error"
}

// Run is one stored merge run.
type Run struct {
	ID         string `json:"id"`
	ConfigHash string `json:"config_hash"`
	Emitted    int    `json:"emitted"`
	Errors     int    `json:"errors"`
}

// ReadRun returns the results of a run in emission order.
// Returns an empty slice (not nil) for an unknown run.
func (s *Store) ReadRun(ctx context.Context, runID string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, type, kind, id, fields, refs, error, error_kind, source, error_time
		FROM results
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}

func scanRow(rows *sql.Rows) (Row, error) {
	var (
		row                  Row
		fields, refs         string
		errMsg, errKind, ets sql.NullString
	)
	if err := rows.Scan(&row.Seq, &row.Type, &row.Kind, &row.ID, &fields, &refs,
		&errMsg, &errKind, &row.Source, &ets); err != nil {
		return Row{}, fmt.Errorf("scan result: %w", err)
	}

	var err error
	if row.Fields, err = unmarshalObject(fields); err != nil {
		return Row{}, err
	}
	if row.Refs, err = unmarshalObject(refs); err != nil {
		return Row{}, err
	}
	row.Error = errMsg.String
	row.ErrorKind = errKind.String
	if ets.Valid {
		if t, ok := ir.ParseTime(ets.String); ok {
			row.ErrorTime = t
		}
	}
	return row, nil
}

// Runs lists stored runs ordered by id. Pass ids are UUIDv7, so this is
// also start order.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, config_hash, emitted, errors
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.ConfigHash, &r.Emitted, &r.Errors); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}
