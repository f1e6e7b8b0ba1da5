package store

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"time"

	"github.com/roach88/exportgraph/internal/resolve"
	"github.com/roach88/exportgraph/internal/result"
)

// RunStats counts what WriteRun stored.
type RunStats struct {
	Emitted int `json:"emitted"`
	Errors  int `json:"errors"`
}

// WriteRun drains results into the store under runID, in one transaction.
// The run is either stored completely or not at all; a cancelled ctx rolls
// it back.
//
// Writing the same runID twice fails on the runs primary key.
func (s *Store) WriteRun(ctx context.Context, runID, configHash string, results iter.Seq[result.Result[*resolve.Resolved]]) (RunStats, error) {
	var stats RunStats

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("write run: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, config_hash) VALUES (?, ?)`, runID, configHash); err != nil {
		return stats, fmt.Errorf("write run: %w", err)
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO results
		(run_id, seq, type, kind, id, fields, refs, error, error_kind, source, error_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return stats, fmt.Errorf("write run: %w", err)
	}
	defer insert.Close()

	var seq int64
	for r := range results {
		seq++
		if err := writeResult(ctx, insert, runID, seq, r); err != nil {
			return stats, fmt.Errorf("write run: result %d: %w", seq, err)
		}
		if r.IsErr() {
			stats.Errors++
		} else {
			stats.Emitted++
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE runs SET emitted = ?, errors = ? WHERE id = ?`,
		stats.Emitted, stats.Errors, runID); err != nil {
		return stats, fmt.Errorf("write run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("write run: commit: %w", err)
	}
	return stats, nil
}

func writeResult(ctx context.Context, insert *sql.Stmt, runID string, seq int64, r result.Result[*resolve.Resolved]) error {
	v, e := r.Get()
	if e != nil {
		var errTime sql.NullString
		if ts, ok := result.ExtractTimestamp(e); ok {
			errTime = sql.NullString{String: ts.UTC().Format(time.RFC3339Nano), Valid: true}
		}
		ctxJSON, err := marshalObject(e.Context)
		if err != nil {
			return err
		}
		_, err = insert.ExecContext(ctx,
			runID, seq, "error", "", e.RecordID, ctxJSON, "{}",
			e.Error(), string(e.Kind), e.Source, errTime)
		return err
	}

	fieldsJSON, err := marshalObject(v.Fields)
	if err != nil {
		return err
	}
	refsJSON, err := marshalObject(refsObject(v.Refs))
	if err != nil {
		return err
	}
	_, err = insert.ExecContext(ctx,
		runID, seq, v.Type.String(), v.Kind, v.ID, fieldsJSON, refsJSON,
		nil, nil, "", nil)
	return err
}
