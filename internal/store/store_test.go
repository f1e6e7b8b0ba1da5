package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/exportgraph/internal/ir"
	"github.com/roach88/exportgraph/internal/resolve"
	"github.com/roach88/exportgraph/internal/result"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		s.Close()
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"runs", "results"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		assert.NoError(t, err, "table %q missing", table)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("user_version", "2"))
}

func TestOpen_MigratesV1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v1.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE runs (id TEXT PRIMARY KEY, config_hash TEXT NOT NULL,
			emitted INTEGER NOT NULL DEFAULT 0, errors INTEGER NOT NULL DEFAULT 0);
		CREATE TABLE results (run_id TEXT NOT NULL REFERENCES runs(id), seq INTEGER NOT NULL,
			type TEXT NOT NULL, kind TEXT NOT NULL DEFAULT '', id TEXT NOT NULL DEFAULT '',
			fields TEXT NOT NULL DEFAULT '{}', refs TEXT NOT NULL DEFAULT '{}',
			error TEXT, error_kind TEXT, source TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, seq));
		PRAGMA user_version = 1;
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.verifyPragma("user_version", "2"))
	var n int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info('results') WHERE name = 'error_time'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func sampleResults() []result.Result[*resolve.Resolved] {
	alice := &ir.Entity{Kind: "person", ID: "u1", Fields: ir.IRObject{"name": ir.IRString("Alice")}}
	m1 := &resolve.Resolved{
		Type:   ir.RecordTypeLink,
		Kind:   "message",
		ID:     "m1",
		Fields: ir.IRObject{"text": ir.IRString("hi <b>"), "ts": ir.IRString("2024-01-01T00:00:01Z")},
		Refs: map[string]resolve.Ref{
			"sender":   {Role: "sender", Kind: "person", ID: "u1", Entity: alice},
			"reply_to": {Role: "reply_to", Kind: "message"},
		},
	}
	missing := result.Newf(result.KindMissingReference, "missing reference %q", "sender").WithRecord("m2")
	missing.Source = "phone"
	result.AttachTimestamp(missing, time.Date(2024, 1, 1, 0, 0, 2, 0, time.UTC))

	return []result.Result[*resolve.Resolved]{
		result.Ok(m1),
		result.Fail[*resolve.Resolved](missing),
		result.Ok(&resolve.Resolved{Type: ir.RecordTypeEntity, Kind: "person", ID: "u1", Fields: alice.Fields}),
	}
}

func TestWriteRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	stats, err := s.WriteRun(ctx, "run-1", "cfg", slices.Values(sampleResults()))
	require.NoError(t, err)
	assert.Equal(t, RunStats{Emitted: 2, Errors: 1}, stats)

	rows, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, int64(1), rows[0].Seq)
	assert.Equal(t, "link", rows[0].Type)
	assert.Equal(t, ir.IRString("hi <b>"), rows[0].Fields["text"])
	assert.Equal(t, ir.IRObject{"kind": ir.IRString("person"), "id": ir.IRString("u1")}, rows[0].Refs["sender"])
	assert.Equal(t, ir.IRNull{}, rows[0].Refs["reply_to"])

	assert.True(t, rows[1].IsError())
	assert.Equal(t, `phone: missing reference "sender" (record m2)`, rows[1].Error)
	assert.Equal(t, "missing_reference", rows[1].ErrorKind)
	assert.Equal(t, "m2", rows[1].ID)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 2, 0, time.UTC), rows[1].ErrorTime)

	assert.Equal(t, "entity", rows[2].Type)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Run{{ID: "run-1", ConfigHash: "cfg", Emitted: 2, Errors: 1}}, runs)
}

func TestWriteRun_DuplicateRunFails(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.WriteRun(ctx, "run-1", "cfg", slices.Values(sampleResults()))
	require.NoError(t, err)
	_, err = s.WriteRun(ctx, "run-1", "cfg", slices.Values(sampleResults()))
	assert.Error(t, err)
}

func TestWriteRun_RollsBackOnCancel(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	results := func(yield func(result.Result[*resolve.Resolved]) bool) {
		for i, r := range sampleResults() {
			if i == 1 {
				cancel()
			}
			if !yield(r) {
				return
			}
		}
	}

	_, err := s.WriteRun(ctx, "run-1", "cfg", results)
	require.Error(t, err)

	rows, err := s.ReadRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReadRun_Unknown(t *testing.T) {
	rows, err := createTestStore(t).ReadRun(context.Background(), "nope")
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}
