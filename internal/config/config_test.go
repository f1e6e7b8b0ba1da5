package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const valid = `
schema: chat.cue
sources:
  - name: desktop
    type: sqlite
    path: desktop.db
    time_field: ts
    volatile: [avatar_url]
    queries:
      - kind: person
        record: entity
        sql: SELECT id, name FROM people
      - kind: message
        record: link
        sql: SELECT id, text, ts, sender FROM messages
        roles: [sender]
  - name: phone
    type: json
    path: /exports/phone.json
    guard: true
merge:
  keys:
    message:
      fields: [text]
      roles: [sender]
      time_field: ts
      precision: 1s
sort:
  time_field: ts
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidFile(t *testing.T) {
	path := writeConfig(t, valid)
	dir := filepath.Dir(path)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "chat.cue"), cfg.Schema)
	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, filepath.Join(dir, "desktop.db"), cfg.Sources[0].Path)
	assert.Equal(t, "/exports/phone.json", cfg.Sources[1].Path, "absolute paths are kept")
	assert.Equal(t, []string{"avatar_url"}, cfg.Sources[0].Volatile)
	assert.Equal(t, []string{"sender"}, cfg.Sources[0].Queries[1].Roles)
	assert.False(t, cfg.Sources[0].Guard)
	assert.True(t, cfg.Sources[1].Guard)

	key := cfg.Merge.Keys["message"]
	assert.Equal(t, time.Second, key.Precision)
	assert.Equal(t, "ts", key.TimeField)

	require.NotNil(t, cfg.Sort)
	assert.Equal(t, "ts", cfg.Sort.TimeField)
	assert.Equal(t, DefaultBuffer, cfg.Buffer)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_UnknownField(t *testing.T) {
	path := writeConfig(t, valid+"sorting: true\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Parse([]byte(valid))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"no schema", func(c *Config) { c.Schema = "" }, "schema is required"},
		{"no sources", func(c *Config) { c.Sources = nil }, "sources list is required"},
		{"unnamed source", func(c *Config) { c.Sources[1].Name = "" }, "sources[1]: name is required"},
		{"duplicate name", func(c *Config) { c.Sources[1].Name = "desktop" }, `duplicate name "desktop"`},
		{"no path", func(c *Config) { c.Sources[0].Path = "" }, "sources[0]: path is required"},
		{"no type", func(c *Config) { c.Sources[0].Type = "" }, "type is required"},
		{"bad type", func(c *Config) { c.Sources[0].Type = "csv" }, `unknown type "csv"`},
		{"sqlite without queries", func(c *Config) { c.Sources[0].Queries = nil }, "queries are required"},
		{"json with queries", func(c *Config) { c.Sources[1].Queries = c.Sources[0].Queries }, "only valid for sqlite"},
		{"query without sql", func(c *Config) { c.Sources[0].Queries[0].SQL = "" }, "sql is required"},
		{"query without kind", func(c *Config) { c.Sources[0].Queries[0].Kind = "" }, "kind is required"},
		{"bad record", func(c *Config) { c.Sources[0].Queries[0].Record = "row" }, "record must be"},
		{"entity roles", func(c *Config) { c.Sources[0].Queries[0].Roles = []string{"x"} }, "only valid for link queries"},
		{"empty key", func(c *Config) { c.Merge.Keys["message"] = Key{} }, "at least one of"},
		{"precision without time", func(c *Config) {
			c.Merge.Keys["message"] = Key{Fields: []string{"text"}, Precision: time.Second}
		}, "precision requires time_field"},
		{"sort without field", func(c *Config) { c.Sort = &Sort{} }, "sort: time_field is required"},
		{"negative buffer", func(c *Config) { c.Buffer = -1 }, "buffer must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
