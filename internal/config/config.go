// Package config loads the YAML pipeline configuration.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Source types.
const (
	TypeSQLite = "sqlite"
	TypeJSON   = "json"
)

// Query record shapes.
const (
	RecordEntity = "entity"
	RecordLink   = "link"
)

// DefaultBuffer is the per-source channel capacity used when Buffer is unset.
const DefaultBuffer = 64

// Config describes one merge run.
type Config struct {
	// Schema is the path to the CUE role declarations.
	// Relative paths are resolved against the config file's directory.
	Schema string `yaml:"schema"`

	// Sources are merged in the order listed; earlier sources win.
	Sources []Source `yaml:"sources"`

	// Merge configures cross-source identity. Kinds without a key are
	// never unified across sources.
	Merge Merge `yaml:"merge,omitempty"`

	// Sort, when present, orders the merged output by time.
	Sort *Sort `yaml:"sort,omitempty"`

	// Buffer is the channel capacity between each source and the merger.
	Buffer int `yaml:"buffer,omitempty"`
}

// Source is one export to read.
type Source struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Path string `yaml:"path"`

	// TimeField names the link field holding the record time. Errors about
	// a record carry that time so sorting can place them.
	TimeField string `yaml:"time_field,omitempty"`

	// Volatile fields are ignored when deduplicating raw rows
	// (rotating URL tokens, fetch timestamps).
	Volatile []string `yaml:"volatile,omitempty"`

	// Entities surfaces entity records in the output as well.
	Entities bool `yaml:"entities,omitempty"`

	// Guard ends the source at the first row whose identity cannot be
	// computed, with a hashability error, instead of reporting the row and
	// reading on.
	Guard bool `yaml:"guard,omitempty"`

	// Queries are run in order (sqlite only). Entities must be read before
	// the links that reference them.
	Queries []Query `yaml:"queries,omitempty"`
}

// Query maps one SELECT to records of one kind.
//
// The result must have an "id" column. For links, every column named in
// Roles is read as a role id (NULL for an absent role); all other columns
// become fields.
type Query struct {
	Kind   string   `yaml:"kind"`
	Record string   `yaml:"record"`
	SQL    string   `yaml:"sql"`
	Roles  []string `yaml:"roles,omitempty"`
}

// Merge configures cross-source identity keys per kind.
type Merge struct {
	Keys map[string]Key `yaml:"keys,omitempty"`
}

// Key is a content key: the named fields, the named role ids and a time
// field truncated to Precision.
type Key struct {
	Fields    []string      `yaml:"fields,omitempty"`
	Roles     []string      `yaml:"roles,omitempty"`
	TimeField string        `yaml:"time_field,omitempty"`
	Precision time.Duration `yaml:"precision,omitempty"`
}

// Sort configures output ordering.
type Sort struct {
	TimeField string `yaml:"time_field"`
}

// Load reads, parses and validates the config at path.
// Unknown fields are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML without validating it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if cfg.Buffer == 0 {
		cfg.Buffer = DefaultBuffer
	}
	return &cfg, nil
}

func (c *Config) resolvePaths(base string) {
	if c.Schema != "" && !filepath.IsAbs(c.Schema) {
		c.Schema = filepath.Join(base, c.Schema)
	}
	for i := range c.Sources {
		if p := c.Sources[i].Path; p != "" && !filepath.IsAbs(p) {
			c.Sources[i].Path = filepath.Join(base, p)
		}
	}
}

// Validate checks required fields and cross-field constraints.
func (c *Config) Validate() error {
	if c.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("sources list is required and must be non-empty")
	}
	if c.Buffer < 0 {
		return fmt.Errorf("buffer must not be negative")
	}

	var names []string
	for i, src := range c.Sources {
		if err := validateSource(i, &src); err != nil {
			return err
		}
		if slices.Contains(names, src.Name) {
			return fmt.Errorf("sources[%d]: duplicate name %q", i, src.Name)
		}
		names = append(names, src.Name)
	}

	for kind, key := range c.Merge.Keys {
		if len(key.Fields) == 0 && len(key.Roles) == 0 && key.TimeField == "" {
			return fmt.Errorf("merge.keys.%s: at least one of fields, roles or time_field is required", kind)
		}
		if key.Precision < 0 {
			return fmt.Errorf("merge.keys.%s: precision must not be negative", kind)
		}
		if key.Precision > 0 && key.TimeField == "" {
			return fmt.Errorf("merge.keys.%s: precision requires time_field", kind)
		}
	}

	if c.Sort != nil && c.Sort.TimeField == "" {
		return fmt.Errorf("sort: time_field is required")
	}
	return nil
}

func validateSource(index int, s *Source) error {
	if s.Name == "" {
		return fmt.Errorf("sources[%d]: name is required", index)
	}
	if s.Path == "" {
		return fmt.Errorf("sources[%d]: path is required", index)
	}

	switch s.Type {
	case TypeSQLite:
		if len(s.Queries) == 0 {
			return fmt.Errorf("sources[%d]: queries are required for sqlite sources", index)
		}
		for j, q := range s.Queries {
			if err := validateQuery(index, j, &q); err != nil {
				return err
			}
		}
	case TypeJSON:
		if len(s.Queries) > 0 {
			return fmt.Errorf("sources[%d]: queries are only valid for sqlite sources", index)
		}
	case "":
		return fmt.Errorf("sources[%d]: type is required", index)
	default:
		return fmt.Errorf("sources[%d]: unknown type %q (valid: %s, %s)", index, s.Type, TypeSQLite, TypeJSON)
	}
	return nil
}

func validateQuery(src, index int, q *Query) error {
	if q.Kind == "" {
		return fmt.Errorf("sources[%d].queries[%d]: kind is required", src, index)
	}
	if q.SQL == "" {
		return fmt.Errorf("sources[%d].queries[%d]: sql is required", src, index)
	}
	switch q.Record {
	case RecordEntity:
		if len(q.Roles) > 0 {
			return fmt.Errorf("sources[%d].queries[%d]: roles are only valid for link queries", src, index)
		}
	case RecordLink:
	default:
		return fmt.Errorf("sources[%d].queries[%d]: record must be %q or %q", src, index, RecordEntity, RecordLink)
	}
	return nil
}
