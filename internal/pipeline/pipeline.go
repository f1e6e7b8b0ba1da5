// Package pipeline wires producers, resolution, merging and sorting into
// one run.
//
// Sources are resolved in parallel, one goroutine per source, each feeding
// a bounded channel. A single merger drains the channels in configured
// priority order, so a resolution pass itself is never shared between
// goroutines. When the consumer stops early the remaining producers are
// cancelled and waited for before Run returns.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/exportgraph/internal/config"
	"github.com/roach88/exportgraph/internal/dedup"
	"github.com/roach88/exportgraph/internal/ir"
	"github.com/roach88/exportgraph/internal/merge"
	"github.com/roach88/exportgraph/internal/resolve"
	"github.com/roach88/exportgraph/internal/result"
	"github.com/roach88/exportgraph/internal/schema"
	"github.com/roach88/exportgraph/internal/sorter"
	"github.com/roach88/exportgraph/internal/source/jsonexport"
	"github.com/roach88/exportgraph/internal/source/sqlite"
)

// Producer is an opened export.
type Producer interface {
	Records(ctx context.Context) iter.Seq[ir.Record]
	Close() error
}

// Opener opens the producer for a configured source.
type Opener func(src config.Source, logger *slog.Logger) (Producer, error)

// OpenSource opens sqlite and json sources.
func OpenSource(src config.Source, logger *slog.Logger) (Producer, error) {
	switch src.Type {
	case config.TypeSQLite:
		return sqlite.Open(src.Name, src.Path, src.Queries, sqlite.WithLogger(logger))
	case config.TypeJSON:
		return jsonexport.Open(src.Name, src.Path, jsonexport.WithLogger(logger))
	default:
		return nil, fmt.Errorf("source %s: unknown type %q", src.Name, src.Type)
	}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithIDGenerator sets the generator for run and pass ids (for tests).
func WithIDGenerator(g resolve.PassIDGenerator) Option {
	return func(p *Pipeline) { p.idGen = g }
}

// WithOpener replaces how sources are opened (for tests).
func WithOpener(o Opener) Option {
	return func(p *Pipeline) { p.open = o }
}

// Pipeline is a configured, ready-to-run merge.
type Pipeline struct {
	cfg    *config.Config
	schema *schema.Schema
	logger *slog.Logger
	idGen  resolve.PassIDGenerator
	open   Opener
}

// SourceStats is the resolution summary of one source.
type SourceStats struct {
	Name   string `json:"name"`
	PassID string `json:"pass_id"`
	resolve.Stats
}

// Summary describes a finished run.
type Summary struct {
	RunID   string        `json:"run_id"`
	Sources []SourceStats `json:"sources"`
	Merge   merge.Stats   `json:"merge"`
	Sorted  bool          `json:"sorted"`
}

// New loads the schema named by cfg and returns a Pipeline.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	s, err := schema.LoadFile(cfg.Schema)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	return NewWithSchema(cfg, s, opts...), nil
}

// NewWithSchema returns a Pipeline using an already compiled schema.
func NewWithSchema(cfg *config.Config, s *schema.Schema, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		schema: s,
		logger: slog.Default(),
		idGen:  resolve.UUIDv7Generator{},
		open:   OpenSource,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the pipeline and hands the merged (and, if configured,
// sorted) stream to consume. The stream is valid only during consume.
//
// Run returns consume's error, or the first error opening a source.
// Per-record failures are never returned here; they are elements of the
// stream.
func (p *Pipeline) Run(ctx context.Context, consume func(runID string, results iter.Seq[result.Result[*resolve.Resolved]]) error) (Summary, error) {
	sum := Summary{RunID: p.idGen.Generate(), Sorted: p.cfg.Sort != nil}

	producers := make([]Producer, 0, len(p.cfg.Sources))
	defer func() {
		for i, prod := range producers {
			if err := prod.Close(); err != nil {
				p.logger.Warn("error closing source", "source", p.cfg.Sources[i].Name, "error", err)
			}
		}
	}()
	for _, src := range p.cfg.Sources {
		prod, err := p.open(src, p.logger)
		if err != nil {
			return sum, fmt.Errorf("open source %s: %w", src.Name, err)
		}
		producers = append(producers, prod)
	}

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	passes := make([]*resolve.Pass, len(producers))
	sources := make([]merge.Source, len(producers))
	for i, src := range p.cfg.Sources {
		opts := []resolve.Option{
			resolve.WithSource(src.Name),
			resolve.WithLogger(p.logger),
			resolve.WithIDGenerator(p.idGen),
		}
		if src.TimeField != "" {
			opts = append(opts, resolve.WithTimeField(src.TimeField))
		}
		if src.Entities {
			opts = append(opts, resolve.WithEntities())
		}
		pass := resolve.NewPass(p.schema.Roles, opts...)
		passes[i] = pass

		ch := make(chan result.Result[*resolve.Resolved], p.buffer())
		send := func(r result.Result[*resolve.Resolved]) bool {
			select {
			case ch <- r:
				return true
			case <-gctx.Done():
				return false
			}
		}

		var guardErr error
		var records iter.Seq[ir.Record]
		if src.Guard {
			records = stopOnError(dedup.RecordsGuarded(producers[i].Records(gctx), src.Volatile...), &guardErr)
		} else {
			records = dedup.Records(producers[i].Records(gctx), src.Volatile...)
		}
		g.Go(func() error {
			defer close(ch)
			for r := range pass.Resolve(records) {
				if !send(r) {
					return gctx.Err()
				}
			}
			if guardErr != nil {
				p.logger.Warn("source stopped by guard", "source", src.Name, "error", guardErr)
				if !send(result.Fail[*resolve.Resolved](guardFailure(src.Name, guardErr))) {
					return gctx.Err()
				}
			}
			return nil
		})
		sources[i] = merge.From(src.Name, drain(gctx, ch))
	}

	merger := merge.New(p.key(), merge.WithLogger(p.logger))
	out := merger.Merge(sources...)
	if p.cfg.Sort != nil {
		out = slices.Values(sorter.SortWithErrorsFunc(out, sorter.ByTimestamp(p.cfg.Sort.TimeField), time.Time.Compare))
	}

	consumeErr := consume(sum.RunID, out)

	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && parent.Err() == nil {
		return sum, err
	}
	if consumeErr == nil && parent.Err() != nil {
		// The stream was cut short; do not report a partial run as success.
		consumeErr = parent.Err()
	}

	for i, pass := range passes {
		sum.Sources = append(sum.Sources, SourceStats{
			Name:   p.cfg.Sources[i].Name,
			PassID: pass.ID,
			Stats:  pass.Stats(),
		})
	}
	sum.Merge = merger.Stats()

	p.logger.Debug("run complete",
		"run", sum.RunID,
		"emitted", sum.Merge.Emitted,
		"duplicates", sum.Merge.Duplicates,
		"errors", sum.Merge.Errors,
	)
	return sum, consumeErr
}

func (p *Pipeline) buffer() int {
	if p.cfg.Buffer > 0 {
		return p.cfg.Buffer
	}
	return config.DefaultBuffer
}

// key builds the merge identity from the configured per-kind keys. Kinds
// without a key are only deduplicated within their own source.
func (p *Pipeline) key() merge.KeyFunc[string] {
	keys := make(map[string]merge.KeyFunc[string], len(p.cfg.Merge.Keys))
	for kind, k := range p.cfg.Merge.Keys {
		var opts []merge.KeyOption
		if len(k.Roles) > 0 {
			opts = append(opts, merge.WithRoles(k.Roles...))
		}
		if k.TimeField != "" {
			opts = append(opts, merge.TruncateTime(k.TimeField, k.Precision))
		}
		keys[kind] = merge.ContentKey(k.Fields, opts...)
	}
	return merge.ByKind(keys, nil)
}

// stopOnError drops the error half of a guarded sequence, recording the
// error in failed. The sequence ends there.
func stopOnError(src iter.Seq2[ir.Record, error], failed *error) iter.Seq[ir.Record] {
	return func(yield func(ir.Record) bool) {
		for rec, err := range src {
			if err != nil {
				*failed = err
				return
			}
			if !yield(rec) {
				return
			}
		}
	}
}

func guardFailure(source string, err error) *result.Error {
	var e *result.Error
	if !errors.As(err, &e) {
		e = result.Wrapf(err, result.KindHashability, "row identity check failed")
	}
	if e.Source == "" {
		e.Source = source
	}
	return e
}

// drain turns a producer channel into a sequence. It ends when the channel
// is closed or ctx is cancelled.
func drain[T any](ctx context.Context, ch <-chan T) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			select {
			case v, ok := <-ch:
				if !ok || !yield(v) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}
