package cli

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/exportgraph/internal/config"
	"github.com/roach88/exportgraph/internal/ir"
	"github.com/roach88/exportgraph/internal/pipeline"
	"github.com/roach88/exportgraph/internal/resolve"
	"github.com/roach88/exportgraph/internal/result"
	"github.com/roach88/exportgraph/internal/store"
)

// MergeOptions holds flags for the merge command.
type MergeOptions struct {
	*RootOptions
	Config    string
	Out       string
	SortField string
	Strict    bool

	// IDGenerator overrides run and pass ids (for tests).
	IDGenerator resolve.PassIDGenerator
}

// MergeReport is the JSON payload of a merge run.
type MergeReport struct {
	Results []ResultView     `json:"results"`
	Summary pipeline.Summary `json:"summary"`
	Stored  *store.RunStats  `json:"stored,omitempty"`
}

// NewMergeCommand creates the merge command.
func NewMergeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MergeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Resolve and merge the configured exports",
		Long: `Resolve every configured export and merge them in priority order.

Results are printed one per line (text) or as a single JSON document.
Rows that could not be read or resolved are printed as errors in place.
With --out the run is also stored in a SQLite database.`,
		Example: `  exportgraph merge --config exports.yaml
  exportgraph merge --config exports.yaml --sort ts --out merged.db
  exportgraph merge --config exports.yaml --strict --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to the exports config (required)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "store the run in this SQLite database")
	cmd.Flags().StringVar(&opts.SortField, "sort", "", "sort the merged stream by this time field")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "exit with status 1 if the stream contains errors")
	cmd.MarkFlagRequired("config")

	return cmd
}

func runMerge(cmd *cobra.Command, opts *MergeOptions) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	raw, err := os.ReadFile(opts.Config)
	if err != nil {
		formatter.Error(ErrCodeConfig, fmt.Sprintf("cannot read config: %v", err), nil)
		return WrapExitError(ExitCommandError, "cannot read config", err)
	}
	cfg, err := config.Load(opts.Config)
	if err != nil {
		formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	if opts.SortField != "" {
		cfg.Sort = &config.Sort{TimeField: opts.SortField}
	}

	pipeOpts := []pipeline.Option{pipeline.WithLogger(slog.Default())}
	if opts.IDGenerator != nil {
		pipeOpts = append(pipeOpts, pipeline.WithIDGenerator(opts.IDGenerator))
	}
	p, err := pipeline.New(cfg, pipeOpts...)
	if err != nil {
		formatter.Error(ErrCodeSchema, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid schema", err)
	}

	var st *store.Store
	if opts.Out != "" {
		slog.Debug("opening output database", "path", opts.Out)
		st, err = store.Open(opts.Out)
		if err != nil {
			formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "cannot open output database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	report := MergeReport{Results: []ResultView{}}
	emit := func(v ResultView) {
		if opts.Format == "json" {
			report.Results = append(report.Results, v)
			return
		}
		fmt.Fprintln(formatter.Writer, v.Text())
	}

	var storeErr error
	sum, err := p.Run(ctx, func(runID string, results iter.Seq[result.Result[*resolve.Resolved]]) error {
		printed := func(yield func(result.Result[*resolve.Resolved]) bool) {
			for r := range results {
				emit(newResultView(r))
				if !yield(r) {
					return
				}
			}
		}
		if st == nil {
			for range printed {
			}
			return nil
		}
		stats, err := st.WriteRun(ctx, runID, ir.ConfigKey(raw), printed)
		if err != nil {
			storeErr = err
			return err
		}
		report.Stored = &stats
		return nil
	})
	report.Summary = sum

	switch {
	case err == nil:
	case storeErr != nil:
		formatter.ErrorRun(sum.RunID, ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "cannot store run", err)
	case errors.Is(err, context.Canceled):
		formatter.ErrorRun(sum.RunID, ErrCodeGeneric, "merge interrupted", nil)
		return WrapExitError(ExitFailure, "merge interrupted", err)
	default:
		formatter.ErrorRun(sum.RunID, ErrCodeSource, err.Error(), nil)
		return WrapExitError(ExitCommandError, "merge failed", err)
	}

	if opts.Format == "json" {
		if err := formatter.SuccessRun(sum.RunID, report); err != nil {
			return err
		}
	} else {
		printSummary(formatter, sum, report.Stored, opts.Out)
	}

	if opts.Strict && sum.Merge.Errors > 0 {
		msg := fmt.Sprintf("%d errors in merged stream", sum.Merge.Errors)
		if opts.Format != "json" {
			fmt.Fprintf(formatter.GetErrWriter(), "Error [%s]: %s\n", ErrCodeStrict, msg)
		}
		return NewExitError(ExitFailure, msg)
	}
	return nil
}

func printSummary(f *OutputFormatter, sum pipeline.Summary, stored *store.RunStats, out string) {
	w := f.GetErrWriter()
	fmt.Fprintf(w, "\nRun %s: %d merged, %d duplicates, %d errors\n",
		sum.RunID, sum.Merge.Emitted, sum.Merge.Duplicates, sum.Merge.Errors)
	for _, s := range sum.Sources {
		f.VerboseLog("  %s: %d entities, %d links, %d resolved, %d missing, %d passed",
			s.Name, s.Entities, s.Links, s.Resolved, s.Missing, s.Passed)
	}
	if stored != nil {
		fmt.Fprintf(w, "Stored %d results and %d errors in %s\n", stored.Emitted, stored.Errors, out)
	}
}
