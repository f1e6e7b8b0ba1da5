package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/exportgraph/internal/ir"
	"github.com/roach88/exportgraph/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Database string
	Run      string
}

// RowView is the printable form of one stored result.
type RowView struct {
	Seq       int64       `json:"seq"`
	Type      string      `json:"type"`
	Kind      string      `json:"kind"`
	ID        string      `json:"id,omitempty"`
	Fields    ir.IRObject `json:"fields,omitempty"`
	Refs      ir.IRObject `json:"refs,omitempty"`
	Error     string      `json:"error,omitempty"`
	Source    string      `json:"source,omitempty"`
	ErrorTime string      `json:"error_time,omitempty"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs or print one",
		Long: `List the merge runs stored in a database written by merge --out.
With --run, print that run's results in emission order.`,
		Example: `  exportgraph runs --db merged.db
  exportgraph runs --db merged.db --run 0192f...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the SQLite database (required)")
	cmd.Flags().StringVar(&opts.Run, "run", "", "print the results of this run")
	cmd.MarkFlagRequired("db")

	return cmd
}

func runRuns(cmd *cobra.Command, opts *RunsOptions) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "cannot open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if opts.Run != "" {
		rows, err := st.ReadRun(ctx, opts.Run)
		if err != nil {
			formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "cannot read run", err)
		}
		if len(rows) == 0 {
			msg := fmt.Sprintf("run %q not found", opts.Run)
			formatter.Error(ErrCodeStore, msg, nil)
			return NewExitError(ExitCommandError, msg)
		}
		return printRows(formatter, opts.Run, rows)
	}

	runs, err := st.Runs(ctx)
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "cannot list runs", err)
	}
	if opts.Format == "json" {
		return formatter.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs stored.")
		return nil
	}
	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tEMITTED\tERRORS\tCONFIG")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.12s\n", r.ID, r.Emitted, r.Errors, r.ConfigHash)
	}
	return tw.Flush()
}

func printRows(f *OutputFormatter, runID string, rows []store.Row) error {
	views := make([]RowView, 0, len(rows))
	for _, r := range rows {
		v := RowView{
			Seq:    r.Seq,
			Type:   r.Type,
			Kind:   r.Kind,
			ID:     r.ID,
			Fields: r.Fields,
			Refs:   r.Refs,
			Error:  r.Error,
			Source: r.Source,
		}
		if r.IsError() {
			v.Kind = r.ErrorKind
		}
		if !r.ErrorTime.IsZero() {
			v.ErrorTime = r.ErrorTime.UTC().Format(time.RFC3339Nano)
		}
		views = append(views, v)
	}

	if f.Format == "json" {
		return f.SuccessRun(runID, views)
	}
	for _, v := range views {
		if v.Type == "error" {
			fmt.Fprintf(f.Writer, "%d error %s %s\n", v.Seq, v.Kind, v.Error)
			continue
		}
		fields, err := ir.MarshalCanonical(v.Fields)
		if err != nil {
			return err
		}
		refs, err := ir.MarshalCanonical(v.Refs)
		if err != nil {
			return err
		}
		fmt.Fprintf(f.Writer, "%d %s %s %s %s %s\n", v.Seq, v.Type, v.Kind, v.ID, refs, fields)
	}
	return nil
}
