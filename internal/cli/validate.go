package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/exportgraph/internal/config"
	"github.com/roach88/exportgraph/internal/schema"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Config string
}

// ValidationReport is the JSON payload of a successful validate.
type ValidationReport struct {
	Sources   []string `json:"sources"`
	Entities  []string `json:"entities"`
	LinkKinds []string `json:"link_kinds"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an exports config and its schema",
		Long: `Validate the exports config and compile the schema it names,
without opening any export.`,
		Example: `  exportgraph validate --config exports.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to the exports config (required)")
	cmd.MarkFlagRequired("config")

	return cmd
}

func runValidate(cmd *cobra.Command, opts *ValidateOptions) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	formatter.VerboseLog("config %s: %d sources", opts.Config, len(cfg.Sources))

	s, err := schema.LoadFile(cfg.Schema)
	if err != nil {
		var details any
		var ce *schema.CompileError
		if errors.As(err, &ce) {
			details = map[string]string{"field": ce.Field, "position": ce.Pos.String()}
		}
		formatter.Error(ErrCodeSchema, err.Error(), details)
		return WrapExitError(ExitCommandError, "invalid schema", err)
	}

	report := ValidationReport{
		Entities:  s.Entities,
		LinkKinds: s.Roles.LinkKinds(),
	}
	for _, src := range cfg.Sources {
		report.Sources = append(report.Sources, src.Name)
	}

	if opts.Format == "json" {
		return formatter.Success(report)
	}
	fmt.Fprintf(formatter.Writer, "✓ %s is valid: %d sources, %d entity kinds, %d link kinds\n",
		opts.Config, len(report.Sources), len(report.Entities), len(report.LinkKinds))
	return nil
}
