package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
)

// setupLogging installs a text handler on stderr. --verbose lowers the
// level to Debug, which includes per-source pass statistics.
func setupLogging(opts *RootOptions, cmd *cobra.Command) {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}
