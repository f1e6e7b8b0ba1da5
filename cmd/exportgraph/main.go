// Command exportgraph resolves and merges personal data exports.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/exportgraph/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			// Flag and usage errors have not been reported yet.
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
