// Command api runs the EarnHub backend and its maintenance tasks.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "earnhub",
	Short:         "EarnHub wallet and settlement API",
	SilenceUsage:  true,
	SilenceErrors: true,
	// Bare invocation serves, as the container entrypoint expects.
	RunE: runServe,
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

