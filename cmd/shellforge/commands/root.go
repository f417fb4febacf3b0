package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool

	// appVersion is reported in trace resource attributes.
	appVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	appVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shellforge",
		Short: "Shellforge - Reproducible dev-environment evaluator",
		Long: `Shellforge evaluates declarative development-environment descriptors
into per-platform shell environment specifications.

Features:
  - Typed descriptors via CUE
  - Pinned source inputs with a lockfile
  - Ordered overlays, inline Starlark or input-exported
  - Independent projection per target platform
  - Descriptor governance via OPA policies
  - SQLite-backed resolution cache`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newEvalCommand())
	rootCmd.AddCommand(newShowCommand())
	rootCmd.AddCommand(newLockCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}
