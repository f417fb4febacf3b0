package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/shellforge/shellforge/pkg/eval"
)

func newEvalCommand() *cobra.Command {
	var (
		platformFlag string
		shellFlag    string
		lockPath     string
		noCache      bool
	)

	cmd := &cobra.Command{
		Use:   "eval [path]",
		Short: "Evaluate a descriptor into per-platform shell environments",
		Long: `Evaluate a descriptor into per-platform shell environment
specifications.

The descriptor's inputs are resolved (preferring lockfile pins), overlays are
applied in declaration order, and every declared shell is projected once per
target platform.`,
		Example: `  # Evaluate the descriptor in the current directory
  shellforge eval

  # Evaluate a specific descriptor, JSON output
  shellforge eval --json ./env.cue

  # Single platform and shell
  shellforge eval --platform x86_64-linux --shell default`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			ctx := cmd.Context()
			outputs, err := runEvaluation(ctx, path, lockPath, noCache)
			if err != nil {
				return err
			}

			if platformFlag != "" || shellFlag != "" {
				return printSelectedShell(outputs, platformFlag, shellFlag)
			}
			return printOutputs(outputs)
		},
	}

	cmd.Flags().StringVar(&platformFlag, "platform", "", "restrict output to one platform")
	cmd.Flags().StringVar(&shellFlag, "shell", "", "restrict output to one shell")
	cmd.Flags().StringVar(&lockPath, "lockfile", "", "lockfile path (default: shellforge.lock next to the descriptor)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the resolution cache")

	return cmd
}

// runEvaluation runs the pipeline once with a fresh runner. Watch mode keeps
// one runner alive across re-evaluations instead.
func runEvaluation(ctx context.Context, path, lockPath string, noCache bool) (eval.Outputs, error) {
	settings, err := LoadSettings(configPath)
	if err != nil {
		return nil, err
	}
	if noCache {
		settings.Cache.Enabled = false
	}

	runner, err := newRunner(settings, nil)
	if err != nil {
		return nil, err
	}
	defer runner.Close(ctx)

	return runner.Evaluate(ctx, path, lockPath)
}

// printSelectedShell prints a single (platform, shell) pair. An unsupported
// platform surfaces as a lookup error here, not as an evaluation failure.
func printSelectedShell(outputs eval.Outputs, platform, shell string) error {
	if platform == "" {
		return fmt.Errorf("--shell requires --platform")
	}
	if shell == "" {
		shell = "default"
	}

	spec, err := outputs.Shell(eval.Platform(platform), shell)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(spec)
	}
	printEnvironmentSpec(spec)
	return nil
}

// printOutputs prints the full aggregate in stable platform order.
func printOutputs(outputs eval.Outputs) error {
	if jsonOutput {
		return printJSON(outputs)
	}

	platforms := make([]string, 0, len(outputs))
	for p := range outputs {
		platforms = append(platforms, string(p))
	}
	sort.Strings(platforms)

	for _, p := range platforms {
		shells := outputs[eval.Platform(p)]
		names := make([]string, 0, len(shells))
		for name := range shells {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			fmt.Printf("%s.%s\n", p, name)
			printEnvironmentSpec(shells[name])
			fmt.Println()
		}
	}
	return nil
}

func printEnvironmentSpec(spec eval.EnvironmentSpec) {
	if len(spec.NativeBuildInputs) > 0 {
		fmt.Printf("  nativeBuildInputs: %v\n", spec.NativeBuildInputs)
	}
	if len(spec.BuildInputs) > 0 {
		fmt.Printf("  buildInputs: %v\n", spec.BuildInputs)
	}

	vars := make([]string, 0, len(spec.ExtraVariables))
	for k := range spec.ExtraVariables {
		vars = append(vars, k)
	}
	sort.Strings(vars)
	for _, k := range vars {
		fmt.Printf("  %s=%q\n", k, spec.ExtraVariables[k])
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
