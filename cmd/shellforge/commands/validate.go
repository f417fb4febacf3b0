package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shellforge/shellforge/pkg/descriptor"
	"github.com/shellforge/shellforge/pkg/lockfile"
	"github.com/shellforge/shellforge/pkg/policy"
)

func newValidateCommand() *cobra.Command {
	var (
		policyPaths []string
		lockPath    string
	)

	cmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a descriptor against its schema and policies",
		Long: `Validate a descriptor against its schema and the governance policies.

This command checks:
  - CUE syntax validity
  - Schema conformance
  - Policy compliance (OPA/rego)`,
		Example: `  # Validate the descriptor in the current directory
  shellforge validate

  # Validate with custom policies
  shellforge validate --policies ./policies ./env.cue`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			ctx := cmd.Context()

			settings, err := LoadSettings(configPath)
			if err != nil {
				return err
			}

			parser, err := descriptor.NewParser()
			if err != nil {
				return err
			}
			desc, err := parser.Parse(ctx, []string{path})
			if err != nil {
				var verrs descriptor.Errors
				if errors.As(err, &verrs) {
					for _, v := range verrs {
						fmt.Fprintf(os.Stderr, "error: %s\n", v.Error())
					}
					return fmt.Errorf("%d validation error(s)", len(verrs))
				}
				return err
			}

			engine, err := policy.NewEngine(log.Logger)
			if err != nil {
				return err
			}

			paths := append(settings.PolicyPaths, policyPaths...)
			if len(paths) > 0 {
				loader := policy.NewLoader(log.Logger)
				custom, err := loader.LoadFromPaths(ctx, paths)
				if err != nil {
					return err
				}
				for _, p := range custom {
					if err := engine.Register(p); err != nil {
						return err
					}
				}
			}

			input := &policy.Input{Descriptor: desc, Locked: lockedInputs(lockPath)}
			result, err := engine.Evaluate(ctx, input)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(result)
			}

			for _, v := range result.Violations {
				fmt.Printf("%s: [%s] %s", v.Severity, v.Policy, v.Message)
				if v.Subject != "" {
					fmt.Printf(" (%s)", v.Subject)
				}
				fmt.Println()
			}

			if !result.Allowed {
				return fmt.Errorf("descriptor rejected by policy")
			}
			fmt.Printf("Descriptor valid: %d input(s), %d platform(s), %d shell(s)\n",
				len(desc.Inputs), len(desc.Platforms), len(desc.Shells))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&policyPaths, "policies", nil, "extra policy files or directories")
	cmd.Flags().StringVar(&lockPath, "lockfile", "", "lockfile path (default: shellforge.lock)")

	return cmd
}

// lockedInputs reads the lockfile, if any, and reports which input
// identifiers it pins. A missing or unreadable lockfile pins nothing.
func lockedInputs(lockPath string) map[string]bool {
	if lockPath == "" {
		lockPath = lockfile.DefaultName
	}
	lf, err := lockfile.Read(lockPath)
	if err != nil {
		return nil
	}

	locked := make(map[string]bool)
	for _, id := range lf.Identifiers() {
		locked[id] = true
	}
	return locked
}
