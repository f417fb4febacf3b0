package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shellforge/shellforge/pkg/descriptor"
	"github.com/shellforge/shellforge/pkg/lockfile"
)

func newLockCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "lock [path]",
		Short: "Pin the descriptor's inputs into a lockfile",
		Long: `Pin the descriptor's inputs into a lockfile.

Inputs that already declare a revision keep it; unpinned inputs are pinned
through the resolver. Re-locking an unchanged descriptor writes a
byte-identical file.`,
		Example: `  # Write shellforge.lock next to the descriptor
  shellforge lock

  # Custom lockfile location
  shellforge lock --output pins.lock ./env.cue`,
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
				return err
			}

			res, cleanup, err := buildResolver(ctx, settings, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			star := descriptor.NewStarlarkOverlays(settings.OverlayTimeout.Std())
			evaluation, err := desc.ToEvaluation(star, res.OverlayForInput)
			if err != nil {
				return err
			}

			lf, err := lockfile.Lock(ctx, evaluation.Registry, res)
			if err != nil {
				return err
			}

			if err := lf.Write(output); err != nil {
				return err
			}

			log.Info().
				Str("lockfile", output).
				Int("inputs", len(lf.Nodes)).
				Msg("Lockfile written")
			fmt.Printf("Locked %d input(s) to %s\n", len(lf.Nodes), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", lockfile.DefaultName, "lockfile path")

	return cmd
}
