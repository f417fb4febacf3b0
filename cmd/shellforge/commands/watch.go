package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shellforge/shellforge/pkg/policy"
)

func newWatchCommand() *cobra.Command {
	var lockPath string

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Re-evaluate the descriptor whenever it changes",
		Long: `Watch the descriptor and re-evaluate on every change.

Edits to .cue files under the watched path trigger a fresh evaluation, and
edits to configured .rego policy files reload the governance policies and
re-validate. Evaluation failures are reported and watching continues.

When metrics are enabled in the settings, watch exposes the Prometheus
endpoint for the lifetime of the session.`,
		Example: `  # Watch the current directory
  shellforge watch`,
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

			engine, err := policy.NewEngine(log.Logger)
			if err != nil {
				return err
			}

			runner, err := newRunner(settings, engine)
			if err != nil {
				return err
			}
			defer runner.Close(ctx)

			if settings.Metrics.Enabled {
				if err := runner.metrics.StartMetricsServer(); err != nil {
					return err
				}
				log.Info().
					Str("address", settings.Metrics.ListenAddress).
					Msg("Metrics endpoint listening")
			}

			// Re-evaluations run one at a time from the select loop below;
			// the debounce timer and the policy reloader only signal it.
			reload := make(chan struct{}, 1)
			signalReload := func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			}

			if len(settings.PolicyPaths) > 0 {
				loader := policy.NewLoader(log.Logger)
				custom, err := loader.LoadFromPaths(ctx, settings.PolicyPaths)
				if err != nil {
					return err
				}
				if err := engine.Replace(custom); err != nil {
					return err
				}
				err = loader.Watch(ctx, settings.PolicyPaths, func(policies []policy.Policy) error {
					if err := engine.Replace(policies); err != nil {
						return err
					}
					signalReload()
					return nil
				})
				if err != nil {
					return err
				}
				defer loader.Close()
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()

			watchTarget := path
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				watchTarget = filepath.Dir(path)
			}
			if err := watcher.Add(watchTarget); err != nil {
				return err
			}

			evaluate := func() {
				outputs, err := runner.Evaluate(ctx, path, lockPath)
				if err != nil {
					log.Error().Err(err).Msg("Evaluation failed")
					return
				}
				if err := printOutputs(outputs); err != nil {
					log.Error().Err(err).Msg("Failed to print outputs")
				}
			}

			// Initial evaluation before waiting for changes.
			evaluate()
			log.Info().Str("path", watchTarget).Msg("Watching for descriptor changes")

			return watchLoop(ctx, watcher, reload, signalReload, evaluate)
		},
	}

	cmd.Flags().StringVar(&lockPath, "lockfile", "", "lockfile path (default: shellforge.lock)")

	return cmd
}

// watchLoop drains descriptor events and reload signals. Evaluations run
// only from this goroutine, so a burst of events never overlaps two runs;
// the debounce timer just signals the reload channel.
func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, reload <-chan struct{}, signalReload, evaluate func()) error {
	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case <-reload:
			evaluate()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".cue") {
				continue
			}

			log.Debug().Str("file", event.Name).Msg("Descriptor changed")
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(300*time.Millisecond, signalReload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Watcher error")
		}
	}
}
