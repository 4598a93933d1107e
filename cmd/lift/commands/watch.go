package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openlift/openlift/pkg/manifest"
)

func newWatchCommand() *cobra.Command {
	var (
		dir           string
		overridesPath string
		prefix        string
		region        string
		outPath       string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-synthesize whenever the manifest changes",
		Long: `Watch the build-output directory and re-run synthesis whenever the
manifest file changes. Rapid successive writes are debounced so one
rebuild covers a burst of file events.`,
		Example: `  # Watch the current directory and write graphs to a file
  lift watch --out graph.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath == "" {
				return fmt.Errorf("watch requires --out: refusing to stream graphs to stdout")
			}
			return watch(cmd.Context(), dir, overridesPath, prefix, region, outPath)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "build-output directory containing the manifest")
	cmd.Flags().StringVar(&overridesPath, "overrides", "", "YAML overrides file path")
	cmd.Flags().StringVar(&prefix, "prefix", "openlift", "physical resource name prefix")
	cmd.Flags().StringVar(&region, "region", "us-east-1", "deployment region")
	cmd.Flags().StringVar(&outPath, "out", "", "file the resolved graph is written to")

	return cmd
}

// watch runs an initial synthesis and then rebuilds on manifest changes
// until the context is cancelled.
func watch(ctx context.Context, dir, overridesPath, prefix, region, outPath string) error {
	resynth := func() {
		if err := synthToFile(ctx, dir, overridesPath, prefix, region, outPath); err != nil {
			log.Error().Err(err).Msg("Synthesis failed")
			return
		}
		log.Info().Str("path", outPath).Msg("Resource graph written")
	}
	resynth()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory rather than the file: editors and build tools
	// replace the manifest instead of writing it in place.
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	log.Info().Str("dir", dir).Msg("Watching for manifest changes")

	var rebuildTimer *time.Timer
	rebuildDelay := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Base(event.Name) != manifest.FileName {
				continue
			}

			log.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Manifest changed")

			if rebuildTimer != nil {
				rebuildTimer.Stop()
			}
			rebuildTimer = time.AfterFunc(rebuildDelay, resynth)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}
