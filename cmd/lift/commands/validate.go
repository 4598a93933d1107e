package commands

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openlift/openlift/pkg/manifest"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [dir]",
		Short: "Validate the build manifest",
		Long: `Validate the application's build manifest without building a graph.

This command checks:
  - Manifest presence and JSON syntax
  - Structural shape (origins mapping, behaviors list)
  - Schema conformance via CUE
  - Presence of the default compute origin`,
		Example: `  # Validate the manifest in the current directory
  lift validate

  # Validate a specific build-output directory
  lift validate ./app/.openlift`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			reader := manifest.NewReader()
			m, err := reader.Read(dir)
			if err != nil {
				return err
			}

			log.Info().
				Str("dir", dir).
				Str("version", m.Version).
				Int("origins", len(m.Origins)).
				Int("behaviors", len(m.Behaviors)).
				Msg("Manifest is valid")

			if jsonOutput {
				summary := map[string]any{
					"valid":     true,
					"version":   m.Version,
					"origins":   len(m.Origins),
					"behaviors": len(m.Behaviors),
					"splitKeys": m.SplitKeys(),
				}
				data, err := json.MarshalIndent(summary, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
			}

			return nil
		},
	}

	return cmd
}
