package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openlift/openlift/pkg/stores"
)

func newDeploymentsCommand() *cobra.Command {
	var (
		dbPath string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "deployments",
		Short: "List recorded deployments",
		Long: `List deployment records persisted by synth invocations, newest
first.`,
		Example: `  # List the last 20 deployments
  lift deployments --db lift.db

  # Emit records as JSON
  lift deployments --db lift.db --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
			if err != nil {
				return err
			}
			if err := store.Init(cmd.Context()); err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}

			deployments, err := store.ListDeployments(cmd.Context(), limit, 0)
			if err != nil {
				return err
			}

			if jsonOutput {
				data, err := json.MarshalIndent(deployments, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			if len(deployments) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No deployments recorded")
				return nil
			}
			for _, d := range deployments {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-12s  nodes=%-3d  %s\n",
					d.CreatedAt.Format("2006-01-02 15:04:05"), d.Status, d.NodeCount, d.BuildID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "lift.db", "SQLite path for deployment records")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of records to list")

	return cmd
}
