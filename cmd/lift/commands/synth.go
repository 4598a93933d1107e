package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openlift/openlift/pkg/manifest"
	"github.com/openlift/openlift/pkg/provision"
	"github.com/openlift/openlift/pkg/stores"
	"github.com/openlift/openlift/pkg/telemetry"
	"github.com/openlift/openlift/pkg/topology"
)

func newSynthCommand() *cobra.Command {
	var (
		dir           string
		overridesPath string
		prefix        string
		region        string
		outPath       string
		dbPath        string
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Compile the build manifest into a resource graph",
		Long: `Compile the application's build manifest into a fully-wired resource
graph and emit it as JSON.

The manifest is read from the build-output directory, validated, and
normalized. Caller overrides are layered on top, routing rules are
synthesized, and every resource receives its environment variables and
permission grants. Deferred values are resolved before the graph is
serialized.`,
		Example: `  # Synthesize from the current directory
  lift synth

  # Synthesize with overrides and write the graph to a file
  lift synth --dir ./app --overrides lift.yaml --out graph.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			graph, err := synthesize(cmd.Context(), dir, overridesPath, prefix, region)
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(graph, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode resource graph: %w", err)
			}

			if dbPath != "" {
				if err := recordDeployment(cmd.Context(), dbPath, graph); err != nil {
					log.Warn().Err(err).Msg("Failed to record deployment")
				}
			}

			if outPath != "" {
				if err := os.WriteFile(outPath, data, 0o644); err != nil {
					return fmt.Errorf("failed to write resource graph: %w", err)
				}
				log.Info().Str("path", outPath).Msg("Resource graph written")
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "build-output directory containing the manifest")
	cmd.Flags().StringVar(&overridesPath, "overrides", "", "YAML overrides file path")
	cmd.Flags().StringVar(&prefix, "prefix", "openlift", "physical resource name prefix")
	cmd.Flags().StringVar(&region, "region", "us-east-1", "deployment region")
	cmd.Flags().StringVar(&outPath, "out", "", "write the graph to a file instead of stdout")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite path for deployment records")

	return cmd
}

// synthesize runs the full pipeline: read, validate, build, resolve.
func synthesize(ctx context.Context, dir, overridesPath, prefix, region string) (*topology.ResourceGraph, error) {
	cfg := telemetry.DefaultConfig()
	tracer, err := telemetry.NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}
	defer tracer.Shutdown(ctx)

	metrics, err := telemetry.NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.StartSpan(ctx, "topology.synthesize",
		telemetry.AttrManifestPath.String(dir))
	defer span.End()

	graph, err := runPipeline(ctx, dir, overridesPath, prefix, region, metrics)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.RecordSuccess(span)
	return graph, nil
}

func runPipeline(ctx context.Context, dir, overridesPath, prefix, region string, metrics *telemetry.Metrics) (*topology.ResourceGraph, error) {
	reader := manifest.NewReader()
	m, err := reader.Read(dir)
	if err != nil {
		return nil, err
	}

	overrides, err := topology.LoadOverrides(overridesPath)
	if err != nil {
		return nil, err
	}

	provisioner := provision.NewNamer(prefix, region, log.Logger)
	builder := topology.NewBuilder(m, overrides, provisioner, topology.BuilderOptions{
		Logger:  &log.Logger,
		Metrics: metrics,
	})

	graph, err := builder.Build(ctx)
	if err != nil {
		return nil, err
	}
	if err := graph.Resolve(); err != nil {
		return nil, err
	}
	return graph, nil
}

// synthToFile runs the pipeline and writes the resolved graph to a file.
func synthToFile(ctx context.Context, dir, overridesPath, prefix, region, outPath string) error {
	graph, err := synthesize(ctx, dir, overridesPath, prefix, region)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(graph, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode resource graph: %w", err)
	}
	return os.WriteFile(outPath, data, 0o644)
}

// recordDeployment persists the build's record to the deployment store.
func recordDeployment(ctx context.Context, dbPath string, graph *topology.ResourceGraph) error {
	store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	outputs, err := json.Marshal(graph.Outputs)
	if err != nil {
		return err
	}
	warnings := ""
	if len(graph.Warnings) > 0 {
		data, err := json.Marshal(graph.Warnings)
		if err != nil {
			return err
		}
		warnings = string(data)
	}

	now := time.Now().UTC()
	return store.CreateDeployment(ctx, &stores.Deployment{
		BuildID:         graph.BuildID,
		ManifestVersion: graph.ManifestVersion,
		Status:          stores.DeploymentStatusSynthesized,
		NodeCount:       len(graph.Nodes),
		Outputs:         string(outputs),
		Warnings:        warnings,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}
