package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	satviz "github.com/milos-agathon/visualize-google-satellite-embeddings"
	"github.com/milos-agathon/visualize-google-satellite-embeddings/internal/config"
	"github.com/milos-agathon/visualize-google-satellite-embeddings/internal/utils"
	"github.com/milos-agathon/visualize-google-satellite-embeddings/pkg/earthengine"
	"github.com/milos-agathon/visualize-google-satellite-embeddings/pkg/gcs"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "satviz",
		Short: "Visualize Google's annual satellite embeddings",
		Long: `satviz clusters and compares Google's annual satellite embedding
dataset for a configured region. Heavy computation runs on Earth
Engine; exports land in Cloud Storage and are fetched for plotting.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "config file (default: "+config.GetConfigPath()+")")

	rootCmd.AddCommand(
		previewCmd(),
		mapCmd(),
		clusterCmd(),
		exportEmbeddingsCmd(),
		statusCmd(),
		fetchCmd(),
		renderCmd(),
		changeCmd(),
		initCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func previewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview",
		Short: "Render a styled preview of the embedding mosaic",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pipeline, cleanup, err := newPipeline(cmd, true, false)
			if err != nil {
				return err
			}
			defer cleanup()

			path, err := pipeline.Preview(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Preview saved to %s\n", path)
			return nil
		},
	}
}

func mapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Write an interactive Leaflet map of the embedding tiles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			withClusters, _ := cmd.Flags().GetBool("clusters")

			pipeline, cleanup, err := newPipeline(cmd, true, false)
			if err != nil {
				return err
			}
			defer cleanup()

			path, err := pipeline.WriteMap(cmd.Context(), withClusters)
			if err != nil {
				return err
			}
			fmt.Printf("Map saved to %s\n", path)
			return nil
		},
	}
	cmd.Flags().Bool("clusters", false, "include the clustered layer")
	return cmd
}

func clusterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cluster",
		Short: "Sample embeddings, train k-means and start the raster export",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pipeline, cleanup, err := newPipeline(cmd, true, false)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := pipeline.Cluster(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Sampled %d training pixels\n", result.Samples)
			fmt.Printf("Tiles: %s\n", result.TileURL)
			fmt.Printf("Export started: %s\n", result.Operation)
			fmt.Printf("Object prefix: %s\n", result.Object)
			fmt.Println("Check progress with `satviz status`, then download with `satviz fetch clusters`.")
			return nil
		},
	}
}

func exportEmbeddingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export-embeddings",
		Short: "Start the two-epoch embedding raster export for the change map",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pipeline, cleanup, err := newPipeline(cmd, true, false)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := pipeline.ExportEmbeddings(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Export started: %s\n", result.Operation)
			fmt.Printf("Object prefix: %s\n", result.Object)
			fmt.Println("Check progress with `satviz status`, then download with `satviz fetch embeddings`.")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [operation]",
		Short: "Show export operations, or one operation by name or id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, cleanup, err := newPipeline(cmd, true, false)
			if err != nil {
				return err
			}
			defer cleanup()

			if len(args) == 1 {
				op, err := pipeline.Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printOperation(*op)
				return nil
			}

			ops, err := pipeline.Tasks(cmd.Context())
			if err != nil {
				return err
			}
			if len(ops) == 0 {
				fmt.Println("No export operations.")
				return nil
			}
			for _, op := range ops {
				printOperation(op)
			}
			return nil
		},
	}
}

func printOperation(op earthengine.Operation) {
	state := op.Metadata.State
	if state == "" && op.Done {
		state = "DONE"
	}
	fmt.Printf("%-24s %-12s %s\n", op.ID(), state, op.Metadata.Description)
	if op.Error != nil {
		fmt.Printf("%-24s %-12s %s\n", "", "error:", op.Error.Message)
	}
}

func fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "fetch {clusters|embeddings}",
		Short:     "Download a finished raster export from Cloud Storage",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"clusters", "embeddings"},
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, cleanup, err := newPipeline(cmd, false, true)
			if err != nil {
				return err
			}
			defer cleanup()

			var path string
			switch args[0] {
			case "clusters":
				path, err = pipeline.FetchClusters(cmd.Context())
			case "embeddings":
				path, err = pipeline.FetchEmbeddings(cmd.Context())
			default:
				return fmt.Errorf("unknown export %q (use clusters or embeddings)", args[0])
			}
			if err != nil {
				return err
			}

			fmt.Printf("Downloaded %s", path)
			if info, statErr := os.Stat(path); statErr == nil {
				fmt.Printf(" (%s)", utils.FormatFileSize(info.Size()))
			}
			fmt.Println()
			return nil
		},
	}
}

func renderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "render [raster]",
		Short: "Plot a downloaded cluster raster",
		Long: `Plot a downloaded cluster raster. Without an argument the newest
raster in the data directory is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, cleanup, err := newPipeline(cmd, false, false)
			if err != nil {
				return err
			}
			defer cleanup()

			path, err := pipeline.RenderClusters(rasterArg(args))
			if err != nil {
				return err
			}
			fmt.Printf("Plot saved to %s\n", path)
			return nil
		},
	}
}

func changeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "change [raster]",
		Short: "Plot per-pixel similarity between the two configured epochs",
		Long: `Plot per-pixel cosine similarity between the baseline and target
year from a downloaded two-epoch embedding raster. Without an argument
the newest raster in the data directory is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, cleanup, err := newPipeline(cmd, false, false)
			if err != nil {
				return err
			}
			defer cleanup()

			path, err := pipeline.Change(rasterArg(args))
			if err != nil {
				return err
			}
			fmt.Printf("Plot saved to %s\n", path)
			return nil
		},
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file with the default settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = config.GetConfigPath()
			}
			if utils.FileExists(path) {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.Default().SaveToFile(path); err != nil {
				return err
			}
			fmt.Printf("Config written to %s\n", path)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the satviz version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("satviz %s\n", satviz.Version)
		},
	}
}

func rasterArg(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return ""
}

// newPipeline builds a pipeline with only the remote clients the
// command needs, so local plotting works without any credentials.
func newPipeline(cmd *cobra.Command, needEngine, needStore bool) (*satviz.Pipeline, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg.Log.Level, cfg.Log.Format)
	ctx := cmd.Context()

	var client *earthengine.Client
	if needEngine {
		if cfg.Project.ID == "" {
			return nil, nil, fmt.Errorf("project.id is not set: add it to the config or set SATVIZ_PROJECT")
		}
		client, err = earthengine.NewClient(ctx, cfg.Project.ID, cfg.Project.Credentials)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to earth engine: %w", err)
		}
	}

	var store gcs.ObjectStore
	cleanup := func() {}
	if needStore {
		if cfg.Storage.Bucket == "" {
			return nil, nil, fmt.Errorf("storage.bucket is not set: add it to the config or set SATVIZ_BUCKET")
		}
		provider, err := gcs.New(ctx, cfg.Storage.Bucket, cfg.Project.Credentials)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to cloud storage: %w", err)
		}
		store = provider
		cleanup = func() { provider.Close() }
	}

	pipeline, err := satviz.New(pipelineParams(cfg), client, store, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return pipeline, cleanup, nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		if def := config.GetConfigPath(); utils.FileExists(def) {
			path = def
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func pipelineParams(cfg *config.Config) satviz.Params {
	return satviz.Params{
		Collection:   cfg.Dataset.Collection,
		Region:       cfg.Region,
		Year:         cfg.Dataset.Year,
		BaselineYear: cfg.Dataset.BaselineYear,
		Scale:        cfg.Dataset.Scale,
		SamplePixels: cfg.Sampling.Pixels,
		Seed:         cfg.Sampling.Seed,
		Clusters:     cfg.Sampling.Clusters,
		Bucket:       cfg.Storage.Bucket,
		Prefix:       cfg.Storage.Prefix,
		DataDir:      cfg.Storage.DataDir,
		OutputDir:    cfg.Output.Dir,
		Format:       cfg.Output.Format,
		Quality:      cfg.Output.Quality,
		Width:        cfg.Output.Width,
	}
}

func newLogger(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
	if format == "console" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger
}
