package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ukboards/ukboards/internal/config"
	"github.com/ukboards/ukboards/internal/enrich"
	"github.com/ukboards/ukboards/internal/graph"
	"github.com/ukboards/ukboards/internal/metrics"
	"github.com/ukboards/ukboards/internal/runs"
	"github.com/ukboards/ukboards/internal/storage"
	"github.com/ukboards/ukboards/internal/transport"
	"github.com/ukboards/ukboards/internal/version"
)

var (
	cfgPath  string
	logLevel string

	flagBranches int
	flagArchive  bool
	flagOrdnance bool
	flagOutput   string

	cfg     *config.Config
	tracker *metrics.Tracker
)

var rootCmd = &cobra.Command{
	Use:     "ukboards",
	Short:   "Query UK company and charity board networks",
	Long:    "ukboards crawls the Companies House and Charity Commission registries\ninto bipartite networks of organisations and their board members.",
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		logrus.SetLevel(level)
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})

		cfg, err = config.LoadConfig(cfgPath)
		if err != nil {
			return err
		}
		tracker = metrics.NewTracker()
		return nil
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to JSON config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().IntVarP(&flagBranches, "branches", "b", 0, "number of branch hops from each root")
	rootCmd.PersistentFlags().BoolVar(&flagArchive, "archive", false, "archive the crawled graph in the sqlite database")
	rootCmd.PersistentFlags().BoolVar(&flagOrdnance, "ordnance", false, "annotate nodes with postcodes.io coordinates")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "", "node-link JSON output path (default from config)")
}

// newFetcher builds the shared rate-limited HTTP fetcher.
func newFetcher() (*transport.CollyFetcher, error) {
	return transport.NewCollyFetcher(
		time.Duration(cfg.RequestTimeoutMs)*time.Millisecond,
		time.Duration(cfg.RateLimitMs)*time.Millisecond,
	)
}

// writeOutputs persists the finished graph: node-link JSON with run metadata,
// the optional sqlite archive, ordnance annotation and the metrics file.
func writeOutputs(g *graph.Graph, record *runs.Record, reason string) error {
	if flagOrdnance {
		fetcher, err := newFetcher()
		if err != nil {
			return err
		}
		logrus.Info("Annotating nodes with ordnance survey data...")
		if err := enrich.NewClient(fetcher, "").AnnotateGraph(g); err != nil {
			logrus.Errorf("Ordnance annotation failed: %v", err)
		}
	}

	outputPath := flagOutput
	if outputPath == "" {
		outputPath = cfg.JSONDataPath
	}
	if err := graph.WriteJSON(outputPath, g, record); err != nil {
		return fmt.Errorf("failed to write network JSON: %w", err)
	}
	logrus.Infof("Network written to %s (%d nodes, %d edges)",
		outputPath, g.NumNodes(), g.NumEdges())

	if flagArchive && record == nil {
		logrus.Warn("No run record available, skipping archive")
	}
	if flagArchive && record != nil {
		store, err := storage.NewStorage(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		runID, err := store.ArchiveRun(record, g)
		if err != nil {
			return err
		}
		logrus.Infof("Run archived to %s as run %d", cfg.DBPath, runID)
	}

	logrus.Info("Final stats: " + tracker.LogProgress())
	if err := tracker.WriteToFile(cfg.MetricsPath, reason); err != nil {
		logrus.Errorf("Failed to write metrics: %v", err)
	} else {
		logrus.Infof("Metrics written to %s", cfg.MetricsPath)
	}
	return nil
}
