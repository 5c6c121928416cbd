package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ukboards/ukboards/internal/graph"
	"github.com/ukboards/ukboards/internal/runs"
	"github.com/ukboards/ukboards/internal/storage"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List archived crawl runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.NewStorage(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		rows, err := store.ListRuns()
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("No archived runs.")
			return nil
		}
		for _, row := range rows {
			fmt.Printf("%d\t%s\t%s\t%s\t%d nodes\t%d edges\n",
				row.RunID, row.Kind, row.RootID,
				row.StartTime.Format(runs.TimeFormat),
				row.NodeCount, row.EdgeCount)
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export RUN_ID",
	Short: "Export an archived run as node-link JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid run id %q: %w", args[0], err)
		}

		store, err := storage.NewStorage(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		g, err := store.LoadGraph(runID)
		if err != nil {
			return err
		}
		outputPath := flagOutput
		if outputPath == "" {
			outputPath = cfg.JSONDataPath
		}
		if err := graph.WriteJSON(outputPath, g, nil); err != nil {
			return fmt.Errorf("failed to write network JSON: %w", err)
		}
		fmt.Printf("Run %d exported to %s\n", runID, outputPath)
		return nil
	},
}

func init() {
	runsCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(runsCmd)
}
