package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voicekit/agent/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report [csv-path]",
	Short: "Summarize a turn metrics CSV",
	Long: `Read a turn metrics CSV written by the serve command and print
average, min, and max for each latency metric.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
	path := loadConfig().reportCSV
	if len(args) == 1 {
		path = args[0]
	}

	turns, err := report.ReadCSV(path)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		return fmt.Errorf("no turns in %s", path)
	}

	sessions := make(map[string]bool, len(turns))
	for _, t := range turns {
		sessions[t.SessionID] = true
	}

	fmt.Printf("Report: %s\n", path)
	fmt.Printf("Sessions: %d  Turns: %d\n\n", len(sessions), len(turns))
	fmt.Printf("  %-24s  %8s  %8s  %8s  %5s\n", "metric", "avg (s)", "min (s)", "max (s)", "count")

	for _, stat := range report.Summarize(turns) {
		fmt.Printf("  %-24s  %8.3f  %8.3f  %8.3f  %5d\n", stat.Metric, stat.Average, stat.Min, stat.Max, stat.Count)
	}
	return nil
}
