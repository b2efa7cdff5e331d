package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/abstructionai/crowdwise/internal/watchdog"
	"github.com/spf13/cobra"
)

var watchdogCmd = &cobra.Command{
	Use:   "watchdog",
	Short: "Evaluate revised enhancements and roll back regressions",
	Long: `Run one watchdog batch: A/B-compare each recently revised cluster
enhancement against its predecessor over sampled cluster queries, and
roll back any enhancement the judge clearly prefers the old version of.

Meant to be scheduled out-of-band (e.g. nightly). Do not run two
instances concurrently.`,
	RunE: runWatchdog,
}

func runWatchdog(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	_, gen, err := getLLM()
	if err != nil {
		return err
	}

	w := watchdog.New(dbClient, gen, watchdog.Config{
		QualityThreshold:  cfg.QualityThreshold,
		MinSampleSize:     cfg.MinSampleSize,
		ClustersPerRun:    cfg.MaxClustersPerRun,
		QueriesPerCluster: cfg.MaxQuerySamples,
	}, logger)

	report, err := w.Run(ctx)
	if err != nil {
		return fmt.Errorf("watchdog run: %w", err)
	}

	fmt.Println(header("Watchdog batch complete"))
	fmt.Printf("  evaluated: %d\n", report.ClustersEvaluated)
	if report.RollbacksPerformed > 0 {
		fmt.Printf("  %s %d\n", errText("rollbacks:"), report.RollbacksPerformed)
	} else {
		fmt.Printf("  %s\n", success("no regressions found"))
	}
	if report.Skipped > 0 {
		fmt.Printf("  %s %d\n", hint("skipped:"), report.Skipped)
	}
	fmt.Printf("  %s %s\n", hint("duration:"), report.Duration.Round(time.Millisecond))

	return nil
}
