package cli

import (
	"context"
	"fmt"

	"github.com/abstructionai/crowdwise/internal/cluster"
	"github.com/spf13/cobra"
)

var reclusterThreshold float64

var reclusterCmd = &cobra.Command{
	Use:   "recluster",
	Short: "Merge near-duplicate clusters",
	Long: `Fold clusters whose centroids are nearly identical into each other.
Concurrent queries with no good match can each create a cluster for the
same topic; this pass merges them, reassigning members into the cluster
with more traffic.`,
	RunE: runRecluster,
}

func init() {
	reclusterCmd.Flags().Float64Var(&reclusterThreshold, "threshold", 0, "merge similarity threshold (defaults to configured value)")
}

func runRecluster(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	threshold := reclusterThreshold
	if threshold == 0 {
		threshold = cfg.MergeThreshold
	}
	if threshold <= 0 || threshold > 1 {
		return fmt.Errorf("merge threshold must be in (0, 1], got %v", threshold)
	}

	report, err := cluster.MergePass(ctx, dbClient, threshold, logger)
	if err != nil {
		return fmt.Errorf("merge pass: %w", err)
	}

	if report.MergesApplied == 0 {
		fmt.Println(success(fmt.Sprintf("No near-duplicates among %d clusters", report.ClustersBefore)))
		return nil
	}

	fmt.Println(header("Merge pass complete"))
	fmt.Printf("  clusters before: %d\n", report.ClustersBefore)
	fmt.Printf("  merges applied:  %d\n", report.MergesApplied)
	fmt.Printf("  members moved:   %d\n", report.MembersMoved)

	return nil
}
