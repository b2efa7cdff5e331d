package cli

import (
	"context"
	"fmt"

	"github.com/abstructionai/crowdwise/internal/models"
	"github.com/spf13/cobra"
)

var (
	clustersTop     int
	clustersHistory string
)

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "List query clusters",
	Long: `List clusters and their learned enhancements.

Examples:
  crowdwise clusters
  crowdwise clusters --top 10
  crowdwise clusters --history a1b2c3d4`,
	RunE: runClusters,
}

func init() {
	clustersCmd.Flags().IntVar(&clustersTop, "top", 0, "show only the N best-performing clusters")
	clustersCmd.Flags().StringVar(&clustersHistory, "history", "", "show the enhancement history of one cluster")
}

func runClusters(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if clustersHistory != "" {
		return printHistory(ctx, clustersHistory)
	}

	var (
		clusters []models.Cluster
		err      error
	)
	if clustersTop > 0 {
		clusters, err = dbClient.ListClustersByPerformance(ctx, clustersTop)
	} else {
		clusters, err = dbClient.ListClusters(ctx)
	}
	if err != nil {
		return fmt.Errorf("list clusters: %w", err)
	}

	if len(clusters) == 0 {
		fmt.Println(hint("No clusters yet"))
		return nil
	}

	for _, c := range clusters {
		id, err := models.RecordIDString(c.ID)
		if err != nil {
			id = fmt.Sprintf("%v", c.ID.ID)
		}

		fmt.Printf("%s %s\n", header(c.Name), hint("("+id+")"))
		fmt.Printf("  queries: %d  success: %.0f%%  enhancement v%d\n",
			c.TotalQueries, c.SuccessRate*100, c.EnhancementVersion)
		fmt.Printf("  %s %q\n", hint("seed:"), c.RepresentativeQuery)
		if c.HasEnhancement() {
			fmt.Printf("  %s %s\n", hint("enhancement:"), c.Enhancement)
		}
		fmt.Println()
	}

	return nil
}

func printHistory(ctx context.Context, clusterID string) error {
	changes, err := dbClient.ListEnhancementHistory(ctx, clusterID, 20)
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}

	if len(changes) == 0 {
		fmt.Println(hint("No enhancement changes recorded"))
		return nil
	}

	fmt.Println(header("Enhancement history for " + clusterID))
	for _, ch := range changes {
		label := string(ch.Trigger)
		if ch.Trigger == models.TriggerRollback {
			label = errText(label)
		}
		fmt.Printf("%s  [%s]  confidence %.2f\n",
			ch.CreatedAt.Format("2006-01-02 15:04"), label, ch.Confidence)
		fmt.Printf("  %s %q\n", hint("from:"), ch.PreviousText)
		fmt.Printf("  %s %q\n", hint("to:"), ch.NewText)
	}

	return nil
}
