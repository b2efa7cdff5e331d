package cli

import (
	"context"
	"fmt"

	"github.com/abstructionai/crowdwise/internal/models"
	"github.com/spf13/cobra"
)

var statsTop int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show learning statistics",
	Long: `Show an overview of the feedback loop: cluster and traffic totals
plus the best-performing enhancements.

Examples:
  crowdwise stats
  crowdwise stats --top 10`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().IntVar(&statsTop, "top", 5, "number of top enhancements to show")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	clusters, err := dbClient.ListClusters(ctx)
	if err != nil {
		return fmt.Errorf("list clusters: %w", err)
	}

	totalQueries := 0
	totalSuccess := 0
	enhanced := 0
	for _, c := range clusters {
		totalQueries += c.TotalQueries
		totalSuccess += c.SuccessCount
		if c.HasEnhancement() {
			enhanced++
		}
	}

	fmt.Println(header("Crowdwise overview"))
	fmt.Printf("  clusters:          %d (%d with enhancements)\n", len(clusters), enhanced)
	fmt.Printf("  queries processed: %d\n", totalQueries)
	if totalQueries > 0 {
		fmt.Printf("  positive feedback: %d (%.0f%%)\n",
			totalSuccess, float64(totalSuccess)/float64(totalQueries)*100)
	}

	if statsTop <= 0 {
		return nil
	}

	top, err := dbClient.ListClustersByPerformance(ctx, statsTop)
	if err != nil {
		return fmt.Errorf("rank clusters: %w", err)
	}
	if len(top) == 0 {
		return nil
	}

	fmt.Println()
	fmt.Println(header("Top enhancements"))
	for i, c := range top {
		id, err := models.RecordIDString(c.ID)
		if err != nil {
			id = fmt.Sprintf("%v", c.ID.ID)
		}
		fmt.Printf("  %d. %s (%s)  success %.0f%% over %d queries\n",
			i+1, c.Name, hint(id), c.SuccessRate*100, c.TotalQueries)
		if c.HasEnhancement() {
			fmt.Printf("     %s\n", hint(c.Enhancement))
		}
	}

	return nil
}
