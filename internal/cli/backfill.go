package cli

import (
	"context"
	"fmt"

	"github.com/abstructionai/crowdwise/internal/service"
	"github.com/spf13/cobra"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Re-embed assignments with missing embeddings",
	Long: `Scan for assignment rows whose query embedding is missing and
re-embed them with the configured embedding model. Needed after an
embedding model change or a provider outage that left rows without
vectors.`,
	RunE: runBackfill,
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	emb, _, err := getLLM()
	if err != nil {
		return err
	}

	report, err := service.NewBackfillService(dbClient, emb, logger).Run(ctx)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}

	if report.Scanned == 0 {
		fmt.Println(success("No missing embeddings"))
		return nil
	}

	fmt.Println(header("Backfill complete"))
	fmt.Printf("  scanned: %d\n", report.Scanned)
	fmt.Printf("  updated: %d\n", report.Updated)
	if report.Failed > 0 {
		fmt.Printf("  %s %d\n", errText("failed:"), report.Failed)
	}

	return nil
}
