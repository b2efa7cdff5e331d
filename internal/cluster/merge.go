package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/abstructionai/crowdwise/internal/models"
	"github.com/abstructionai/crowdwise/internal/vector"
)

// MergeStore is the persistence surface the merge pass needs.
type MergeStore interface {
	ListClusters(ctx context.Context) ([]models.Cluster, error)
	MergeClusterCounters(ctx context.Context, survivorID string, centroid []float32, addQueries, addSuccess int) error
	ReassignClusterMembers(ctx context.Context, fromID, toID string) (int, error)
	DeleteCluster(ctx context.Context, id string) error
}

// MergeReport summarizes one merge pass.
type MergeReport struct {
	ClustersBefore int
	MergesApplied  int
	MembersMoved   int
}

// MergePass folds near-duplicate clusters into each other: any pair of
// centroids with cosine similarity at or above the merge threshold is
// collapsed into the cluster with more traffic. Concurrent "no good
// match" queries can create near-duplicates; this offline pass is the
// eventual de-duplication for that race and for growth past the soft
// cluster cap.
func MergePass(ctx context.Context, store MergeStore, mergeThreshold float64, logger *slog.Logger) (*MergeReport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "merge")

	clusters, err := store.ListClusters(ctx)
	if err != nil {
		return nil, fmt.Errorf("load clusters: %w", err)
	}

	report := &MergeReport{ClustersBefore: len(clusters)}

	// Bigger clusters absorb smaller ones, so survivors are stable
	// across repeated runs.
	sort.Slice(clusters, func(i, j int) bool {
		return clusters[i].TotalQueries > clusters[j].TotalQueries
	})

	absorbed := make(map[string]bool)

	for i := range clusters {
		survivorID := models.MustRecordIDString(clusters[i].ID)
		if absorbed[survivorID] {
			continue
		}

		for j := i + 1; j < len(clusters); j++ {
			victimID := models.MustRecordIDString(clusters[j].ID)
			if absorbed[victimID] {
				continue
			}

			sim, err := vector.Cosine(clusters[i].Centroid, clusters[j].Centroid)
			if err != nil {
				logger.Warn("skipping pair with malformed centroid",
					"a", survivorID, "b", victimID, "error", err)
				continue
			}
			if sim < mergeThreshold {
				continue
			}

			moved, err := mergePair(ctx, store, &clusters[i], &clusters[j])
			if err != nil {
				logger.Warn("merge failed, continuing",
					"survivor", survivorID, "victim", victimID, "error", err)
				continue
			}

			absorbed[victimID] = true
			report.MergesApplied++
			report.MembersMoved += moved

			logger.Info("clusters merged",
				"survivor", survivorID, "victim", victimID,
				"similarity", sim, "members_moved", moved)
		}
	}

	return report, nil
}

// mergePair folds victim into survivor: weighted-mean centroid, counter
// sums, member reassignment, then victim removal. The survivor is
// updated in place so later pairs in the same pass see the new shape.
func mergePair(ctx context.Context, store MergeStore, survivor, victim *models.Cluster) (int, error) {
	survivorID := models.MustRecordIDString(survivor.ID)
	victimID := models.MustRecordIDString(victim.ID)

	combined, err := vector.WeightedMean(
		survivor.Centroid, survivor.TotalQueries,
		victim.Centroid, victim.TotalQueries,
	)
	if err != nil {
		return 0, fmt.Errorf("combine centroids: %w", err)
	}

	if err := store.MergeClusterCounters(ctx, survivorID, combined, victim.TotalQueries, victim.SuccessCount); err != nil {
		return 0, err
	}

	moved, err := store.ReassignClusterMembers(ctx, victimID, survivorID)
	if err != nil {
		return 0, err
	}

	if err := store.DeleteCluster(ctx, victimID); err != nil {
		return moved, err
	}

	survivor.Centroid = combined
	survivor.TotalQueries += victim.TotalQueries
	survivor.SuccessCount += victim.SuccessCount

	return moved, nil
}
