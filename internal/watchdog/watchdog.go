// Package watchdog guards enhancement quality. A learning update can
// make a cluster's prompt enhancement worse, so a periodic batch run
// A/B-compares each revised enhancement against its predecessor over
// the cluster's own queries and rolls back regressions.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abstructionai/crowdwise/internal/db"
	"github.com/abstructionai/crowdwise/internal/llm"
	"github.com/abstructionai/crowdwise/internal/models"
)

// Store is the persistence surface the watchdog needs.
type Store interface {
	ListRevisedClusters(ctx context.Context, minQueries, limit int) ([]models.Cluster, error)
	PreviousEnhancement(ctx context.Context, clusterID string) (*models.EnhancementChange, error)
	ListClusterQueries(ctx context.Context, clusterID string, limit int) ([]string, error)
	SetClusterEnhancement(ctx context.Context, clusterID, newText string, newVersion int, trigger models.ChangeTrigger, confidence float64) error
}

// Generator produces tutoring responses and pairwise judgements.
type Generator interface {
	GenerateTutoringResponse(ctx context.Context, query, enhancement string) (string, error)
	CompareResponses(ctx context.Context, query, oldResponse, newResponse string) (*llm.ComparisonVerdict, error)
}

// Config holds the watchdog's tunables.
type Config struct {
	// QualityThreshold sets the rollback bar: a cluster is rolled back
	// when the average pairwise score exceeds 1 - QualityThreshold,
	// meaning the old enhancement is clearly preferred.
	QualityThreshold float64
	// MinSampleSize is the traffic floor below which a cluster is not
	// worth evaluating.
	MinSampleSize int
	// ClustersPerRun caps one batch, for provider cost control.
	ClustersPerRun int
	// QueriesPerCluster caps the A/B sample per cluster.
	QueriesPerCluster int
}

// Watchdog evaluates revised enhancements and reverts regressions.
type Watchdog struct {
	store  Store
	gen    Generator
	cfg    Config
	logger *slog.Logger
}

// New creates a Watchdog.
func New(store Store, gen Generator, cfg Config, logger *slog.Logger) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{
		store:  store,
		gen:    gen,
		cfg:    cfg,
		logger: logger.With("component", "watchdog"),
	}
}

// Run executes one batch. It is meant to be scheduled out-of-band and
// must not run concurrently with itself; the caller owns that lease.
// A failure inside one cluster skips that cluster and continues the
// batch.
func (w *Watchdog) Run(ctx context.Context) (*models.WatchdogReport, error) {
	report := &models.WatchdogReport{StartedAt: time.Now()}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	clusters, err := w.store.ListRevisedClusters(ctx, w.cfg.MinSampleSize, w.cfg.ClustersPerRun)
	if err != nil {
		return nil, fmt.Errorf("list revised clusters: %w", err)
	}

	w.logger.Info("watchdog batch started", "clusters", len(clusters))

	for i := range clusters {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		rolledBack, err := w.evaluate(ctx, &clusters[i])
		if err != nil {
			w.logger.Warn("cluster evaluation failed, skipping",
				"cluster", clusters[i].ID, "error", err)
			report.Skipped++
			continue
		}

		report.ClustersEvaluated++
		if rolledBack {
			report.RollbacksPerformed++
		}
	}

	w.logger.Info("watchdog batch finished",
		"evaluated", report.ClustersEvaluated,
		"rollbacks", report.RollbacksPerformed,
		"skipped", report.Skipped,
		"duration", report.Duration)

	return report, nil
}

// evaluate A/B-compares one cluster's current enhancement against its
// predecessor and rolls back when the old one is clearly preferred.
func (w *Watchdog) evaluate(ctx context.Context, cluster *models.Cluster) (bool, error) {
	clusterID := models.MustRecordIDString(cluster.ID)

	change, err := w.store.PreviousEnhancement(ctx, clusterID)
	if errors.Is(err, db.ErrNotFound) {
		// Revised version with no change log entry. Nothing to compare
		// against, so leave it alone.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("previous enhancement: %w", err)
	}

	queries, err := w.store.ListClusterQueries(ctx, clusterID, w.cfg.QueriesPerCluster)
	if err != nil {
		return false, fmt.Errorf("sample queries: %w", err)
	}
	if len(queries) == 0 {
		return false, nil
	}

	avg, err := w.abScore(ctx, queries, change.PreviousText, cluster.Enhancement)
	if err != nil {
		return false, err
	}

	bar := 1 - w.cfg.QualityThreshold
	w.logger.Info("cluster evaluated",
		"cluster", clusterID,
		"samples", len(queries),
		"avg_score", avg,
		"rollback_bar", bar)

	if avg <= bar {
		return false, nil
	}

	err = w.store.SetClusterEnhancement(ctx, clusterID, change.PreviousText, 1, models.TriggerRollback, avg)
	if err != nil {
		return false, fmt.Errorf("rollback: %w", err)
	}

	w.logger.Warn("enhancement rolled back",
		"cluster", clusterID,
		"avg_score", avg,
		"restored_version", 1)

	return true, nil
}

// abScore generates a response pair per sampled query and averages the
// judge's preference scores. Score 1.0 means the old enhancement's
// response is much better. A judge failure counts the sample as a tie
// rather than poisoning the average.
func (w *Watchdog) abScore(ctx context.Context, queries []string, oldEnhancement, newEnhancement string) (float64, error) {
	var total float64

	for _, query := range queries {
		oldResp, err := w.gen.GenerateTutoringResponse(ctx, query, oldEnhancement)
		if err != nil {
			return 0, fmt.Errorf("generate with previous enhancement: %w", err)
		}
		newResp, err := w.gen.GenerateTutoringResponse(ctx, query, newEnhancement)
		if err != nil {
			return 0, fmt.Errorf("generate with current enhancement: %w", err)
		}

		verdict, err := w.gen.CompareResponses(ctx, query, oldResp, newResp)
		if err != nil {
			w.logger.Warn("comparison judge failed, scoring as tie", "error", err)
			total += 0.5
			continue
		}
		total += verdict.Score
	}

	return total / float64(len(queries)), nil
}
