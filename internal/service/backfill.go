package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abstructionai/crowdwise/internal/llm"
	"github.com/abstructionai/crowdwise/internal/models"
)

const (
	backfillBatchSize = 50
	// backfillPause paces provider calls so a large backlog does not
	// hammer the embedding endpoint.
	backfillPause = 100 * time.Millisecond
)

// BackfillStore is the persistence surface backfill needs.
type BackfillStore interface {
	ListAssignmentsMissingEmbedding(ctx context.Context, limit int) ([]models.Assignment, error)
	UpdateAssignmentEmbedding(ctx context.Context, id string, embedding []float32) error
}

// Embedder produces vectors for assignment query text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BackfillReport summarizes one backfill run.
type BackfillReport struct {
	Scanned int
	Updated int
	Failed  int
}

// BackfillService re-embeds assignments whose stored embedding is
// missing, which happens after an embedding model change wipes vectors
// or when rows were written during a provider outage.
type BackfillService struct {
	store    BackfillStore
	embedder Embedder
	logger   *slog.Logger
	pause    time.Duration
}

// NewBackfillService creates a BackfillService.
func NewBackfillService(store BackfillStore, embedder Embedder, logger *slog.Logger) *BackfillService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackfillService{
		store:    store,
		embedder: embedder,
		logger:   logger.With("component", "backfill"),
		pause:    backfillPause,
	}
}

// Run processes the backlog in batches until it is drained. A single
// row failing is logged and skipped; a fatal provider error aborts the
// run, since every remaining row would fail the same way.
func (s *BackfillService) Run(ctx context.Context) (*BackfillReport, error) {
	report := &BackfillReport{}

	for {
		rows, err := s.store.ListAssignmentsMissingEmbedding(ctx, backfillBatchSize)
		if err != nil {
			return report, fmt.Errorf("list backlog: %w", err)
		}
		if len(rows) == 0 {
			break
		}

		updated := 0
		for i := range rows {
			if err := ctx.Err(); err != nil {
				return report, err
			}

			report.Scanned++
			if err := s.backfillRow(ctx, &rows[i]); err != nil {
				if errors.Is(err, llm.ErrFatalAPI) {
					return report, fmt.Errorf("aborting backfill: %w", err)
				}
				report.Failed++
				s.logger.Warn("row backfill failed, skipping",
					"assignment", rows[i].ID, "error", err)
				continue
			}
			report.Updated++
			updated++

			select {
			case <-time.After(s.pause):
			case <-ctx.Done():
				return report, ctx.Err()
			}
		}

		// Rows that fail stay in the backlog. A batch with no progress
		// would re-list them forever.
		if updated == 0 {
			s.logger.Warn("backfill made no progress, stopping", "failed", report.Failed)
			break
		}
		if len(rows) < backfillBatchSize {
			break
		}
	}

	s.logger.Info("backfill finished",
		"scanned", report.Scanned,
		"updated", report.Updated,
		"failed", report.Failed)

	return report, nil
}

func (s *BackfillService) backfillRow(ctx context.Context, a *models.Assignment) error {
	embedding, err := s.embedder.Embed(ctx, a.QueryText)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	id := models.MustRecordIDString(a.ID)
	if err := s.store.UpdateAssignmentEmbedding(ctx, id, embedding); err != nil {
		return fmt.Errorf("update row: %w", err)
	}
	return nil
}
