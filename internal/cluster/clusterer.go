// Package cluster implements online semantic clustering of tutoring
// queries: each query is embedded, matched against cluster centroids by
// cosine similarity, and either folded into the best match or made the
// seed of a new cluster.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abstructionai/crowdwise/internal/db"
	"github.com/abstructionai/crowdwise/internal/models"
	"github.com/abstructionai/crowdwise/internal/vector"
	"github.com/google/uuid"
)

// ErrNotAQuery signals that the utterance is feedback, not a question.
// The clusterer takes no action on feedback.
var ErrNotAQuery = errors.New("utterance is feedback, not a query")

// casRetries bounds optimistic centroid updates. Conflicts are re-read
// and re-blended, so losing a race never loses an observation.
const casRetries = 3

// Embedder produces fixed-dimension vectors for query text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the persistence surface the clusterer needs.
type Store interface {
	ListClusters(ctx context.Context) ([]models.Cluster, error)
	CountClusters(ctx context.Context) (int, error)
	CreateCluster(ctx context.Context, id, name, representativeQuery string, centroid []float32) (*models.Cluster, error)
	GetCluster(ctx context.Context, id string) (*models.Cluster, error)
	UpdateClusterCentroid(ctx context.Context, id string, centroid []float32, expectedVersion int) error
	CreateAssignment(ctx context.Context, a *models.Assignment) (*models.Assignment, error)
}

// Config holds the clusterer's tunables.
type Config struct {
	// SimilarityThreshold is the inclusive cosine score at or above
	// which a query joins an existing cluster.
	SimilarityThreshold float64
	// Alpha is the EMA rate for centroid drift.
	Alpha float64
	// MaxClusters is a soft cap; crossing it logs a warning but never
	// evicts. The merge pass bounds duplicate growth instead.
	MaxClusters int
}

// Clusterer assigns queries to semantic clusters and maintains their
// centroids.
type Clusterer struct {
	store    Store
	embedder Embedder
	cfg      Config
	logger   *slog.Logger
}

// New creates a Clusterer.
func New(store Store, embedder Embedder, cfg Config, logger *slog.Logger) *Clusterer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Clusterer{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger.With("component", "clusterer"),
	}
}

// Assign routes a query to a cluster, creating one when nothing matches
// well enough, and records the assignment. Feedback text returns
// ErrNotAQuery without touching any state. Provider and store failures
// abort the whole operation; the assignment row is only written after
// cluster state has been settled, so there are no partial writes.
func (c *Clusterer) Assign(ctx context.Context, queryText, sessionID string, userID *string) (*models.AssignResult, error) {
	if IsFeedback(queryText) {
		return nil, ErrNotAQuery
	}

	start := time.Now()

	embedding, err := c.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	clusters, err := c.store.ListClusters(ctx)
	if err != nil {
		return nil, fmt.Errorf("load clusters: %w", err)
	}

	best, bestSim := c.bestMatch(clusters, embedding)

	var result *models.AssignResult
	if best != nil && bestSim >= c.cfg.SimilarityThreshold {
		result, err = c.joinCluster(ctx, best, embedding, bestSim)
	} else {
		result, err = c.createCluster(ctx, queryText, embedding)
	}
	if err != nil {
		return nil, err
	}

	assignment, err := c.store.CreateAssignment(ctx, &models.Assignment{
		QueryText:        queryText,
		QueryEmbedding:   embedding,
		Cluster:          models.ClusterRef(result.ClusterID),
		Similarity:       result.Similarity,
		SessionID:        sessionID,
		UserID:           userID,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	})
	if err != nil {
		return nil, fmt.Errorf("record assignment: %w", err)
	}
	result.AssignmentID = models.MustRecordIDString(assignment.ID)

	c.logger.Info("query assigned",
		"cluster", result.ClusterID,
		"similarity", result.Similarity,
		"new_cluster", result.IsNewCluster,
		"session", sessionID)

	return result, nil
}

// bestMatch returns the cluster whose centroid is most similar to the
// embedding. Clusters with malformed centroids are skipped, not fatal.
func (c *Clusterer) bestMatch(clusters []models.Cluster, embedding []float32) (*models.Cluster, float64) {
	var best *models.Cluster
	bestSim := -2.0

	for i := range clusters {
		sim, err := vector.Cosine(embedding, clusters[i].Centroid)
		if err != nil {
			c.logger.Warn("skipping cluster with malformed centroid",
				"cluster", clusters[i].ID, "error", err)
			continue
		}
		if sim > bestSim {
			best = &clusters[i]
			bestSim = sim
		}
	}

	return best, bestSim
}

// joinCluster drifts the matched cluster's centroid toward the new
// embedding. Version conflicts are re-read and re-blended.
func (c *Clusterer) joinCluster(ctx context.Context, match *models.Cluster, embedding []float32, similarity float64) (*models.AssignResult, error) {
	id := models.MustRecordIDString(match.ID)
	current := match

	for attempt := 0; ; attempt++ {
		blended, err := vector.EMA(current.Centroid, embedding, float32(c.cfg.Alpha))
		if err != nil {
			return nil, fmt.Errorf("blend centroid: %w", err)
		}

		err = c.store.UpdateClusterCentroid(ctx, id, blended, current.Version)
		if err == nil {
			break
		}
		if !errors.Is(err, db.ErrVersionConflict) || attempt >= casRetries {
			return nil, fmt.Errorf("update cluster: %w", err)
		}

		c.logger.Debug("centroid update conflict, retrying", "cluster", id, "attempt", attempt+1)
		current, err = c.store.GetCluster(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("reload cluster: %w", err)
		}
	}

	return &models.AssignResult{
		ClusterID:    id,
		ClusterName:  match.Name,
		Similarity:   similarity,
		IsNewCluster: false,
		Enhancement:  match.Enhancement,
	}, nil
}

// createCluster seeds a new cluster from the query. The cluster count
// cap is soft: crossing it is logged, never enforced.
func (c *Clusterer) createCluster(ctx context.Context, queryText string, embedding []float32) (*models.AssignResult, error) {
	if c.cfg.MaxClusters > 0 {
		count, err := c.store.CountClusters(ctx)
		if err != nil {
			return nil, fmt.Errorf("count clusters: %w", err)
		}
		if count >= c.cfg.MaxClusters {
			c.logger.Warn("cluster count exceeds soft cap",
				"count", count, "max_clusters", c.cfg.MaxClusters)
		}
	}

	id := uuid.New().String()[:8]
	name := deriveName(queryText)

	created, err := c.store.CreateCluster(ctx, id, name, queryText, embedding)
	if err != nil {
		return nil, fmt.Errorf("create cluster: %w", err)
	}

	c.logger.Info("cluster created", "cluster", id, "name", name)

	return &models.AssignResult{
		ClusterID:    models.MustRecordIDString(created.ID),
		ClusterName:  created.Name,
		Similarity:   1.0,
		IsNewCluster: true,
		Enhancement:  created.Enhancement,
	}, nil
}
