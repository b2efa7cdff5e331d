package db

import (
	"context"
	"fmt"
	"time"

	"github.com/abstructionai/crowdwise/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// first unwraps the query result wrapper and returns the first row, or
// nil when the statement matched nothing.
func first[T any](results *[]surrealdb.QueryResult[[]T]) *T {
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil
	}
	return &(*results)[0].Result[0]
}

// rows unwraps the query result wrapper into a plain slice.
func rows[T any](results *[]surrealdb.QueryResult[[]T]) []T {
	if results == nil || len(*results) == 0 {
		return []T{}
	}
	return (*results)[0].Result
}

// ---------------------------------------------------------------------------
// Clusters
// ---------------------------------------------------------------------------

// CreateCluster inserts a new cluster founded by the given query.
func (c *Client) CreateCluster(ctx context.Context, id, name, representativeQuery string, centroid []float32) (*models.Cluster, error) {
	if err := c.checkDimension(centroid); err != nil {
		return nil, err
	}

	results, err := surrealdb.Query[[]models.Cluster](ctx, c.db, `
		CREATE type::record("cluster", $id) SET
			name = $name,
			centroid = $centroid,
			representative_query = $query,
			enhancement = "",
			enhancement_version = 1,
			total_queries = 1,
			success_count = 0,
			success_rate = 0.0,
			version = 1
		RETURN AFTER
	`, map[string]any{
		"id":       id,
		"name":     name,
		"centroid": centroid,
		"query":    representativeQuery,
	})
	if err != nil {
		return nil, fmt.Errorf("create cluster: %w", wrapQueryError(err))
	}

	created := first(results)
	if created == nil {
		return nil, fmt.Errorf("create cluster: no result returned")
	}
	return created, nil
}

// GetCluster retrieves a cluster by ID. Returns ErrNotFound when absent.
func (c *Client) GetCluster(ctx context.Context, id string) (*models.Cluster, error) {
	results, err := surrealdb.Query[[]models.Cluster](ctx, c.db, `
		SELECT * FROM type::record("cluster", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get cluster: %w", err)
	}

	cluster := first(results)
	if cluster == nil {
		return nil, fmt.Errorf("get cluster %s: %w", id, ErrNotFound)
	}
	return cluster, nil
}

// ListClusters returns all clusters with their centroids, for matching.
func (c *Client) ListClusters(ctx context.Context) ([]models.Cluster, error) {
	results, err := surrealdb.Query[[]models.Cluster](ctx, c.db, `
		SELECT * FROM cluster
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	return rows(results), nil
}

// ListClustersByPerformance returns clusters ordered by success rate,
// best first.
func (c *Client) ListClustersByPerformance(ctx context.Context, limit int) ([]models.Cluster, error) {
	results, err := surrealdb.Query[[]models.Cluster](ctx, c.db, `
		SELECT * FROM cluster ORDER BY success_rate DESC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list clusters by performance: %w", err)
	}
	return rows(results), nil
}

// CountClusters returns the number of live clusters.
func (c *Client) CountClusters(ctx context.Context) (int, error) {
	type countRow struct {
		Count int `json:"count"`
	}
	results, err := surrealdb.Query[[]countRow](ctx, c.db, `
		SELECT count() AS count FROM cluster GROUP ALL
	`, nil)
	if err != nil {
		return 0, fmt.Errorf("count clusters: %w", err)
	}
	row := first(results)
	if row == nil {
		return 0, nil
	}
	return row.Count, nil
}

// UpdateClusterCentroid applies one assignment's centroid drift with a
// compare-and-set on the version column. Returns ErrVersionConflict
// when a concurrent writer advanced the version first.
func (c *Client) UpdateClusterCentroid(ctx context.Context, id string, centroid []float32, expectedVersion int) error {
	if err := c.checkDimension(centroid); err != nil {
		return err
	}

	results, err := surrealdb.Query[[]models.Cluster](ctx, c.db, `
		UPDATE type::record("cluster", $id) SET
			centroid = $centroid,
			total_queries += 1,
			version += 1,
			updated_at = time::now()
		WHERE version = $version
		RETURN AFTER
	`, map[string]any{
		"id":       id,
		"centroid": centroid,
		"version":  expectedVersion,
	})
	if err != nil {
		return fmt.Errorf("update centroid: %w", wrapQueryError(err))
	}

	if first(results) == nil {
		return fmt.Errorf("update centroid %s at version %d: %w", id, expectedVersion, ErrVersionConflict)
	}
	return nil
}

// RollupFeedback folds an attributed verdict into the cluster's success
// counters and derived rate.
func (c *Client) RollupFeedback(ctx context.Context, clusterID string, positive bool) error {
	increment := 0
	if positive {
		increment = 1
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("cluster", $id) SET
			success_count += $inc,
			success_rate = success_count / math::max([total_queries, 1]),
			updated_at = time::now()
	`, map[string]any{"id": clusterID, "inc": increment})
	if err != nil {
		return fmt.Errorf("rollup feedback: %w", wrapQueryError(err))
	}
	return nil
}

// SetClusterEnhancement replaces a cluster's enhancement text and
// version, and appends the matching change-log entry, atomically.
func (c *Client) SetClusterEnhancement(ctx context.Context, clusterID, newText string, newVersion int, trigger models.ChangeTrigger, confidence float64) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		BEGIN TRANSACTION;
		LET $cluster = type::record("cluster", $id);
		LET $previous = $cluster.enhancement;
		UPDATE $cluster SET
			enhancement = $text,
			enhancement_version = $new_version,
			updated_at = time::now();
		CREATE enhancement_log SET
			cluster = $cluster,
			previous_text = $previous ?? "",
			new_text = $text,
			trigger = $trigger,
			confidence = $confidence;
		COMMIT TRANSACTION;
	`, map[string]any{
		"id":          clusterID,
		"text":        newText,
		"new_version": newVersion,
		"trigger":     string(trigger),
		"confidence":  confidence,
	})
	if err != nil {
		return fmt.Errorf("set enhancement: %w", wrapQueryError(err))
	}
	return nil
}

// ListRevisedClusters returns clusters whose enhancement has been
// revised past version 1 and that have enough traffic to evaluate,
// most recently updated first.
func (c *Client) ListRevisedClusters(ctx context.Context, minQueries, limit int) ([]models.Cluster, error) {
	results, err := surrealdb.Query[[]models.Cluster](ctx, c.db, `
		SELECT * FROM cluster
		WHERE enhancement_version > 1 AND total_queries > $min
		ORDER BY updated_at DESC
		LIMIT $limit
	`, map[string]any{"min": minQueries, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list revised clusters: %w", err)
	}
	return rows(results), nil
}

// DeleteCluster removes a cluster record. Only the merge pass calls
// this, after reassigning the cluster's members.
func (c *Client) DeleteCluster(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		DELETE type::record("cluster", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete cluster: %w", wrapQueryError(err))
	}
	return nil
}

// MergeClusterCounters folds the absorbed cluster's counters and
// centroid into the surviving cluster.
func (c *Client) MergeClusterCounters(ctx context.Context, survivorID string, centroid []float32, addQueries, addSuccess int) error {
	if err := c.checkDimension(centroid); err != nil {
		return err
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("cluster", $id) SET
			centroid = $centroid,
			total_queries += $queries,
			success_count += $success,
			success_rate = success_count / math::max([total_queries, 1]),
			version += 1,
			updated_at = time::now()
	`, map[string]any{
		"id":       survivorID,
		"centroid": centroid,
		"queries":  addQueries,
		"success":  addSuccess,
	})
	if err != nil {
		return fmt.Errorf("merge cluster counters: %w", wrapQueryError(err))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Assignments
// ---------------------------------------------------------------------------

// CreateAssignment records one processed query.
func (c *Client) CreateAssignment(ctx context.Context, a *models.Assignment) (*models.Assignment, error) {
	if err := c.checkDimension(a.QueryEmbedding); err != nil {
		return nil, err
	}

	results, err := surrealdb.Query[[]models.Assignment](ctx, c.db, `
		CREATE assignment SET
			query_text = $query_text,
			query_embedding = $embedding,
			cluster = $cluster,
			similarity = $similarity,
			session_id = $session_id,
			user_id = $user_id,
			response_text = $response_text,
			processing_time_ms = $processing_time_ms
		RETURN AFTER
	`, map[string]any{
		"query_text":         a.QueryText,
		"embedding":          a.QueryEmbedding,
		"cluster":            a.Cluster,
		"similarity":         a.Similarity,
		"session_id":         a.SessionID,
		"user_id":            a.UserID,
		"response_text":      a.ResponseText,
		"processing_time_ms": a.ProcessingTimeMs,
	})
	if err != nil {
		return nil, fmt.Errorf("create assignment: %w", wrapQueryError(err))
	}

	created := first(results)
	if created == nil {
		return nil, fmt.Errorf("create assignment: no result returned")
	}
	return created, nil
}

// ListUnlabeledAssignments returns a user's assignments with feedback
// still unset, created after the cutoff, most recent first.
func (c *Client) ListUnlabeledAssignments(ctx context.Context, userID string, since time.Time, limit int) ([]models.Assignment, error) {
	results, err := surrealdb.Query[[]models.Assignment](ctx, c.db, `
		SELECT * FROM assignment
		WHERE user_id = $user_id
			AND feedback_positive = NONE
			AND created_at >= type::datetime($since)
		ORDER BY created_at DESC
		LIMIT $limit
	`, map[string]any{
		"user_id": userID,
		"since":   since.UTC().Format(time.RFC3339Nano),
		"limit":   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list unlabeled assignments: %w", err)
	}
	return rows(results), nil
}

// ListUnlabeledSessionAssignments is the anonymous-user variant of
// ListUnlabeledAssignments: candidates are scoped to one session
// instead of one user.
func (c *Client) ListUnlabeledSessionAssignments(ctx context.Context, sessionID string, since time.Time, limit int) ([]models.Assignment, error) {
	results, err := surrealdb.Query[[]models.Assignment](ctx, c.db, `
		SELECT * FROM assignment
		WHERE session_id = $session_id
			AND feedback_positive = NONE
			AND created_at >= type::datetime($since)
		ORDER BY created_at DESC
		LIMIT $limit
	`, map[string]any{
		"session_id": sessionID,
		"since":      since.UTC().Format(time.RFC3339Nano),
		"limit":      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list session assignments: %w", err)
	}
	return rows(results), nil
}

// ClaimAssignmentFeedback labels an assignment with a feedback verdict.
// The claim only succeeds while feedback_positive is still unset, so
// two concurrent attributions cannot label the same assignment.
func (c *Client) ClaimAssignmentFeedback(ctx context.Context, id string, positive bool, score float64) error {
	results, err := surrealdb.Query[[]models.Assignment](ctx, c.db, `
		UPDATE type::record("assignment", $id) SET
			feedback_positive = $positive,
			feedback_score = $score,
			labeled_at = time::now()
		WHERE feedback_positive = NONE
		RETURN AFTER
	`, map[string]any{"id": id, "positive": positive, "score": score})
	if err != nil {
		return fmt.Errorf("claim feedback: %w", wrapQueryError(err))
	}

	if first(results) == nil {
		return fmt.Errorf("claim feedback %s: %w", id, ErrAlreadyLabeled)
	}
	return nil
}

// ListClusterQueries returns recent query texts assigned to a cluster,
// for watchdog sampling.
func (c *Client) ListClusterQueries(ctx context.Context, clusterID string, limit int) ([]string, error) {
	type queryRow struct {
		QueryText string `json:"query_text"`
	}
	results, err := surrealdb.Query[[]queryRow](ctx, c.db, `
		SELECT query_text FROM assignment
		WHERE cluster = type::record("cluster", $id)
		ORDER BY created_at DESC
		LIMIT $limit
	`, map[string]any{"id": clusterID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list cluster queries: %w", err)
	}

	queries := make([]string, 0, limit)
	for _, row := range rows(results) {
		queries = append(queries, row.QueryText)
	}
	return queries, nil
}

// ListAssignmentsMissingEmbedding returns assignments whose embedding
// was never stored, oldest first, for the backfill job.
func (c *Client) ListAssignmentsMissingEmbedding(ctx context.Context, limit int) ([]models.Assignment, error) {
	results, err := surrealdb.Query[[]models.Assignment](ctx, c.db, `
		SELECT * FROM assignment
		WHERE query_embedding = NONE
		ORDER BY created_at ASC
		LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list assignments missing embedding: %w", err)
	}
	return rows(results), nil
}

// UpdateAssignmentEmbedding backfills an assignment's stored embedding.
func (c *Client) UpdateAssignmentEmbedding(ctx context.Context, id string, embedding []float32) error {
	if err := c.checkDimension(embedding); err != nil {
		return err
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("assignment", $id) SET query_embedding = $embedding
	`, map[string]any{"id": id, "embedding": embedding})
	if err != nil {
		return fmt.Errorf("update assignment embedding: %w", wrapQueryError(err))
	}
	return nil
}

// ReassignClusterMembers moves all assignments from one cluster to
// another during a merge.
func (c *Client) ReassignClusterMembers(ctx context.Context, fromID, toID string) (int, error) {
	results, err := surrealdb.Query[[]models.Assignment](ctx, c.db, `
		UPDATE assignment SET cluster = type::record("cluster", $to)
		WHERE cluster = type::record("cluster", $from)
		RETURN AFTER
	`, map[string]any{"from": fromID, "to": toID})
	if err != nil {
		return 0, fmt.Errorf("reassign cluster members: %w", wrapQueryError(err))
	}
	return len(rows(results)), nil
}

// ---------------------------------------------------------------------------
// Enhancement change log
// ---------------------------------------------------------------------------

// PreviousEnhancement returns the enhancement text immediately
// preceding the cluster's current one, from the newest change-log
// entry. Returns ErrNotFound when the cluster has no history.
func (c *Client) PreviousEnhancement(ctx context.Context, clusterID string) (*models.EnhancementChange, error) {
	results, err := surrealdb.Query[[]models.EnhancementChange](ctx, c.db, `
		SELECT * FROM enhancement_log
		WHERE cluster = type::record("cluster", $id)
		ORDER BY created_at DESC
		LIMIT 1
	`, map[string]any{"id": clusterID})
	if err != nil {
		return nil, fmt.Errorf("previous enhancement: %w", err)
	}

	change := first(results)
	if change == nil {
		return nil, fmt.Errorf("previous enhancement for %s: %w", clusterID, ErrNotFound)
	}
	return change, nil
}

// ListEnhancementHistory returns a cluster's change log, newest first.
func (c *Client) ListEnhancementHistory(ctx context.Context, clusterID string, limit int) ([]models.EnhancementChange, error) {
	results, err := surrealdb.Query[[]models.EnhancementChange](ctx, c.db, `
		SELECT * FROM enhancement_log
		WHERE cluster = type::record("cluster", $id)
		ORDER BY created_at DESC
		LIMIT $limit
	`, map[string]any{"id": clusterID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list enhancement history: %w", err)
	}
	return rows(results), nil
}

// ---------------------------------------------------------------------------
// Audit events
// ---------------------------------------------------------------------------

// InsertAuditEvent appends one structured event row.
func (c *Client) InsertAuditEvent(ctx context.Context, component, level, message string, metadata map[string]any, sessionID string, durationMs int64) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE audit_event SET
			component = $component,
			level = $level,
			message = $message,
			metadata = $metadata,
			session_id = $session_id,
			duration_ms = $duration_ms
	`, map[string]any{
		"component":   component,
		"level":       level,
		"message":     message,
		"metadata":    metadata,
		"session_id":  sessionID,
		"duration_ms": durationMs,
	})
	if err != nil {
		return fmt.Errorf("insert audit event: %w", wrapQueryError(err))
	}
	return nil
}
