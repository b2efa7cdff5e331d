package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Assignment records a single processed query and the cluster it was
// routed to. Exactly one assignment exists per processed query.
type Assignment struct {
	ID             surrealmodels.RecordID `json:"id"`
	QueryText      string                 `json:"query_text"`
	QueryEmbedding []float32              `json:"query_embedding,omitempty"`
	Cluster        surrealmodels.RecordID `json:"cluster"`
	// Similarity is the cosine score that caused the assignment,
	// 1.0 when the cluster was created for this query.
	Similarity       float64    `json:"similarity"`
	SessionID        string     `json:"session_id"`
	UserID           *string    `json:"user_id,omitempty"`
	ResponseText     *string    `json:"response_text,omitempty"`
	ProcessingTimeMs int64      `json:"processing_time_ms"`
	FeedbackPositive *bool      `json:"feedback_positive,omitempty"`
	FeedbackScore    *float64   `json:"feedback_score,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	LabeledAt        *time.Time `json:"labeled_at,omitempty"`
}

// Labeled reports whether feedback has already been attributed to this
// assignment. Labeled assignments leave the attribution candidate pool.
func (a *Assignment) Labeled() bool {
	return a.FeedbackPositive != nil
}

// AssignResult is what the clusterer hands back to the caller for a
// successfully routed query.
type AssignResult struct {
	ClusterID    string
	ClusterName  string
	Similarity   float64
	IsNewCluster bool
	Enhancement  string
	AssignmentID string
}
