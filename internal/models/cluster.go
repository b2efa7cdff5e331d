// Package models defines data structures for the crowdwise learning core.
package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Cluster represents a semantic group of user queries with a shared
// prompt enhancement.
type Cluster struct {
	ID                  surrealmodels.RecordID `json:"id"`
	Name                string                 `json:"name"`
	Centroid            []float32              `json:"centroid"`
	RepresentativeQuery string                 `json:"representative_query"`
	Enhancement         string                 `json:"enhancement"`
	EnhancementVersion  int                    `json:"enhancement_version"`
	TotalQueries        int                    `json:"total_queries"`
	SuccessCount        int                    `json:"success_count"`
	SuccessRate         float64                `json:"success_rate"`
	// Version guards optimistic concurrency on centroid/counter updates.
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasEnhancement reports whether the cluster carries a non-empty
// prompt enhancement.
func (c *Cluster) HasEnhancement() bool {
	return c.Enhancement != ""
}
