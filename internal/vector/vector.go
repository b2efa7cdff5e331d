// Package vector provides the small amount of float math the clustering
// engine needs: cosine similarity and exponential moving averages.
package vector

import (
	"fmt"
	"math"
)

// Cosine computes the cosine similarity dot(a,b)/(|a||b|) between two
// vectors. The result is symmetric and bounded in [-1, 1]. A zero
// vector has no direction, so similarity against it is 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, fmt.Errorf("vectors cannot be empty")
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp float error so callers can rely on the [-1,1] bound.
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return sim, nil
}

// EMA blends an embedding into a centroid with the given rate:
// centroid*(1-alpha) + embedding*alpha, per dimension. Returns a new
// slice; neither input is mutated.
func EMA(centroid, embedding []float32, alpha float32) ([]float32, error) {
	if len(centroid) != len(embedding) {
		return nil, fmt.Errorf("dimension mismatch: %d vs %d", len(centroid), len(embedding))
	}
	out := make([]float32, len(centroid))
	for i := range centroid {
		out[i] = centroid[i]*(1-alpha) + embedding[i]*alpha
	}
	return out, nil
}

// WeightedMean combines two centroids by their member counts. Used by
// the merge pass to fold near-duplicate clusters.
func WeightedMean(a []float32, wa int, b []float32, wb int) ([]float32, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	total := float32(wa + wb)
	if total == 0 {
		return nil, fmt.Errorf("zero total weight")
	}
	out := make([]float32, len(a))
	for i := range a {
		out[i] = (a[i]*float32(wa) + b[i]*float32(wb)) / total
	}
	return out, nil
}
