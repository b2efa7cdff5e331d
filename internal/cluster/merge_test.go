package cluster

import (
	"context"
	"testing"

	"github.com/abstructionai/crowdwise/internal/models"
)

type fakeMergeStore struct {
	clusters map[string]*models.Cluster
	// members tracks how many assignments each cluster owns so the
	// reassign count can be asserted.
	members map[string]int
	deleted []string
}

func newFakeMergeStore() *fakeMergeStore {
	return &fakeMergeStore{
		clusters: make(map[string]*models.Cluster),
		members:  make(map[string]int),
	}
}

func (f *fakeMergeStore) add(id string, centroid []float32, totalQueries, successCount, members int) {
	f.clusters[id] = &models.Cluster{
		ID:           models.ClusterRef(id),
		Name:         id,
		Centroid:     centroid,
		TotalQueries: totalQueries,
		SuccessCount: successCount,
	}
	f.members[id] = members
}

func (f *fakeMergeStore) ListClusters(_ context.Context) ([]models.Cluster, error) {
	out := make([]models.Cluster, 0, len(f.clusters))
	for _, c := range f.clusters {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeMergeStore) MergeClusterCounters(_ context.Context, survivorID string, centroid []float32, addQueries, addSuccess int) error {
	c := f.clusters[survivorID]
	c.Centroid = centroid
	c.TotalQueries += addQueries
	c.SuccessCount += addSuccess
	return nil
}

func (f *fakeMergeStore) ReassignClusterMembers(_ context.Context, fromID, toID string) (int, error) {
	moved := f.members[fromID]
	f.members[toID] += moved
	f.members[fromID] = 0
	return moved, nil
}

func (f *fakeMergeStore) DeleteCluster(_ context.Context, id string) error {
	delete(f.clusters, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func TestMergePassFoldsNearDuplicates(t *testing.T) {
	store := newFakeMergeStore()
	store.add("big", []float32{1, 0, 0}, 30, 15, 30)
	store.add("dup", []float32{1, 0.01, 0}, 10, 8, 10)
	store.add("other", []float32{0, 1, 0}, 20, 10, 20)

	report, err := MergePass(context.Background(), store, 0.9, nil)
	if err != nil {
		t.Fatalf("MergePass() error = %v", err)
	}

	if report.MergesApplied != 1 {
		t.Fatalf("MergesApplied = %d, want 1", report.MergesApplied)
	}
	if report.MembersMoved != 10 {
		t.Errorf("MembersMoved = %d, want 10", report.MembersMoved)
	}
	if report.ClustersBefore != 3 {
		t.Errorf("ClustersBefore = %d, want 3", report.ClustersBefore)
	}

	if _, gone := store.clusters["dup"]; gone {
		t.Error("duplicate cluster should be deleted")
	}
	if _, ok := store.clusters["other"]; !ok {
		t.Error("dissimilar cluster must survive untouched")
	}

	big := store.clusters["big"]
	if big.TotalQueries != 40 {
		t.Errorf("survivor TotalQueries = %d, want 40", big.TotalQueries)
	}
	if big.SuccessCount != 23 {
		t.Errorf("survivor SuccessCount = %d, want 23", big.SuccessCount)
	}
	if store.members["big"] != 40 {
		t.Errorf("survivor members = %d, want 40", store.members["big"])
	}

	// Weighted mean: (1*30 + 1*10)/40 = 1 in dim 0, (0*30 + 0.01*10)/40
	// = 0.0025 in dim 1.
	if diff := big.Centroid[1] - 0.0025; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("merged centroid[1] = %v, want 0.0025", big.Centroid[1])
	}
}

func TestMergePassBelowThresholdNoOp(t *testing.T) {
	store := newFakeMergeStore()
	store.add("a", []float32{1, 0, 0}, 10, 5, 10)
	store.add("b", []float32{0.7, 0.714142842854285, 0}, 10, 5, 10)

	report, err := MergePass(context.Background(), store, 0.9, nil)
	if err != nil {
		t.Fatalf("MergePass() error = %v", err)
	}
	if report.MergesApplied != 0 {
		t.Errorf("MergesApplied = %d, want 0", report.MergesApplied)
	}
	if len(store.clusters) != 2 {
		t.Errorf("cluster count = %d, want 2", len(store.clusters))
	}
}

func TestMergePassChainsIntoLargest(t *testing.T) {
	// Three near-identical clusters all collapse into the one with the
	// most traffic in a single pass.
	store := newFakeMergeStore()
	store.add("big", []float32{1, 0, 0}, 50, 25, 50)
	store.add("mid", []float32{1, 0.001, 0}, 20, 10, 20)
	store.add("small", []float32{1, 0.002, 0}, 5, 2, 5)

	report, err := MergePass(context.Background(), store, 0.9, nil)
	if err != nil {
		t.Fatalf("MergePass() error = %v", err)
	}
	if report.MergesApplied != 2 {
		t.Fatalf("MergesApplied = %d, want 2", report.MergesApplied)
	}
	if len(store.clusters) != 1 {
		t.Fatalf("cluster count = %d, want 1", len(store.clusters))
	}

	big := store.clusters["big"]
	if big.TotalQueries != 75 {
		t.Errorf("survivor TotalQueries = %d, want 75", big.TotalQueries)
	}
	if store.members["big"] != 75 {
		t.Errorf("survivor members = %d, want 75", store.members["big"])
	}
}
