package service

import (
	"context"
	"errors"
	"testing"

	"github.com/abstructionai/crowdwise/internal/cluster"
	"github.com/abstructionai/crowdwise/internal/feedback"
	"github.com/abstructionai/crowdwise/internal/metrics"
	"github.com/abstructionai/crowdwise/internal/models"
)

type fakeClusterer struct {
	result *models.AssignResult
	err    error
}

func (f *fakeClusterer) Assign(_ context.Context, _, _ string, _ *string) (*models.AssignResult, error) {
	return f.result, f.err
}

type fakeClassifier struct {
	verdict *models.FeedbackVerdict
	err     error
}

func (f *fakeClassifier) Classify(_ context.Context, _ string) (*models.FeedbackVerdict, error) {
	return f.verdict, f.err
}

type fakeAttributor struct {
	result *models.AttributionResult
	err    error
	calls  int
}

func (f *fakeAttributor) Attribute(_ context.Context, _, _ string, _ *string, _ *models.FeedbackVerdict) (*models.AttributionResult, error) {
	f.calls++
	return f.result, f.err
}

func TestHandleUtteranceQueryPath(t *testing.T) {
	clusterer := &fakeClusterer{result: &models.AssignResult{
		ClusterID:    "c1",
		Similarity:   0.82,
		IsNewCluster: true,
		Enhancement:  "use diagrams",
	}}
	collector := metrics.NewCollector()
	svc := NewLearningService(clusterer, &fakeClassifier{}, &fakeAttributor{}, nil, collector, nil)

	outcome, err := svc.HandleUtterance(context.Background(), "what is osmosis", "s1", nil)
	if err != nil {
		t.Fatalf("HandleUtterance() error = %v", err)
	}

	if outcome.Kind != models.UtteranceQuery {
		t.Errorf("Kind = %q, want query", outcome.Kind)
	}
	if outcome.Assignment == nil || outcome.Assignment.Enhancement != "use diagrams" {
		t.Errorf("Assignment = %+v, want the clusterer's result", outcome.Assignment)
	}

	snap := collector.Snapshot()
	if snap.Counters[metrics.CounterAssignments] != 1 {
		t.Errorf("assignments counter = %d, want 1", snap.Counters[metrics.CounterAssignments])
	}
	if snap.Counters[metrics.CounterClustersCreated] != 1 {
		t.Errorf("clusters_created counter = %d, want 1", snap.Counters[metrics.CounterClustersCreated])
	}
}

func TestHandleUtteranceFeedbackAttributed(t *testing.T) {
	clusterer := &fakeClusterer{err: cluster.ErrNotAQuery}
	classifier := &fakeClassifier{verdict: &models.FeedbackVerdict{IsPositive: true, Confidence: 0.9}}
	attributor := &fakeAttributor{result: &models.AttributionResult{
		AssignmentID: "a1",
		ClusterID:    "c1",
		Score:        0.7,
	}}
	collector := metrics.NewCollector()
	svc := NewLearningService(clusterer, classifier, attributor, nil, collector, nil)

	outcome, err := svc.HandleUtterance(context.Background(), "thanks, perfect", "s1", nil)
	if err != nil {
		t.Fatalf("HandleUtterance() error = %v", err)
	}

	if outcome.Kind != models.UtteranceFeedback {
		t.Errorf("Kind = %q, want feedback", outcome.Kind)
	}
	if outcome.Verdict == nil || !outcome.Verdict.IsPositive {
		t.Errorf("Verdict = %+v, want positive", outcome.Verdict)
	}
	if outcome.Attribution == nil || outcome.Attribution.AssignmentID != "a1" {
		t.Errorf("Attribution = %+v, want assignment a1", outcome.Attribution)
	}
	if collector.Snapshot().Counters[metrics.CounterAttributions] != 1 {
		t.Error("attributions counter should be incremented")
	}
}

func TestHandleUtteranceNegativeFeedbackNotAttributed(t *testing.T) {
	clusterer := &fakeClusterer{err: cluster.ErrNotAQuery}
	classifier := &fakeClassifier{verdict: &models.FeedbackVerdict{IsPositive: false, Confidence: 0.2}}
	attributor := &fakeAttributor{}
	svc := NewLearningService(clusterer, classifier, attributor, nil, nil, nil)

	outcome, err := svc.HandleUtterance(context.Background(), "hmm okay", "s1", nil)
	if err != nil {
		t.Fatalf("HandleUtterance() error = %v", err)
	}
	if outcome.Attribution != nil {
		t.Error("negative feedback must not be attributed")
	}
	if attributor.calls != 0 {
		t.Error("the attributor should not run for negative feedback")
	}
}

func TestHandleUtteranceUnattributedFeedbackIsNormal(t *testing.T) {
	clusterer := &fakeClusterer{err: cluster.ErrNotAQuery}
	classifier := &fakeClassifier{verdict: &models.FeedbackVerdict{IsPositive: true, Confidence: 0.9}}
	attributor := &fakeAttributor{err: feedback.ErrNoCandidate}
	svc := NewLearningService(clusterer, classifier, attributor, nil, nil, nil)

	outcome, err := svc.HandleUtterance(context.Background(), "thanks a lot", "s1", nil)
	if err != nil {
		t.Fatalf("HandleUtterance() error = %v, no candidate is not an error", err)
	}
	if outcome.Verdict == nil {
		t.Error("the verdict should survive an unattributed outcome")
	}
	if outcome.Attribution != nil {
		t.Error("Attribution should be nil when nothing qualified")
	}
}

func TestHandleUtteranceClusteringFailureDegrades(t *testing.T) {
	clusterer := &fakeClusterer{err: errors.New("store down")}
	svc := NewLearningService(clusterer, &fakeClassifier{}, &fakeAttributor{}, nil, nil, nil)

	outcome, err := svc.HandleUtterance(context.Background(), "what is entropy", "s1", nil)
	if err != nil {
		t.Fatalf("HandleUtterance() error = %v, clustering failure must degrade", err)
	}
	if outcome.Kind != models.UtteranceQuery {
		t.Errorf("Kind = %q, want query", outcome.Kind)
	}
	if outcome.Assignment != nil {
		t.Error("a failed assignment must not fabricate an enhancement")
	}
}

func TestHandleUtteranceAttributionFailureKeepsVerdict(t *testing.T) {
	clusterer := &fakeClusterer{err: cluster.ErrNotAQuery}
	classifier := &fakeClassifier{verdict: &models.FeedbackVerdict{IsPositive: true, Confidence: 0.9}}
	attributor := &fakeAttributor{err: errors.New("store down")}
	svc := NewLearningService(clusterer, classifier, attributor, nil, nil, nil)

	outcome, err := svc.HandleUtterance(context.Background(), "thanks so much", "s1", nil)
	if err != nil {
		t.Fatalf("HandleUtterance() error = %v, attribution failure must degrade", err)
	}
	if outcome.Verdict == nil || outcome.Attribution != nil {
		t.Errorf("outcome = %+v, want verdict kept and attribution nil", outcome)
	}
}
