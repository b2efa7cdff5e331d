// Package service wires the clustering, classification, and
// attribution components into the operations the CLI exposes.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/abstructionai/crowdwise/internal/audit"
	"github.com/abstructionai/crowdwise/internal/cluster"
	"github.com/abstructionai/crowdwise/internal/feedback"
	"github.com/abstructionai/crowdwise/internal/metrics"
	"github.com/abstructionai/crowdwise/internal/models"
)

// Clusterer assigns queries to clusters.
type Clusterer interface {
	Assign(ctx context.Context, queryText, sessionID string, userID *string) (*models.AssignResult, error)
}

// Classifier judges feedback sentiment.
type Classifier interface {
	Classify(ctx context.Context, text string) (*models.FeedbackVerdict, error)
}

// Attributor resolves feedback to the assignment that earned it.
type Attributor interface {
	Attribute(ctx context.Context, feedbackText, sessionID string, userID *string, verdict *models.FeedbackVerdict) (*models.AttributionResult, error)
}

// LearningService routes inbound utterances through the feedback loop:
// questions into the clusterer, feedback through classification and
// attribution.
type LearningService struct {
	clusterer  Clusterer
	classifier Classifier
	attributor Attributor
	sink       *audit.Sink
	collector  *metrics.Collector
	logger     *slog.Logger
}

// NewLearningService creates a LearningService. The audit sink and the
// metrics collector are optional.
func NewLearningService(clusterer Clusterer, classifier Classifier, attributor Attributor, sink *audit.Sink, collector *metrics.Collector, logger *slog.Logger) *LearningService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LearningService{
		clusterer:  clusterer,
		classifier: classifier,
		attributor: attributor,
		sink:       sink,
		collector:  collector,
		logger:     logger.With("component", "learning"),
	}
}

// HandleUtterance processes one inbound utterance. Questions come back
// with a cluster assignment and its enhancement; feedback comes back
// with a verdict and, when positive, an attribution. A clustering
// failure degrades to a query outcome with no assignment, so the
// tutoring response is never blocked on this loop.
func (s *LearningService) HandleUtterance(ctx context.Context, text, sessionID string, userID *string) (*models.UtteranceOutcome, error) {
	var result *models.AssignResult
	err := s.time(metrics.OpAssign, func() error {
		var assignErr error
		result, assignErr = s.clusterer.Assign(ctx, text, sessionID, userID)
		return assignErr
	})

	if errors.Is(err, cluster.ErrNotAQuery) {
		return s.handleFeedback(ctx, text, sessionID, userID)
	}
	if err != nil {
		s.logger.Warn("clustering failed, proceeding without enhancement",
			"session", sessionID, "error", err)
		s.record(audit.Event{
			Component: "clusterer",
			Level:     "warn",
			Message:   "assignment failed",
			Metadata:  map[string]any{"error": err.Error()},
			SessionID: sessionID,
		})
		return &models.UtteranceOutcome{Kind: models.UtteranceQuery}, nil
	}

	s.count(metrics.CounterAssignments)
	if result.IsNewCluster {
		s.count(metrics.CounterClustersCreated)
	}
	s.record(audit.Event{
		Component: "clusterer",
		Level:     "info",
		Message:   "query assigned",
		Metadata: map[string]any{
			"cluster":     result.ClusterID,
			"similarity":  result.Similarity,
			"new_cluster": result.IsNewCluster,
		},
		SessionID: sessionID,
	})

	return &models.UtteranceOutcome{Kind: models.UtteranceQuery, Assignment: result}, nil
}

// handleFeedback classifies a feedback utterance and, when positive,
// attributes it. Attribution finding nothing is a normal outcome, not
// an error.
func (s *LearningService) handleFeedback(ctx context.Context, text, sessionID string, userID *string) (*models.UtteranceOutcome, error) {
	var verdict *models.FeedbackVerdict
	err := s.time(metrics.OpClassify, func() error {
		var classifyErr error
		verdict, classifyErr = s.classifier.Classify(ctx, text)
		return classifyErr
	})
	if err != nil {
		return nil, err
	}

	outcome := &models.UtteranceOutcome{Kind: models.UtteranceFeedback, Verdict: verdict}

	s.record(audit.Event{
		Component: "classifier",
		Level:     "info",
		Message:   "feedback classified",
		Metadata: map[string]any{
			"positive":   verdict.IsPositive,
			"confidence": verdict.Confidence,
		},
		SessionID: sessionID,
	})

	if !verdict.IsPositive {
		return outcome, nil
	}

	var attribution *models.AttributionResult
	err = s.time(metrics.OpAttribute, func() error {
		var attrErr error
		attribution, attrErr = s.attributor.Attribute(ctx, text, sessionID, userID, verdict)
		return attrErr
	})
	if errors.Is(err, feedback.ErrNoCandidate) {
		s.logger.Debug("positive feedback left unattributed", "session", sessionID)
		return outcome, nil
	}
	if err != nil {
		s.logger.Warn("attribution failed, feedback dropped",
			"session", sessionID, "error", err)
		s.record(audit.Event{
			Component: "attributor",
			Level:     "warn",
			Message:   "attribution failed",
			Metadata:  map[string]any{"error": err.Error()},
			SessionID: sessionID,
		})
		return outcome, nil
	}

	s.count(metrics.CounterAttributions)
	s.record(audit.Event{
		Component: "attributor",
		Level:     "info",
		Message:   "feedback attributed",
		Metadata: map[string]any{
			"assignment":   attribution.AssignmentID,
			"cluster":      attribution.ClusterID,
			"score":        attribution.Score,
			"same_session": attribution.SameSession,
		},
		SessionID: sessionID,
	})

	outcome.Attribution = attribution
	return outcome, nil
}

func (s *LearningService) time(op string, fn func() error) error {
	if s.collector == nil {
		return fn()
	}
	return s.collector.Time(op, fn)
}

func (s *LearningService) count(counter string) {
	if s.collector != nil {
		s.collector.Increment(counter)
	}
}

func (s *LearningService) record(e audit.Event) {
	if s.sink != nil {
		s.sink.Record(e)
	}
}
