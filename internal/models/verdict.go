package models

import "time"

// FeedbackVerdict is the classifier's judgement of a feedback utterance.
type FeedbackVerdict struct {
	IsPositive bool    `json:"is_positive"`
	Confidence float64 `json:"confidence"`
	// PatternScore and JudgeScore expose the two underlying signals
	// for auditing and attribution.
	PatternScore float64 `json:"pattern_score"`
	JudgeScore   float64 `json:"judge_score"`
}

// AttributionResult describes which assignment a feedback event was
// resolved to.
type AttributionResult struct {
	AssignmentID string
	ClusterID    string
	Score        float64
	SameSession  bool
	QueryText    string
}

// WatchdogReport summarizes one watchdog batch run.
type WatchdogReport struct {
	ClustersEvaluated  int
	RollbacksPerformed int
	Skipped            int
	StartedAt          time.Time
	Duration           time.Duration
}

// UtteranceKind tells which path an inbound utterance took.
type UtteranceKind string

const (
	UtteranceQuery    UtteranceKind = "query"
	UtteranceFeedback UtteranceKind = "feedback"
)

// UtteranceOutcome is the learning service's answer for one inbound
// utterance: either a cluster assignment (query path) or a feedback
// verdict plus optional attribution (feedback path).
type UtteranceOutcome struct {
	Kind        UtteranceKind
	Assignment  *AssignResult
	Verdict     *FeedbackVerdict
	Attribution *AttributionResult
}
