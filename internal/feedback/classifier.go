// Package feedback classifies conversational feedback and attributes it
// to the query that earned it. Classification blends two signals, a
// lexical pattern score and an LLM judge, so neither brittle regexes
// nor a flaky model gets the last word alone.
package feedback

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/abstructionai/crowdwise/internal/llm"
	"github.com/abstructionai/crowdwise/internal/models"
)

const (
	patternWeight = 0.4
	judgeWeight   = 0.6

	agreementBonus = 0.1
	agreementCap   = 0.95

	// disagreeGap is how far apart the two signals may sit before the
	// combined score is discounted as uncertain.
	disagreeGap    = 0.4
	disagreeFactor = 0.8

	// neutralJudgeScore stands in when the judge is unavailable, so a
	// provider outage degrades to pattern-only classification instead
	// of dropping feedback.
	neutralJudgeScore = 0.5

	// patternPositiveBar is the score the lexical signal must exceed to
	// count as a positive vote for the agreement bonus.
	patternPositiveBar = 0.5
)

// Judge is the LLM sentiment surface the classifier needs.
type Judge interface {
	JudgeFeedback(ctx context.Context, feedbackText string) (*llm.FeedbackJudgement, error)
}

// ClassifierConfig holds the classifier's tunables.
type ClassifierConfig struct {
	// ConfidenceThreshold is the combined score at or above which
	// feedback counts as positive.
	ConfidenceThreshold float64
	// MinLength is the shortest text, in bytes after trimming, that can
	// ever classify as positive.
	MinLength int
}

// Classifier decides whether a feedback utterance is positive.
type Classifier struct {
	judge  Judge
	cfg    ClassifierConfig
	logger *slog.Logger
}

// NewClassifier creates a Classifier.
func NewClassifier(judge Judge, cfg ClassifierConfig, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		judge:  judge,
		cfg:    cfg,
		logger: logger.With("component", "classifier"),
	}
}

// Classify blends the pattern score and the judge's verdict into a
// single confidence. A confident pattern signal backed by a positive
// judge earns a bonus; signals sitting far apart are discounted as
// uncertainty. A judge failure falls back to a neutral
// judge score rather than failing the classification.
func (c *Classifier) Classify(ctx context.Context, text string) (*models.FeedbackVerdict, error) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < c.cfg.MinLength {
		return &models.FeedbackVerdict{}, nil
	}

	pScore := patternScore(trimmed)

	jScore := neutralJudgeScore
	judgePositive := false

	judgement, err := c.judge.JudgeFeedback(ctx, trimmed)
	if err != nil {
		c.logger.Warn("judge unavailable, using neutral score", "error", err)
	} else {
		judgePositive = judgement.IsPositive
		if judgement.IsPositive {
			jScore = judgement.Confidence
		} else {
			jScore = 1 - judgement.Confidence
		}
	}

	combined := patternWeight*pScore + judgeWeight*jScore

	if pScore > patternPositiveBar && judgePositive {
		combined += agreementBonus
		if combined > agreementCap {
			combined = agreementCap
		}
	}
	// A wide gap between the signals means at least one of them is
	// wrong, so the blend is worth less than its face value.
	if math.Abs(pScore-jScore) > disagreeGap {
		combined *= disagreeFactor
	}

	verdict := &models.FeedbackVerdict{
		IsPositive:   combined >= c.cfg.ConfidenceThreshold,
		Confidence:   combined,
		PatternScore: pScore,
		JudgeScore:   jScore,
	}

	c.logger.Debug("feedback classified",
		"positive", verdict.IsPositive,
		"confidence", verdict.Confidence,
		"pattern_score", pScore,
		"judge_score", jScore)

	return verdict, nil
}
