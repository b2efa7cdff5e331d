package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/abstructionai/crowdwise/internal/db"
	"github.com/abstructionai/crowdwise/internal/models"
)

// Scoring weights for attribution candidates. They sum to 1.0.
const (
	recencyWeight      = 0.40
	sameSessionWeight  = 0.20
	complexityWeight   = 0.15
	significanceWeight = 0.15
	relevanceWeight    = 0.10
)

// Per-factor values and normalization constants.
const (
	// offSessionFactor keeps partial session credit for candidates from
	// other sessions, since praise often lands a session late.
	offSessionFactor = 0.3
	// complexityFullLength is the query length, in characters, at which
	// the complexity factor saturates.
	complexityFullLength = 100
	// Clusters that already carry an enhancement matter more to the
	// success counters than ones that never earned a revision.
	enhancedClusterFactor = 0.8
	plainClusterFactor    = 0.4
	// positiveVocabularyBonus is the flat relevance credit for generic
	// praise that shares no words with any query.
	positiveVocabularyBonus = 0.5
)

// ErrNoCandidate signals that no recent unlabeled assignment scored
// well enough to receive the feedback.
var ErrNoCandidate = errors.New("no attributable assignment found")

// AttributorStore is the persistence surface attribution needs.
type AttributorStore interface {
	ListUnlabeledAssignments(ctx context.Context, userID string, since time.Time, limit int) ([]models.Assignment, error)
	ListUnlabeledSessionAssignments(ctx context.Context, sessionID string, since time.Time, limit int) ([]models.Assignment, error)
	GetCluster(ctx context.Context, id string) (*models.Cluster, error)
	ClaimAssignmentFeedback(ctx context.Context, id string, positive bool, score float64) error
	RollupFeedback(ctx context.Context, clusterID string, positive bool) error
}

// AttributorConfig holds the attributor's tunables.
type AttributorConfig struct {
	// Window bounds how far back candidate assignments are considered.
	Window time.Duration
	// MaxCandidates caps the candidate pool per feedback event.
	MaxCandidates int
	// MinScore is the floor under which feedback stays unattributed.
	MinScore float64
}

// Attributor resolves a feedback event to the assignment that most
// plausibly earned it. Feedback often arrives in a later session than
// the query it praises, so candidates are pulled by user across
// sessions when a user id is known, by session otherwise.
type Attributor struct {
	store  AttributorStore
	cfg    AttributorConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewAttributor creates an Attributor.
func NewAttributor(store AttributorStore, cfg AttributorConfig, logger *slog.Logger) *Attributor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Attributor{
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "attributor"),
		now:    time.Now,
	}
}

// Attribute finds the best candidate for a classified feedback event,
// claims it, and rolls the outcome up into its cluster's success
// counters. Candidates are ranked by a weighted blend of recency, same
// session, query complexity, cluster significance, and textual overlap
// with the feedback. If the best candidate was claimed by a concurrent
// attribution in the meantime, the next one is tried.
func (a *Attributor) Attribute(ctx context.Context, feedbackText, sessionID string, userID *string, verdict *models.FeedbackVerdict) (*models.AttributionResult, error) {
	since := a.now().Add(-a.cfg.Window)

	var (
		candidates []models.Assignment
		err        error
	)
	if userID != nil && *userID != "" {
		candidates, err = a.store.ListUnlabeledAssignments(ctx, *userID, since, a.cfg.MaxCandidates)
	} else {
		candidates, err = a.store.ListUnlabeledSessionAssignments(ctx, sessionID, since, a.cfg.MaxCandidates)
	}
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidate
	}

	ranked := a.rank(ctx, candidates, feedbackText, sessionID)

	for _, cand := range ranked {
		if cand.score < a.cfg.MinScore {
			break
		}

		id := models.MustRecordIDString(cand.assignment.ID)
		err := a.store.ClaimAssignmentFeedback(ctx, id, verdict.IsPositive, verdict.Confidence)
		if errors.Is(err, db.ErrAlreadyLabeled) {
			a.logger.Debug("candidate claimed concurrently, trying next", "assignment", id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("claim assignment: %w", err)
		}

		clusterID := models.MustRecordIDString(cand.assignment.Cluster)
		if err := a.store.RollupFeedback(ctx, clusterID, verdict.IsPositive); err != nil {
			return nil, fmt.Errorf("rollup feedback: %w", err)
		}

		a.logger.Info("feedback attributed",
			"assignment", id,
			"cluster", clusterID,
			"score", cand.score,
			"positive", verdict.IsPositive,
			"same_session", cand.assignment.SessionID == sessionID)

		return &models.AttributionResult{
			AssignmentID: id,
			ClusterID:    clusterID,
			Score:        cand.score,
			SameSession:  cand.assignment.SessionID == sessionID,
			QueryText:    cand.assignment.QueryText,
		}, nil
	}

	return nil, ErrNoCandidate
}

type scoredCandidate struct {
	assignment models.Assignment
	score      float64
}

// rank scores every candidate and orders them best first.
func (a *Attributor) rank(ctx context.Context, candidates []models.Assignment, feedbackText, sessionID string) []scoredCandidate {
	now := a.now()
	feedbackLower := strings.ToLower(feedbackText)

	// Whether the cluster carries an enhancement feeds the significance
	// factor. A lookup failure only zeroes that factor for the
	// candidate.
	significance := make(map[string]float64)
	for _, cand := range candidates {
		clusterID := models.MustRecordIDString(cand.Cluster)
		if _, seen := significance[clusterID]; seen {
			continue
		}
		cluster, err := a.store.GetCluster(ctx, clusterID)
		if err != nil {
			a.logger.Warn("cluster lookup failed during ranking", "cluster", clusterID, "error", err)
			significance[clusterID] = 0
			continue
		}
		if cluster.HasEnhancement() {
			significance[clusterID] = enhancedClusterFactor
		} else {
			significance[clusterID] = plainClusterFactor
		}
	}

	ranked := make([]scoredCandidate, 0, len(candidates))
	for _, cand := range candidates {
		clusterID := models.MustRecordIDString(cand.Cluster)
		score := a.scoreCandidate(cand, now, sessionID, feedbackLower, significance[clusterID])
		ranked = append(ranked, scoredCandidate{assignment: cand, score: score})
	}

	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].score > ranked[j-1].score; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}

	return ranked
}

func (a *Attributor) scoreCandidate(cand models.Assignment, now time.Time, sessionID, feedbackLower string, significance float64) float64 {
	// Recency decays linearly across the window.
	age := now.Sub(cand.CreatedAt)
	recency := 1 - float64(age)/float64(a.cfg.Window)
	if recency < 0 {
		recency = 0
	}

	sameSession := offSessionFactor
	if cand.SessionID == sessionID {
		sameSession = 1.0
	}

	// Longer, more involved questions are more likely to earn explicit
	// feedback than one-liners.
	complexity := float64(len(cand.QueryText)) / complexityFullLength
	if complexity > 1 {
		complexity = 1
	}

	relevance := feedbackRelevance(cand.QueryText, feedbackLower)

	score := recencyWeight*recency +
		sameSessionWeight*sameSession +
		complexityWeight*complexity +
		significanceWeight*significance +
		relevanceWeight*relevance
	if score > 1 {
		score = 1
	}
	return score
}

var wordSplit = regexp.MustCompile(`[^a-z0-9]+`)

// positiveVocabulary marks feedback as generic praise even when it
// shares no words with the candidate query.
var positiveVocabulary = []string{
	"thank", "great", "good", "perfect", "excellent",
	"helpful", "awesome", "amazing", "love",
}

// contentWords lowercases and splits text into distinct words longer
// than three characters, which skips most function words for free.
func contentWords(text string) []string {
	seen := make(map[string]struct{})
	var words []string
	for _, w := range wordSplit.Split(strings.ToLower(text), -1) {
		if len(w) <= 3 {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}
	return words
}

// feedbackRelevance is the fraction of the query's content words found
// in the feedback text by substring, plus a flat bonus when the
// feedback uses generic praise vocabulary. Substring matching lets
// "explanation" in the feedback count for "explain" in the query.
func feedbackRelevance(queryText, feedbackLower string) float64 {
	words := contentWords(queryText)
	relevance := 0.0
	if len(words) > 0 {
		matched := 0
		for _, w := range words {
			if strings.Contains(feedbackLower, w) {
				matched++
			}
		}
		relevance = float64(matched) / float64(len(words))
	}
	for _, w := range positiveVocabulary {
		if strings.Contains(feedbackLower, w) {
			relevance += positiveVocabularyBonus
			break
		}
	}
	return relevance
}
