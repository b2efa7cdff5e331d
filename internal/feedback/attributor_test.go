package feedback

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/abstructionai/crowdwise/internal/db"
	"github.com/abstructionai/crowdwise/internal/models"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

type claim struct {
	id       string
	positive bool
	score    float64
}

type fakeAttrStore struct {
	assignments []models.Assignment
	clusters    map[string]*models.Cluster

	labeled map[string]bool
	// claimRaces simulates another worker labeling the row between the
	// candidate listing and the claim.
	claimRaces map[string]bool
	claims     []claim
	rollups    []string

	userCalls    int
	sessionCalls int
}

func newFakeAttrStore() *fakeAttrStore {
	return &fakeAttrStore{
		clusters:   make(map[string]*models.Cluster),
		labeled:    make(map[string]bool),
		claimRaces: make(map[string]bool),
	}
}

func (f *fakeAttrStore) addAssignment(id, clusterID, sessionID string, age time.Duration, queryText string, now time.Time) {
	f.assignments = append(f.assignments, models.Assignment{
		ID:        surrealmodels.RecordID{Table: "assignment", ID: id},
		QueryText: queryText,
		Cluster:   models.ClusterRef(clusterID),
		SessionID: sessionID,
		CreatedAt: now.Add(-age),
	})
}

func (f *fakeAttrStore) unlabeled(since time.Time, limit int) []models.Assignment {
	out := make([]models.Assignment, 0, len(f.assignments))
	for _, a := range f.assignments {
		id := models.MustRecordIDString(a.ID)
		if f.labeled[id] || a.CreatedAt.Before(since) {
			continue
		}
		out = append(out, a)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (f *fakeAttrStore) ListUnlabeledAssignments(_ context.Context, _ string, since time.Time, limit int) ([]models.Assignment, error) {
	f.userCalls++
	return f.unlabeled(since, limit), nil
}

func (f *fakeAttrStore) ListUnlabeledSessionAssignments(_ context.Context, sessionID string, since time.Time, limit int) ([]models.Assignment, error) {
	f.sessionCalls++
	all := f.unlabeled(since, limit)
	out := make([]models.Assignment, 0, len(all))
	for _, a := range all {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAttrStore) GetCluster(_ context.Context, id string) (*models.Cluster, error) {
	c, ok := f.clusters[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return c, nil
}

func (f *fakeAttrStore) ClaimAssignmentFeedback(_ context.Context, id string, positive bool, score float64) error {
	if f.labeled[id] || f.claimRaces[id] {
		return db.ErrAlreadyLabeled
	}
	f.labeled[id] = true
	f.claims = append(f.claims, claim{id: id, positive: positive, score: score})
	return nil
}

func (f *fakeAttrStore) RollupFeedback(_ context.Context, clusterID string, _ bool) error {
	f.rollups = append(f.rollups, clusterID)
	return nil
}

func testAttributorConfig() AttributorConfig {
	return AttributorConfig{Window: 30 * time.Minute, MaxCandidates: 10, MinScore: 0.3}
}

func newTestAttributor(store *fakeAttrStore, now time.Time) *Attributor {
	a := NewAttributor(store, testAttributorConfig(), nil)
	a.now = func() time.Time { return now }
	return a
}

func positiveVerdict() *models.FeedbackVerdict {
	return &models.FeedbackVerdict{IsPositive: true, Confidence: 0.85}
}

func TestAttributePrefersRecentSameSession(t *testing.T) {
	now := time.Now()
	store := newFakeAttrStore()
	store.clusters["c1"] = &models.Cluster{ID: models.ClusterRef("c1")}
	store.clusters["c2"] = &models.Cluster{ID: models.ClusterRef("c2")}
	store.addAssignment("a-old", "c1", "other-session", 25*time.Minute,
		"how do neural networks learn from examples", now)
	store.addAssignment("a-recent", "c2", "s1", 2*time.Minute,
		"explain how gradient descent updates the weights", now)

	uid := "u1"
	attr := newTestAttributor(store, now)

	result, err := attr.Attribute(context.Background(), "thanks, that gradient explanation helped", "s1", &uid, positiveVerdict())
	if err != nil {
		t.Fatalf("Attribute() error = %v", err)
	}

	if result.AssignmentID != "a-recent" {
		t.Errorf("AssignmentID = %q, want a-recent", result.AssignmentID)
	}
	if result.ClusterID != "c2" {
		t.Errorf("ClusterID = %q, want c2", result.ClusterID)
	}
	if !result.SameSession {
		t.Error("SameSession should be true for the winning candidate")
	}
	if store.userCalls != 1 || store.sessionCalls != 0 {
		t.Error("a known user must be attributed across sessions by user id")
	}
}

func TestAttributeCrossSession(t *testing.T) {
	// The praised answer came 25 minutes ago in a previous session; the
	// user id links them, and an aging cross-session candidate in an
	// enhanced cluster still clears the score floor.
	now := time.Now()
	store := newFakeAttrStore()
	store.clusters["c1"] = &models.Cluster{
		ID:          models.ClusterRef("c1"),
		Enhancement: "walk through each elimination step",
	}
	store.addAssignment("a1", "c1", "old-session", 25*time.Minute,
		"walk me through solving linear equations", now)

	uid := "u1"
	attr := newTestAttributor(store, now)

	result, err := attr.Attribute(context.Background(), "thanks, really good answer!", "new-session", &uid, positiveVerdict())
	if err != nil {
		t.Fatalf("Attribute() error = %v", err)
	}
	if result.AssignmentID != "a1" {
		t.Errorf("AssignmentID = %q, want a1", result.AssignmentID)
	}
	if result.SameSession {
		t.Error("SameSession should be false for cross-session attribution")
	}
}

func TestAttributeAnonymousUsesSession(t *testing.T) {
	now := time.Now()
	store := newFakeAttrStore()
	store.clusters["c1"] = &models.Cluster{ID: models.ClusterRef("c1")}
	store.addAssignment("a1", "c1", "s1", 5*time.Minute,
		"explain the difference between speed and velocity in detail", now)

	attr := newTestAttributor(store, now)

	result, err := attr.Attribute(context.Background(), "thank you, perfect", "s1", nil, positiveVerdict())
	if err != nil {
		t.Fatalf("Attribute() error = %v", err)
	}
	if result.AssignmentID != "a1" {
		t.Errorf("AssignmentID = %q, want a1", result.AssignmentID)
	}
	if store.sessionCalls != 1 || store.userCalls != 0 {
		t.Error("anonymous feedback must list candidates by session")
	}
}

func TestAttributeNoCandidates(t *testing.T) {
	store := newFakeAttrStore()
	uid := "u1"
	attr := newTestAttributor(store, time.Now())

	_, err := attr.Attribute(context.Background(), "thanks", "s1", &uid, positiveVerdict())
	if !errors.Is(err, ErrNoCandidate) {
		t.Fatalf("Attribute() error = %v, want ErrNoCandidate", err)
	}
}

func TestAttributeBelowFloorUnattributed(t *testing.T) {
	// A stale candidate from another session with a terse query in an
	// unenhanced cluster scores under the floor and stays unlabeled.
	now := time.Now()
	store := newFakeAttrStore()
	store.clusters["c1"] = &models.Cluster{ID: models.ClusterRef("c1")}
	store.addAssignment("a1", "c1", "other-session", 29*time.Minute, "hm", now)

	uid := "u1"
	attr := newTestAttributor(store, now)

	_, err := attr.Attribute(context.Background(), "thanks, great explanation", "s1", &uid, positiveVerdict())
	if !errors.Is(err, ErrNoCandidate) {
		t.Fatalf("Attribute() error = %v, want ErrNoCandidate", err)
	}
	if len(store.claims) != 0 {
		t.Error("no assignment should be claimed below the score floor")
	}
}

func TestAttributeSkipsConcurrentlyClaimed(t *testing.T) {
	now := time.Now()
	store := newFakeAttrStore()
	store.clusters["c1"] = &models.Cluster{ID: models.ClusterRef("c1")}
	store.addAssignment("a-best", "c1", "s1", 1*time.Minute,
		"explain how photosynthesis converts light into chemical energy", now)
	store.addAssignment("a-next", "c1", "s1", 3*time.Minute,
		"why do plants need chlorophyll to capture sunlight", now)
	// Another worker grabs the best candidate between listing and
	// claiming.
	store.claimRaces["a-best"] = true

	uid := "u1"
	attr := newTestAttributor(store, now)

	result, err := attr.Attribute(context.Background(), "thanks, that made sense", "s1", &uid, positiveVerdict())
	if err != nil {
		t.Fatalf("Attribute() error = %v", err)
	}
	if result.AssignmentID != "a-next" {
		t.Errorf("AssignmentID = %q, want a-next", result.AssignmentID)
	}
}

func TestAttributePrefersEnhancedCluster(t *testing.T) {
	// Two equally fresh same-session candidates; the one whose cluster
	// already carries an enhancement wins on significance.
	now := time.Now()
	store := newFakeAttrStore()
	store.clusters["c-plain"] = &models.Cluster{ID: models.ClusterRef("c-plain")}
	store.clusters["c-enh"] = &models.Cluster{
		ID:          models.ClusterRef("c-enh"),
		Enhancement: "show a worked example first",
	}
	store.addAssignment("a-plain", "c-plain", "s1", 2*time.Minute,
		"explain the difference between mean and median", now)
	store.addAssignment("a-enh", "c-enh", "s1", 2*time.Minute,
		"explain the difference between mode and median", now)

	uid := "u1"
	attr := newTestAttributor(store, now)

	result, err := attr.Attribute(context.Background(), "thanks, that helped", "s1", &uid, positiveVerdict())
	if err != nil {
		t.Fatalf("Attribute() error = %v", err)
	}
	if result.AssignmentID != "a-enh" {
		t.Errorf("AssignmentID = %q, want a-enh", result.AssignmentID)
	}
}

func TestScoreCandidateFactors(t *testing.T) {
	now := time.Now()
	attr := newTestAttributor(newFakeAttrStore(), now)

	cand := func(age time.Duration, sessionID, queryText string) models.Assignment {
		return models.Assignment{
			SessionID: sessionID,
			QueryText: queryText,
			CreatedAt: now.Add(-age),
		}
	}

	tests := []struct {
		name         string
		assignment   models.Assignment
		feedback     string
		significance float64
		want         float64
	}{
		// 0.4 recency plus the 0.3 off-session floor times 0.2.
		{"fresh off-session baseline", cand(0, "other", ""), "ok", 0, 0.46},
		{"same session full credit", cand(0, "s1", ""), "ok", 0, 0.6},
		// Recency decays to zero at the window edge, the session floor
		// stays.
		{"stale keeps session floor", cand(30*time.Minute, "other", ""), "ok", 0, 0.06},
		// Complexity counts characters and saturates at a hundred.
		{"complexity saturates", cand(30*time.Minute, "other", strings.Repeat("x", 250)), "ok", 0, 0.21},
		{"complexity half way", cand(30*time.Minute, "other", strings.Repeat("x", 50)), "ok", 0, 0.135},
		{"enhanced cluster weighs in", cand(30*time.Minute, "other", ""), "ok", 0.8, 0.18},
		// Relevance can reach 1.5 via the praise bonus, so the weighted
		// sum is capped.
		{"weighted sum capped at one", cand(0, "s1", strings.Repeat("sunlight ", 12)), "sunlight is awesome", 0.8, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := attr.scoreCandidate(tt.assignment, now, "s1", strings.ToLower(tt.feedback), tt.significance)
			if !approx(got, tt.want) {
				t.Errorf("scoreCandidate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFeedbackRelevance(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		feedback string
		want     float64
	}{
		{"no overlap no praise", "explain binary search", "that was confusing", 0},
		{"half of the content words", "explain gradient descent updates", "the gradient updates now make sense", 0.5},
		{"substring counts", "explain this", "best explanation ever", 0.5},
		{"praise alone", "solve for x", "thanks a lot!", 0.5},
		{"short words ignored", "how do i fix it", "you fixed it", 0},
		{"full overlap plus praise", "derivative rules", "love the derivative rules, perfect", 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := feedbackRelevance(tt.query, strings.ToLower(tt.feedback))
			if !approx(got, tt.want) {
				t.Errorf("feedbackRelevance(%q, %q) = %v, want %v", tt.query, tt.feedback, got, tt.want)
			}
		})
	}
}

func TestAttributeRollsUpIntoCluster(t *testing.T) {
	now := time.Now()
	store := newFakeAttrStore()
	store.clusters["c1"] = &models.Cluster{ID: models.ClusterRef("c1")}
	store.addAssignment("a1", "c1", "s1", 2*time.Minute,
		"explain the chain rule with a worked example", now)

	uid := "u1"
	attr := newTestAttributor(store, now)

	verdict := positiveVerdict()
	if _, err := attr.Attribute(context.Background(), "thanks, I understand now", "s1", &uid, verdict); err != nil {
		t.Fatalf("Attribute() error = %v", err)
	}

	if len(store.claims) != 1 {
		t.Fatalf("claims = %d, want 1", len(store.claims))
	}
	c := store.claims[0]
	if c.id != "a1" || !c.positive || c.score != verdict.Confidence {
		t.Errorf("claim = %+v, want a1/true/%v", c, verdict.Confidence)
	}
	if len(store.rollups) != 1 || store.rollups[0] != "c1" {
		t.Errorf("rollups = %v, want [c1]", store.rollups)
	}
}
