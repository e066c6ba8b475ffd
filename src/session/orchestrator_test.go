package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/castsignal/foryou-engine/src/config"
	"github.com/castsignal/foryou-engine/src/providers"
	"github.com/castsignal/foryou-engine/src/providers/filedataset"
)

// flakyEngagementStore wraps a real EngagementStore but fails the
// first failsBeforeSuccess calls to GetEngagementsForRanking, to prove
// the orchestrator actually retries the call rather than surfacing the
// first transient error.
type flakyEngagementStore struct {
	*filedataset.Dataset
	failsBeforeSuccess int
	calls              int
}

func (f *flakyEngagementStore) GetEngagementsForRanking(ctx context.Context, userID string, requestEngagements []providers.Engagement, limit int) ([]providers.Engagement, error) {
	f.calls++
	if f.calls <= f.failsBeforeSuccess {
		return nil, errors.New("transient upstream failure")
	}
	return f.Dataset.GetEngagementsForRanking(ctx, userID, requestEngagements, limit)
}

func testOrchestrator(t *testing.T, ds *filedataset.Dataset) *Orchestrator {
	t.Helper()
	cfg := config.Defaults()
	cfg.EmbeddingDimension = 4
	cfg.CredibilityFloor = 0
	cfg.CombinedFloor = 0
	return &Orchestrator{
		Episodes:         ds,
		Vectors:          ds,
		Engagements:      ds,
		Store:            NewStore(100, time.Minute),
		Config:           cfg,
		AlgorithmVersion: "v1",
		StrategyVersion:  "1",
		DatasetVersion:   "test",
		Now:              func() time.Time { return time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC) },
	}
}

func seedDataset() *filedataset.Dataset {
	ds := filedataset.New()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	ds.Put(providers.Episode{
		ID: "a", Title: "A", SeriesID: "s1", Credibility: 4, Insight: 4, PublishedAt: now.AddDate(0, 0, -1),
	}, []float32{1, 0, 0, 0})
	ds.Put(providers.Episode{
		ID: "b", Title: "B", SeriesID: "s2", Credibility: 4, Insight: 4, PublishedAt: now.AddDate(0, 0, -2),
	}, []float32{0, 1, 0, 0})
	ds.Put(providers.Episode{
		ID: "c", Title: "C", SeriesID: "s3", Credibility: 3, Insight: 3, PublishedAt: now.AddDate(0, 0, -3),
	}, []float32{0.9, 0.1, 0, 0})
	return ds
}

func TestCreateSessionColdStartWithNoEngagementsOrProfile(t *testing.T) {
	ds := seedDataset()
	orch := testOrchestrator(t, ds)

	resp, err := orch.CreateSession(context.Background(), CreateRequest{UserID: "u1", Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.ColdStart {
		t.Fatal("expected cold start with no engagements and no profile")
	}
	if len(resp.Episodes) != 2 {
		t.Fatalf("expected the requested page size of 2, got %d", len(resp.Episodes))
	}
	if resp.TotalInQueue != 3 {
		t.Fatalf("expected all 3 quality-passing episodes in the queue, got %d", resp.TotalInQueue)
	}
}

func TestCreateSessionWithEngagementsIsNotColdStart(t *testing.T) {
	ds := seedDataset()
	orch := testOrchestrator(t, ds)

	resp, err := orch.CreateSession(context.Background(), CreateRequest{
		UserID: "u1",
		Engagements: []providers.Engagement{
			{EpisodeID: "a", Kind: providers.EngagementBookmark, Timestamp: orch.now()},
		},
		Limit: 5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ColdStart {
		t.Fatal("expected engagement-derived user vector to avoid cold start")
	}
	// The engaged episode itself must be excluded from its own queue.
	for _, ep := range resp.Episodes {
		if ep.Episode.ID == "a" {
			t.Fatal("expected the engaged episode to be excluded from the returned queue")
		}
	}
}

func TestCreateSessionExcludesRequestedIDs(t *testing.T) {
	ds := seedDataset()
	orch := testOrchestrator(t, ds)

	resp, err := orch.CreateSession(context.Background(), CreateRequest{
		UserID:      "u1",
		ExcludedIDs: []string{"b", "c"},
		Limit:       5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Episodes) != 1 || resp.Episodes[0].Episode.ID != "a" {
		t.Fatalf("expected only 'a' to survive exclusion, got %+v", resp.Episodes)
	}
}

func TestNextPaginatesAfterCreateSession(t *testing.T) {
	ds := seedDataset()
	orch := testOrchestrator(t, ds)

	created, err := orch.CreateSession(context.Background(), CreateRequest{UserID: "u1", Limit: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ShownCount != 1 || created.RemainingCount != 2 {
		t.Fatalf("expected shown=1 remaining=2, got shown=%d remaining=%d", created.ShownCount, created.RemainingCount)
	}

	next, err := orch.Next(created.SessionID, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ShownCount != 2 || next.RemainingCount != 0 {
		t.Fatalf("expected the next page to exhaust the queue, got shown=%d remaining=%d", next.ShownCount, next.RemainingCount)
	}
}

func TestEngageRejectsEpisodeOutsideSessionQueue(t *testing.T) {
	ds := seedDataset()
	orch := testOrchestrator(t, ds)

	created, err := orch.CreateSession(context.Background(), CreateRequest{UserID: "u1", Limit: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = orch.Engage(context.Background(), EngageRequest{
		SessionID: created.SessionID,
		EpisodeID: "does-not-exist",
		Kind:      providers.EngagementClick,
	})
	if err == nil {
		t.Fatal("expected an error engaging an episode outside the session queue")
	}
}

func TestEngageSucceedsForQueuedEpisode(t *testing.T) {
	ds := seedDataset()
	orch := testOrchestrator(t, ds)

	created, err := orch.CreateSession(context.Background(), CreateRequest{UserID: "u1", Limit: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created.Episodes) == 0 {
		t.Fatal("expected at least one episode in the queue")
	}

	resp, err := orch.Engage(context.Background(), EngageRequest{
		SessionID: created.SessionID,
		EpisodeID: created.Episodes[0].Episode.ID,
		Kind:      providers.EngagementClick,
		UserID:    "u1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.OK {
		t.Fatal("expected OK response")
	}
}

func TestConcurrentFetchRetriesTransientEngagementStoreFailures(t *testing.T) {
	ds := seedDataset()
	orch := testOrchestrator(t, ds)
	flaky := &flakyEngagementStore{Dataset: ds, failsBeforeSuccess: 2}
	orch.Engagements = flaky
	orch.RetryConfig = providers.RetryConfig{BaseDelay: time.Millisecond, Factor: 2, MaxAttempts: 3}

	resp, err := orch.CreateSession(context.Background(), CreateRequest{UserID: "u1", Limit: 2})
	if err != nil {
		t.Fatalf("expected the orchestrator to retry past the transient failures, got: %v", err)
	}
	if flaky.calls != 3 {
		t.Fatalf("expected exactly 3 attempts (2 failures + 1 success), got %d", flaky.calls)
	}
	if len(resp.Episodes) == 0 {
		t.Fatal("expected a successful session once the retried call succeeds")
	}
}

func TestConcurrentFetchSurfacesErrorAfterExhaustingRetries(t *testing.T) {
	ds := seedDataset()
	orch := testOrchestrator(t, ds)
	flaky := &flakyEngagementStore{Dataset: ds, failsBeforeSuccess: 99}
	orch.Engagements = flaky
	orch.RetryConfig = providers.RetryConfig{BaseDelay: time.Millisecond, Factor: 2, MaxAttempts: 2}

	_, err := orch.CreateSession(context.Background(), CreateRequest{UserID: "u1", Limit: 2})
	if err == nil {
		t.Fatal("expected an error once retries are exhausted")
	}
	if flaky.calls != 2 {
		t.Fatalf("expected exactly MaxAttempts=2 calls, got %d", flaky.calls)
	}
}

func TestNamespaceFormat(t *testing.T) {
	orch := &Orchestrator{AlgorithmVersion: "v2", StrategyVersion: "3", DatasetVersion: "2026-07-31"}
	want := "v2_s3__2026-07-31"
	if got := orch.Namespace(); got != want {
		t.Fatalf("expected namespace %q, got %q", want, got)
	}
}

// anchorOnlyUserStore always resolves userID "u1" to a profile
// carrying a category anchor vector and no other history.
type anchorOnlyUserStore struct {
	anchor []float32
}

func (s anchorOnlyUserStore) GetByID(ctx context.Context, userID string) (*providers.UserProfile, bool, error) {
	if userID != "u1" {
		return nil, false, nil
	}
	return &providers.UserProfile{UserID: userID, CategoryAnchorVector: s.anchor}, true, nil
}

// TestDebugWeightsReflectAnchorOnlyBlendNotColdStartFlag covers the
// case a category-anchor profile produces a usable (non-nil) user
// vector with zero engagements: Session.ColdStart is true (no
// engagement history), but ranking blends with the normal weights
// because it received a non-nil vector. The reported debug weights
// must match the blend ranking actually used, not the ColdStart flag.
func TestDebugWeightsReflectAnchorOnlyBlendNotColdStartFlag(t *testing.T) {
	ds := seedDataset()
	orch := testOrchestrator(t, ds)
	orch.Users = anchorOnlyUserStore{anchor: []float32{1, 0, 0, 0}}

	resp, err := orch.CreateSession(context.Background(), CreateRequest{UserID: "u1", Limit: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.ColdStart {
		t.Fatal("expected ColdStart=true with zero engagements")
	}
	if resp.Debug.ScoringWeights.Similarity != orch.Config.WeightSimilarity {
		t.Fatalf("expected the normal similarity weight %v since ranking had a usable anchor vector, got %v",
			orch.Config.WeightSimilarity, resp.Debug.ScoringWeights.Similarity)
	}
}
