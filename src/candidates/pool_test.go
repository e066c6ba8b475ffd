package candidates

import (
	"testing"
	"time"

	"github.com/castsignal/foryou-engine/src/config"
	"github.com/castsignal/foryou-engine/src/providers"
)

func ep(id string, credibility, insight int, daysOld int, now time.Time) providers.Episode {
	return providers.Episode{
		ID:          id,
		Credibility: credibility,
		Insight:     insight,
		PublishedAt: now.AddDate(0, 0, -daysOld),
	}
}

func TestPoolFiltersBelowCredibilityFloor(t *testing.T) {
	now := time.Now().UTC()
	cfg := config.Defaults()
	episodes := []providers.Episode{
		ep("a", 1, 4, 0, now), // credibility below floor of 2
		ep("b", 3, 3, 0, now),
	}
	got := Pool(episodes, nil, cfg, now)
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("expected only %q to survive, got %+v", "b", got)
	}
}

func TestPoolFiltersBelowCombinedFloor(t *testing.T) {
	now := time.Now().UTC()
	cfg := config.Defaults()
	episodes := []providers.Episode{
		ep("a", 2, 0, 0, now), // credibility 2 + insight 0 = 2 < combined_floor 5
		ep("b", 2, 3, 0, now), // 2 + 3 = 5, meets floor
	}
	got := Pool(episodes, nil, cfg, now)
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("expected only %q to survive, got %+v", "b", got)
	}
}

func TestPoolFiltersStaleEpisodes(t *testing.T) {
	now := time.Now().UTC()
	cfg := config.Defaults()
	episodes := []providers.Episode{
		ep("fresh", 4, 4, 10, now),
		ep("stale", 4, 4, 91, now), // freshness_window_days default 90
	}
	got := Pool(episodes, nil, cfg, now)
	if len(got) != 1 || got[0].ID != "fresh" {
		t.Fatalf("expected only %q to survive, got %+v", "fresh", got)
	}
}

func TestPoolFiltersExcludedIDs(t *testing.T) {
	now := time.Now().UTC()
	cfg := config.Defaults()
	episodes := []providers.Episode{
		ep("a", 4, 4, 0, now),
		ep("b", 4, 4, 0, now),
	}
	got := Pool(episodes, map[string]struct{}{"a": {}}, cfg, now)
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("expected only %q to survive exclusion, got %+v", "b", got)
	}
}

func TestPoolSortsByQualityDescending(t *testing.T) {
	now := time.Now().UTC()
	cfg := config.Defaults()
	episodes := []providers.Episode{
		ep("low", 2, 3, 0, now),
		ep("high", 4, 4, 0, now),
	}
	got := Pool(episodes, nil, cfg, now)
	if len(got) != 2 || got[0].ID != "high" || got[1].ID != "low" {
		t.Fatalf("expected high before low, got %+v", got)
	}
}

func TestPoolTieBreaksByPublishedAtThenID(t *testing.T) {
	now := time.Now().UTC()
	cfg := config.Defaults()
	// Same credibility/insight => same quality_score.
	episodes := []providers.Episode{
		ep("older-b", 4, 4, 5, now),
		ep("newer-a", 4, 4, 1, now),
		ep("newer-z", 4, 4, 1, now),
	}
	got := Pool(episodes, nil, cfg, now)
	if len(got) != 3 {
		t.Fatalf("expected all three to survive, got %+v", got)
	}
	// newer-a and newer-z tie on quality and published_at; id ascending breaks the tie.
	if got[0].ID != "newer-a" || got[1].ID != "newer-z" || got[2].ID != "older-b" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestPoolTruncatesToPoolSize(t *testing.T) {
	now := time.Now().UTC()
	cfg := config.Defaults()
	cfg.CandidatePoolSize = 2
	episodes := []providers.Episode{
		ep("a", 4, 4, 0, now),
		ep("b", 4, 4, 1, now),
		ep("c", 4, 4, 2, now),
	}
	got := Pool(episodes, nil, cfg, now)
	if len(got) != 2 {
		t.Fatalf("expected truncation to pool size 2, got %d", len(got))
	}
}

func TestPoolEmptyInputIsValid(t *testing.T) {
	now := time.Now().UTC()
	cfg := config.Defaults()
	got := Pool(nil, nil, cfg, now)
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %+v", got)
	}
}

func TestPoolFewerThanPoolSizeReturnsAll(t *testing.T) {
	now := time.Now().UTC()
	cfg := config.Defaults()
	episodes := []providers.Episode{
		ep("a", 4, 4, 0, now),
	}
	got := Pool(episodes, nil, cfg, now)
	if len(got) != 1 {
		t.Fatalf("expected single surviving episode, got %+v", got)
	}
}
