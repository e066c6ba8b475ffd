// Package candidates implements Stage A of the ranking pipeline: a
// pure quality/freshness/exclusion filter over the episode catalog,
// producing a bounded, ordered candidate pool for Stage B to score.
package candidates

import (
	"sort"
	"time"

	"github.com/castsignal/foryou-engine/src/config"
	"github.com/castsignal/foryou-engine/src/providers"
	"github.com/castsignal/foryou-engine/src/scoring"
)

// Pool filters episodes to quality/freshness/exclusion criteria, sorts
// them by quality_score descending with deterministic tie-breaks, and
// truncates to cfg.CandidatePoolSize. A nil or empty episodes slice
// yields an empty (non-nil) result.
func Pool(episodes []providers.Episode, excludedIDs map[string]struct{}, cfg config.Config, now time.Time) []providers.Episode {
	type scored struct {
		episode providers.Episode
		quality float64
	}

	kept := make([]scored, 0, len(episodes))
	for _, ep := range episodes {
		if _, excluded := excludedIDs[ep.ID]; excluded {
			continue
		}
		if ep.Credibility < cfg.CredibilityFloor {
			continue
		}
		if ep.Credibility+ep.Insight < cfg.CombinedFloor {
			continue
		}
		if scoring.DaysSince(ep.PublishedAt, now) > cfg.FreshnessWindowDays {
			continue
		}
		q := scoring.QualityScore(ep.Credibility, ep.Insight, cfg.CredibilityMultiplier, cfg.MaxQualityScore)
		kept = append(kept, scored{episode: ep, quality: q})
	}

	sort.Slice(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.quality != b.quality {
			return a.quality > b.quality
		}
		if !a.episode.PublishedAt.Equal(b.episode.PublishedAt) {
			return a.episode.PublishedAt.After(b.episode.PublishedAt)
		}
		return a.episode.ID < b.episode.ID
	})

	if cfg.CandidatePoolSize >= 0 && len(kept) > cfg.CandidatePoolSize {
		kept = kept[:cfg.CandidatePoolSize]
	}

	result := make([]providers.Episode, len(kept))
	for i, sc := range kept {
		result[i] = sc.episode
	}
	return result
}
