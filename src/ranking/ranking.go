// Package ranking implements Stage B of the ranking pipeline: blended
// similarity/quality/recency scoring over a candidate set, followed by
// a greedy series-diversity selection and badge assignment.
package ranking

import (
	"context"
	"time"

	"github.com/castsignal/foryou-engine/src/config"
	"github.com/castsignal/foryou-engine/src/providers"
	"github.com/castsignal/foryou-engine/src/scoring"
	"github.com/castsignal/foryou-engine/src/telemetry"
)

// Badge is one of the fixed-priority labels Rank may attach to a
// selected episode.
type Badge string

const (
	BadgeHighCredibility Badge = "high_credibility"
	BadgeHighInsight     Badge = "high_insight"
	BadgeDataRich        Badge = "data_rich"
	BadgeContrarian      Badge = "contrarian"
)

// badgePriority fixes the order badges are considered in; at most two
// survive per episode.
var badgePriority = []Badge{BadgeHighCredibility, BadgeHighInsight, BadgeDataRich, BadgeContrarian}

const maxBadgesPerEpisode = 2

// ScoredEpisode is one entry in the ranked output queue.
type ScoredEpisode struct {
	Episode        providers.Episode
	Similarity     float64
	Quality        float64
	Recency        float64
	FinalScore     float64
	EffectiveScore float64
	Badges         []Badge
}

// Input bundles everything Rank needs for one invocation.
type Input struct {
	Candidates []providers.Episode
	// Embeddings maps episode id to its vector.
	Embeddings map[string][]float32
	// UserVector is nil when no user vector is available (cold start).
	UserVector []float32
	// SimilarityMap is the precomputed id-or-content_id -> similarity
	// map from an external vector-store query, or nil if no query ran.
	SimilarityMap map[string]float64
	Config        config.Config
	Now           time.Time
	Limit         int
}

// candidateScore is the per-candidate working state before selection.
type candidateScore struct {
	episode    providers.Episode
	similarity float64
	quality    float64
	recency    float64
	final      float64
}

// Rank scores Input.Candidates and greedily selects up to Input.Limit
// episodes honoring the series-diversity constraints.
func Rank(ctx context.Context, in Input, sink telemetry.Sink) []ScoredEpisode {
	if sink == nil {
		sink = telemetry.NoopSink{}
	}
	if in.Limit <= 0 || len(in.Candidates) == 0 {
		return nil
	}

	coldStart := in.UserVector == nil && in.SimilarityMap == nil

	scores := make([]candidateScore, 0, len(in.Candidates))
	for _, ep := range in.Candidates {
		sim := similarity(ctx, ep, in, sink)
		q := scoring.QualityScore(ep.Credibility, ep.Insight, in.Config.CredibilityMultiplier, in.Config.MaxQualityScore)
		r := scoring.RecencyScore(scoring.DaysSince(ep.PublishedAt, in.Now), in.Config.RecencyLambda)

		var final float64
		if coldStart {
			final = in.Config.ColdStart.WeightQuality*q + in.Config.ColdStart.WeightRecency*r
		} else {
			final = in.Config.WeightSimilarity*sim + in.Config.WeightQuality*q + in.Config.WeightRecency*r
		}

		scores = append(scores, candidateScore{episode: ep, similarity: sim, quality: q, recency: r, final: final})
	}

	selected := selectDiverse(ctx, scores, in.Config, in.Limit, sink)

	result := make([]ScoredEpisode, 0, len(selected))
	for _, sel := range selected {
		result = append(result, ScoredEpisode{
			Episode:        sel.candidateScore.episode,
			Similarity:     sel.candidateScore.similarity,
			Quality:        sel.candidateScore.quality,
			Recency:        sel.candidateScore.recency,
			FinalScore:     sel.candidateScore.final,
			EffectiveScore: sel.effectiveScore,
			Badges:         assignBadges(sel.candidateScore),
		})
	}
	return result
}

func similarity(ctx context.Context, ep providers.Episode, in Input, sink telemetry.Sink) float64 {
	if in.SimilarityMap != nil {
		if v, ok := in.SimilarityMap[ep.ID]; ok {
			return v
		}
		if ep.ContentID != "" {
			if v, ok := in.SimilarityMap[ep.ContentID]; ok {
				return v
			}
		}
		sink.Emit(ctx, telemetry.SimilarityMissingInQueryResults, "episode_id", ep.ID)
		emitSimFallback(ctx, in, sink, ep.ID, "missing_in_query_results")
		return in.Config.DefaultSimilarityOnMissing
	}

	if in.UserVector != nil {
		if vec, ok := in.Embeddings[ep.ID]; ok && len(vec) == len(in.UserVector) {
			sim, err := scoring.CosineSimilarity(in.UserVector, vec)
			if err == nil {
				return sim
			}
		}
	}

	sink.Emit(ctx, telemetry.SimilarityFetchPathNoPinecone, "episode_id", ep.ID)
	emitSimFallback(ctx, in, sink, ep.ID, "fetch_path_no_pinecone")
	return in.Config.DefaultSimilarityOnMissing
}

// emitSimFallback records the default-similarity fallback under the
// dedicated sim_fallback event, gated by config so a deployment can
// turn off this (noisier, per-episode) signal while keeping the
// specific SIMILARITY_* events above.
func emitSimFallback(ctx context.Context, in Input, sink telemetry.Sink, episodeID, reason string) {
	if !in.Config.SimFallbackLoggingEnabled {
		return
	}
	sink.Emit(ctx, telemetry.SimFallback, "episode_id", episodeID, "reason", reason)
}

type selection struct {
	candidateScore candidateScore
	effectiveScore float64
}

// selectDiverse implements the greedy in-processing series-diversity
// selection: each slot picks the candidate maximizing
// final * series_penalty_alpha^series_count, subject to the
// at-most-max-per-series hard constraint and the no-adjacent-same-
// series soft constraint (relaxed only when no alternative exists).
func selectDiverse(ctx context.Context, scores []candidateScore, cfg config.Config, limit int, sink telemetry.Sink) []selection {
	seriesCount := make(map[string]int)
	chosen := make(map[string]struct{}, limit)
	lastSeries := ""
	out := make([]selection, 0, limit)

	for len(out) < limit {
		best, bestEff, ok := pickBest(scores, chosen, seriesCount, cfg, lastSeries, true)
		if !ok {
			best, bestEff, ok = pickBest(scores, chosen, seriesCount, cfg, lastSeries, false)
			if ok {
				sink.Emit(ctx, telemetry.SeriesAdjacencyForced, "series_id", best.episode.SeriesID)
			}
		}
		if !ok {
			break
		}
		out = append(out, selection{candidateScore: best, effectiveScore: bestEff})
		chosen[best.episode.ID] = struct{}{}
		seriesCount[best.episode.SeriesID]++
		lastSeries = best.episode.SeriesID
	}
	return out
}

// pickBest scans scores for the candidate maximizing effective_score
// subject to the at-most-per-series cap and, when enforceAdjacency is
// true, the no-adjacent-same-series constraint.
func pickBest(scores []candidateScore, chosen map[string]struct{}, seriesCount map[string]int, cfg config.Config, lastSeries string, enforceAdjacency bool) (candidateScore, float64, bool) {
	var (
		best    candidateScore
		bestEff float64
		found   bool
	)
	for _, c := range scores {
		if _, already := chosen[c.episode.ID]; already {
			continue
		}
		if seriesCount[c.episode.SeriesID] >= cfg.MaxEpisodesPerSeries {
			continue
		}
		if enforceAdjacency && lastSeries != "" && c.episode.SeriesID == lastSeries {
			continue
		}
		eff := c.final * pow(cfg.SeriesPenaltyAlpha, seriesCount[c.episode.SeriesID])
		if !found || better(c, eff, best, bestEff) {
			best, bestEff, found = c, eff, true
		}
	}
	return best, bestEff, found
}

// better reports whether candidate a (with effective score effA) should
// be preferred over the current best b (effB), breaking ties by higher
// final score, then more recent published_at, then id ascending.
func better(a candidateScore, effA float64, b candidateScore, effB float64) bool {
	if effA != effB {
		return effA > effB
	}
	if a.final != b.final {
		return a.final > b.final
	}
	if !a.episode.PublishedAt.Equal(b.episode.PublishedAt) {
		return a.episode.PublishedAt.After(b.episode.PublishedAt)
	}
	return a.episode.ID < b.episode.ID
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// assignBadges applies the fixed-priority badge thresholds, capping
// the result at maxBadgesPerEpisode.
func assignBadges(c candidateScore) []Badge {
	var badges []Badge
	for _, b := range badgePriority {
		if len(badges) >= maxBadgesPerEpisode {
			break
		}
		if qualifies(b, c) {
			badges = append(badges, b)
		}
	}
	return badges
}

func qualifies(b Badge, c candidateScore) bool {
	switch b {
	case BadgeHighCredibility:
		return c.episode.Credibility == 4
	case BadgeHighInsight:
		return c.episode.Insight == 4
	case BadgeDataRich:
		return c.episode.Credibility >= 3 && c.episode.Insight >= 3
	case BadgeContrarian:
		return c.similarity < 0.3 && c.quality >= 0.6
	default:
		return false
	}
}
