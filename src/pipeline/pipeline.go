// Package pipeline orchestrates the pure ranking core: it normalizes
// engagements, runs Stage A (candidates) when no external vector query
// supplied a candidate set, computes the user vector, and invokes
// Stage B (ranking). It performs no I/O and retains no state across
// calls.
package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/castsignal/foryou-engine/src/candidates"
	"github.com/castsignal/foryou-engine/src/config"
	"github.com/castsignal/foryou-engine/src/providers"
	"github.com/castsignal/foryou-engine/src/ranking"
	"github.com/castsignal/foryou-engine/src/telemetry"
	"github.com/castsignal/foryou-engine/src/uservector"
)

// Result is the pipeline's output.
type Result struct {
	Queue     []ranking.ScoredEpisode
	ColdStart bool
	// UserVectorPresent reports whether Stage B received a non-nil
	// user vector (from uservector.Compute). Together with whether
	// SimilarityMap was supplied, this is the exact condition Stage B
	// uses to pick cold-start vs. blended weights, and can diverge
	// from ColdStart (which reflects engagement history, not what
	// ranking actually used).
	UserVectorPresent      bool
	UserVectorEpisodeCount int
}

// Input bundles everything Run needs for one invocation.
type Input struct {
	Engagements []providers.Engagement
	ExcludedIDs map[string]struct{}

	// Episodes is the full catalog to run Stage A over. Ignored when
	// CandidatesFromQuery is non-nil.
	Episodes []providers.Episode

	// CandidatesFromQuery, when non-nil, is used directly as the Stage
	// B candidate set and Stage A is skipped.
	CandidatesFromQuery []providers.Episode
	// SimilarityMap is the precomputed similarity map that accompanies
	// CandidatesFromQuery, or nil.
	SimilarityMap map[string]float64

	Embeddings     map[string][]float32
	ContentIDIndex map[string]providers.Episode
	UserProfile    *providers.UserProfile

	Config config.Config
	Now    time.Time
	Limit  int
}

// Run executes the full C3 → C4 → C5 orchestration described above.
func Run(ctx context.Context, in Input, sink telemetry.Sink) Result {
	if sink == nil {
		sink = telemetry.NoopSink{}
	}

	engagements := NormalizeEngagements(in.Engagements)

	var candidateSet []providers.Episode
	if in.CandidatesFromQuery != nil {
		candidateSet = in.CandidatesFromQuery
	} else {
		candidateSet = candidates.Pool(in.Episodes, in.ExcludedIDs, in.Config, in.Now)
	}

	uvResult := uservector.Compute(ctx, uservector.Input{
		Engagements:    engagements,
		Embeddings:     in.Embeddings,
		ContentIDIndex: in.ContentIDIndex,
		UserProfile:    in.UserProfile,
		Config:         in.Config,
	}, sink)

	queue := ranking.Rank(ctx, ranking.Input{
		Candidates:    candidateSet,
		Embeddings:    in.Embeddings,
		UserVector:    uvResult.Vector,
		SimilarityMap: in.SimilarityMap,
		Config:        in.Config,
		Now:           in.Now,
		Limit:         in.Limit,
	}, sink)

	return Result{
		Queue:                  queue,
		ColdStart:              uvResult.ColdStart,
		UserVectorPresent:      uvResult.Vector != nil,
		UserVectorEpisodeCount: uvResult.EpisodeCount,
	}
}

// NormalizeEngagements drops malformed entries (empty episode_id),
// dedupes by episode_id preferring the newer timestamp, and returns
// the result sorted by timestamp descending (tie-break: episode_id
// ascending) so downstream consumers see a deterministic order.
func NormalizeEngagements(in []providers.Engagement) []providers.Engagement {
	latest := make(map[string]providers.Engagement, len(in))
	for _, e := range in {
		if e.EpisodeID == "" {
			continue
		}
		cur, ok := latest[e.EpisodeID]
		if !ok || e.Timestamp.After(cur.Timestamp) {
			latest[e.EpisodeID] = e
		}
	}

	out := make([]providers.Engagement, 0, len(latest))
	for _, e := range latest {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.EpisodeID < b.EpisodeID
	})
	return out
}
