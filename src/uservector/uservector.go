// Package uservector computes the per-request user vector the ranking
// pipeline blends candidates against: a mean or weighted mean over
// recent engagement embeddings, optionally blended with a category
// anchor vector carried on the user's profile.
package uservector

import (
	"context"
	"sort"

	"github.com/castsignal/foryou-engine/src/config"
	"github.com/castsignal/foryou-engine/src/providers"
	"github.com/castsignal/foryou-engine/src/telemetry"
)

// Result is the outcome of Compute: an optional vector, the number of
// engagement/embedding pairs that contributed to it, and whether the
// session should be flagged a cold start.
type Result struct {
	Vector       []float32
	EpisodeCount int
	ColdStart    bool
}

// Input bundles everything Compute needs for one request.
type Input struct {
	Engagements []providers.Engagement
	// Embeddings maps episode id to its vector.
	Embeddings map[string][]float32
	// ContentIDIndex maps content_id to the episode it identifies, used
	// to resolve engagements that reference content_id rather than id.
	ContentIDIndex map[string]providers.Episode
	UserProfile    *providers.UserProfile
	Config         config.Config
}

// Compute implements the four exhaustive user-vector cases.
func Compute(ctx context.Context, in Input, sink telemetry.Sink) Result {
	if sink == nil {
		sink = telemetry.NoopSink{}
	}

	anchor := anchorVector(in.UserProfile)

	if len(in.Engagements) == 0 {
		if anchor != nil {
			// Case 3: no engagements, category anchor present.
			return Result{Vector: anchor, EpisodeCount: 0, ColdStart: true}
		}
		// Case 1: no engagements, no category anchor.
		return Result{Vector: nil, EpisodeCount: 0, ColdStart: true}
	}

	mean, n := engagementMean(ctx, in, sink)
	if n == 0 {
		if anchor != nil {
			return Result{Vector: anchor, EpisodeCount: 0, ColdStart: true}
		}
		return Result{Vector: nil, EpisodeCount: 0, ColdStart: true}
	}

	if anchor == nil {
		// Case 2: engagements only.
		return Result{Vector: mean, EpisodeCount: n, ColdStart: false}
	}

	// Case 4: engagements and category anchor.
	if len(mean) != len(anchor) {
		sink.Emit(ctx, telemetry.UserVectorDimMismatch,
			"engagement_dim", len(mean), "anchor_dim", len(anchor))
		return Result{Vector: mean, EpisodeCount: n, ColdStart: false}
	}

	alpha := in.Config.CategoryAnchorWeight
	blended := make([]float32, len(mean))
	for i := range mean {
		blended[i] = float32((1-alpha)*float64(mean[i]) + alpha*float64(anchor[i]))
	}
	return Result{Vector: blended, EpisodeCount: n, ColdStart: false}
}

func anchorVector(profile *providers.UserProfile) []float32 {
	if profile == nil || len(profile.CategoryAnchorVector) == 0 {
		return nil
	}
	return profile.CategoryAnchorVector
}

// engagementMean sorts engagements by timestamp descending (ties
// broken by episode_id ascending), takes the first
// Config.UserVectorLimit, resolves each to an embedding, and returns
// the unweighted or weighted mean of the kept vectors.
func engagementMean(ctx context.Context, in Input, sink telemetry.Sink) ([]float32, int) {
	ordered := make([]providers.Engagement, len(in.Engagements))
	copy(ordered, in.Engagements)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.EpisodeID < b.EpisodeID
	})

	limit := in.Config.UserVectorLimit
	if limit >= 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}

	type kept = struct {
		vector []float32
		weight float64
	}
	var pairs []kept

	for _, eng := range ordered {
		vec, ok := resolveEmbedding(eng.EpisodeID, in)
		if !ok {
			sink.Emit(ctx, telemetry.EngagementEmbeddingSkipped,
				"episode_id", eng.EpisodeID, "kind", string(eng.Kind))
			continue
		}
		if _, recognized := providers.RecognizedEngagementKinds[eng.Kind]; !recognized {
			sink.Emit(ctx, telemetry.EngagementKindUnrecognized,
				"episode_id", eng.EpisodeID, "kind", string(eng.Kind))
			continue
		}
		pairs = append(pairs, kept{vector: vec, weight: engagementWeight(eng.Kind, in.Config)})
	}

	if len(pairs) == 0 {
		return nil, 0
	}

	// Drop any pair whose embedding doesn't match the first kept
	// vector's length: a stale or mixed-model embedding store can
	// otherwise hand back vectors of differing lengths, which would
	// panic the accumulation loop below.
	expectedDim := len(pairs[0].vector)
	filtered := make([]kept, 0, len(pairs))
	for _, p := range pairs {
		if len(p.vector) != expectedDim {
			sink.Emit(ctx, telemetry.DimensionMismatchDropped,
				"expected_dim", expectedDim, "actual_dim", len(p.vector))
			continue
		}
		filtered = append(filtered, p)
	}
	pairs = filtered

	n := len(pairs)
	if n == 0 {
		return nil, 0
	}

	dim := expectedDim
	useWeighted := in.Config.UseWeightedEngagements && weightsValid(pairs)
	if in.Config.UseWeightedEngagements && !useWeighted {
		sink.Emit(ctx, telemetry.UserVectorWeightsInvalid)
	}

	mean := make([]float64, dim)
	if useWeighted {
		var totalWeight float64
		for _, p := range pairs {
			totalWeight += p.weight
		}
		for _, p := range pairs {
			for i, v := range p.vector {
				mean[i] += p.weight / totalWeight * float64(v)
			}
		}
	} else {
		for _, p := range pairs {
			for i, v := range p.vector {
				mean[i] += float64(v) / float64(n)
			}
		}
	}

	result := make([]float32, dim)
	for i, v := range mean {
		result[i] = float32(v)
	}
	return result, n
}

// resolveEmbedding tries episode_id first, then content_id (via the
// content-id index) to find a matching embedding.
func resolveEmbedding(episodeID string, in Input) ([]float32, bool) {
	if vec, ok := in.Embeddings[episodeID]; ok {
		return vec, true
	}
	if ep, ok := in.ContentIDIndex[episodeID]; ok {
		if vec, ok := in.Embeddings[ep.ID]; ok {
			return vec, true
		}
	}
	return nil, false
}

func engagementWeight(kind providers.EngagementKind, cfg config.Config) float64 {
	switch kind {
	case providers.EngagementClick:
		return cfg.EngagementWeights.Click
	case providers.EngagementBookmark:
		return cfg.EngagementWeights.Bookmark
	case providers.EngagementListen:
		return cfg.EngagementWeights.Listen
	default:
		return 0
	}
}

// weightsValid reports whether every kept pair has a non-negative
// weight and the weights sum to a positive value.
func weightsValid(pairs []struct {
	vector []float32
	weight float64
}) bool {
	var sum float64
	for _, p := range pairs {
		if p.weight < 0 {
			return false
		}
		sum += p.weight
	}
	return sum > 0
}
