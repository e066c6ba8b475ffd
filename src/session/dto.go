// Package session implements the request-scoped session orchestrator
// (C8) and the in-memory session store (C9): it assembles inputs from
// the pluggable provider contracts with concurrent I/O, invokes the
// ranking pipeline, and keeps the resulting queue around for
// pagination and engagement write-back.
package session

import (
	"time"

	"github.com/castsignal/foryou-engine/src/providers"
	"github.com/castsignal/foryou-engine/src/ranking"
)

// CreateRequest is the input to CreateSession.
type CreateRequest struct {
	UserID      string
	Engagements []providers.Engagement
	ExcludedIDs []string
	// UserVector, when supplied by a client, is sent to the vector
	// store's Query fast path in place of C4's engagement-based vector.
	// When the store does not support Query, it is not used: the fetch
	// path ranks against the vector C4 computes from engagements.
	UserVector []float32
	// Limit is the requested page size; 0 means the default of 10.
	Limit int
}

// EpisodeView is the read-only projection of a scored episode returned
// to callers; it flattens ranking.ScoredEpisode for serialization.
type EpisodeView struct {
	Episode        providers.Episode `json:"episode"`
	Similarity     float64           `json:"similarity"`
	Quality        float64           `json:"quality"`
	Recency        float64           `json:"recency"`
	FinalScore     float64           `json:"final_score"`
	EffectiveScore float64           `json:"effective_score"`
	Badges         []ranking.Badge   `json:"badges,omitempty"`
}

func viewOf(e ranking.ScoredEpisode) EpisodeView {
	return EpisodeView{
		Episode:        e.Episode,
		Similarity:     e.Similarity,
		Quality:        e.Quality,
		Recency:        e.Recency,
		FinalScore:     e.FinalScore,
		EffectiveScore: e.EffectiveScore,
		Badges:         e.Badges,
	}
}

// DebugInfo reflects the actual weights used for the request, not
// hard-coded documentation defaults.
type DebugInfo struct {
	ScoringWeights struct {
		Similarity float64 `json:"similarity"`
		Quality    float64 `json:"quality"`
		Recency    float64 `json:"recency"`
	} `json:"scoring_weights"`
	UserVectorEpisodeCount int `json:"user_vector_episode_count"`
}

// SessionResponse is returned by CreateSession.
type SessionResponse struct {
	SessionID        string        `json:"session_id"`
	Episodes         []EpisodeView `json:"episodes"`
	TotalInQueue     int           `json:"total_in_queue"`
	ShownCount       int           `json:"shown_count"`
	RemainingCount   int           `json:"remaining_count"`
	ColdStart        bool          `json:"cold_start"`
	AlgorithmVersion string        `json:"algorithm_version"`
	DatasetVersion   string        `json:"dataset_version"`
	Debug            DebugInfo     `json:"debug"`
}

// NextResponse is returned by Next.
type NextResponse struct {
	Episodes       []EpisodeView `json:"episodes"`
	ShownCount     int           `json:"shown_count"`
	RemainingCount int           `json:"remaining_count"`
}

// EngageRequest is the input to Engage.
type EngageRequest struct {
	SessionID    string
	EpisodeID    string
	Kind         providers.EngagementKind
	UserID       string
	EpisodeTitle string
	SeriesName   string
}

// EngageResponse is returned by Engage.
type EngageResponse struct {
	OK bool `json:"ok"`
}

// Session is the server-side record holding a ranked queue and
// pagination cursor for a single "For You" request stream. It is
// never made durable across process restarts.
type Session struct {
	SessionID              string
	Queue                  []ranking.ScoredEpisode
	Cursor                 int
	ColdStart              bool
	CreatedAt              time.Time
	AlgorithmVersion       string
	DatasetVersion         string
	EngagedIDs             map[string]struct{}
	ExcludedIDs            map[string]struct{}
	UserVectorEpisodeCount int
	Weights                DebugInfo
}

func (s *Session) clone() *Session {
	cp := *s
	cp.Queue = append([]ranking.ScoredEpisode(nil), s.Queue...)
	cp.EngagedIDs = cloneSet(s.EngagedIDs)
	cp.ExcludedIDs = cloneSet(s.ExcludedIDs)
	return &cp
}

func cloneSet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}
