// Package config builds the single, canonical RecommendationConfig the
// ranking pipeline depends on: a frozen struct built from code-level
// defaults plus an explicit override map, validated once at
// construction time.
package config

import (
	"fmt"
	"math"

	json "github.com/alpkeskin/gotoon"
)

// EngagementWeights holds the per-kind weight used when blending
// engagement embeddings into a user vector.
type EngagementWeights struct {
	Click    float64 `json:"click"`
	Bookmark float64 `json:"bookmark"`
	Listen   float64 `json:"listen"`
}

// ColdStartWeights holds the blend weights used when no user vector
// exists.
type ColdStartWeights struct {
	WeightQuality float64 `json:"weight_quality"`
	WeightRecency float64 `json:"weight_recency"`
}

// Config is the immutable, validated configuration a single request's
// pipeline invocation runs against.
type Config struct {
	CredibilityFloor     int     `json:"credibility_floor"`
	CombinedFloor        int     `json:"combined_floor"`
	FreshnessWindowDays  int     `json:"freshness_window_days"`
	CandidatePoolSize    int     `json:"candidate_pool_size"`
	UserVectorLimit      int     `json:"user_vector_limit"`
	EngagementWeights    EngagementWeights `json:"engagement_weights"`
	UseWeightedEngagements bool  `json:"use_weighted_engagements"`

	WeightSimilarity float64 `json:"weight_similarity"`
	WeightQuality    float64 `json:"weight_quality"`
	WeightRecency    float64 `json:"weight_recency"`

	RecencyLambda         float64 `json:"recency_lambda"`
	CredibilityMultiplier float64 `json:"credibility_multiplier"`
	MaxQualityScore       float64 `json:"max_quality_score"`

	SeriesPenaltyAlpha   float64 `json:"series_penalty_alpha"`
	MaxEpisodesPerSeries int     `json:"max_episodes_per_series"`

	CategoryAnchorWeight float64 `json:"category_anchor_weight"`

	ColdStart ColdStartWeights `json:"cold_start"`

	DefaultSimilarityOnMissing float64 `json:"default_similarity_on_missing"`
	SimFallbackLoggingEnabled  bool    `json:"sim_fallback_logging_enabled"`

	// EmbeddingDimension is the expected length of every episode/user
	// vector. Vectors of a different length are dropped.
	EmbeddingDimension int `json:"embedding_dimension"`
}

// Defaults returns the documented default configuration.
func Defaults() Config {
	return Config{
		CredibilityFloor:    2,
		CombinedFloor:       5,
		FreshnessWindowDays: 90,
		CandidatePoolSize:   150,
		UserVectorLimit:     10,
		EngagementWeights: EngagementWeights{
			Click:    1.0,
			Bookmark: 10.0,
			Listen:   1.5,
		},
		UseWeightedEngagements: true,

		WeightSimilarity: 0.85,
		WeightQuality:    0.10,
		WeightRecency:    0.05,

		RecencyLambda:         0.03,
		CredibilityMultiplier: 1.5,
		// The default cap is set to the maximum attainable numerator at
		// the default multiplier (1.5*4+4 = 10), so out of the box the
		// cap is inert; operators who want to flatten top-end quality
		// differences lower it explicitly.
		MaxQualityScore: 10,

		SeriesPenaltyAlpha:   0.7,
		MaxEpisodesPerSeries: 2,

		CategoryAnchorWeight: 0.15,

		ColdStart: ColdStartWeights{
			WeightQuality: 0.60,
			WeightRecency: 0.40,
		},

		DefaultSimilarityOnMissing: 0.5,
		SimFallbackLoggingEnabled:  true,

		EmbeddingDimension: 1536,
	}
}

// knownTopLevelKeys, knownEngagementWeightKeys and knownColdStartKeys
// list every override key recognized at the top level and within
// nested objects. Unknown keys are rejected.
var knownTopLevelKeys = map[string]struct{}{
	"credibility_floor": {}, "combined_floor": {}, "freshness_window_days": {},
	"candidate_pool_size": {}, "user_vector_limit": {}, "engagement_weights": {},
	"use_weighted_engagements": {}, "weight_similarity": {}, "weight_quality": {},
	"weight_recency": {}, "recency_lambda": {}, "credibility_multiplier": {},
	"max_quality_score": {}, "series_penalty_alpha": {}, "max_episodes_per_series": {},
	"category_anchor_weight": {}, "cold_start": {}, "default_similarity_on_missing": {},
	"sim_fallback_logging_enabled": {}, "embedding_dimension": {},
}

var knownEngagementWeightKeys = map[string]struct{}{"click": {}, "bookmark": {}, "listen": {}}
var knownColdStartKeys = map[string]struct{}{"weight_quality": {}, "weight_recency": {}}

// ErrConfigInvalid wraps every validation failure from New.
type ErrConfigInvalid struct {
	Reason string
}

func (e *ErrConfigInvalid) Error() string {
	return fmt.Sprintf("config invalid: %s", e.Reason)
}

// New builds a Config from the documented defaults plus an explicit
// override map (typically decoded from request-scoped or operator JSON),
// and validates the result. overrides may be nil.
func New(overrides map[string]any) (*Config, error) {
	cfg := Defaults()
	if err := applyOverrides(&cfg, overrides); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyOverrides(cfg *Config, overrides map[string]any) error {
	for key := range overrides {
		if _, ok := knownTopLevelKeys[key]; !ok {
			return &ErrConfigInvalid{Reason: fmt.Sprintf("unknown configuration key %q", key)}
		}
	}

	// Round-trip through JSON so nested maps/values coerce onto the
	// typed struct the same way a request body would.
	raw, err := json.Marshal(overrides)
	if err != nil {
		return &ErrConfigInvalid{Reason: fmt.Sprintf("encode overrides: %v", err)}
	}

	var partial struct {
		CredibilityFloor       *int               `json:"credibility_floor"`
		CombinedFloor          *int               `json:"combined_floor"`
		FreshnessWindowDays    *int               `json:"freshness_window_days"`
		CandidatePoolSize      *int               `json:"candidate_pool_size"`
		UserVectorLimit        *int               `json:"user_vector_limit"`
		EngagementWeights      *map[string]any    `json:"engagement_weights"`
		UseWeightedEngagements *bool              `json:"use_weighted_engagements"`
		WeightSimilarity       *float64           `json:"weight_similarity"`
		WeightQuality          *float64           `json:"weight_quality"`
		WeightRecency          *float64           `json:"weight_recency"`
		RecencyLambda          *float64           `json:"recency_lambda"`
		CredibilityMultiplier  *float64           `json:"credibility_multiplier"`
		MaxQualityScore        *float64           `json:"max_quality_score"`
		SeriesPenaltyAlpha     *float64           `json:"series_penalty_alpha"`
		MaxEpisodesPerSeries   *int               `json:"max_episodes_per_series"`
		CategoryAnchorWeight   *float64           `json:"category_anchor_weight"`
		ColdStart              *map[string]any    `json:"cold_start"`
		DefaultSimilarityOnMissing *float64       `json:"default_similarity_on_missing"`
		SimFallbackLoggingEnabled  *bool          `json:"sim_fallback_logging_enabled"`
		EmbeddingDimension     *int               `json:"embedding_dimension"`
	}
	if err := json.Unmarshal(raw, &partial); err != nil {
		return &ErrConfigInvalid{Reason: fmt.Sprintf("decode overrides: %v", err)}
	}

	if partial.CredibilityFloor != nil {
		cfg.CredibilityFloor = *partial.CredibilityFloor
	}
	if partial.CombinedFloor != nil {
		cfg.CombinedFloor = *partial.CombinedFloor
	}
	if partial.FreshnessWindowDays != nil {
		cfg.FreshnessWindowDays = *partial.FreshnessWindowDays
	}
	if partial.CandidatePoolSize != nil {
		cfg.CandidatePoolSize = *partial.CandidatePoolSize
	}
	if partial.UserVectorLimit != nil {
		cfg.UserVectorLimit = *partial.UserVectorLimit
	}
	if partial.EngagementWeights != nil {
		for key := range *partial.EngagementWeights {
			if _, ok := knownEngagementWeightKeys[key]; !ok {
				return &ErrConfigInvalid{Reason: fmt.Sprintf("unknown engagement_weights key %q", key)}
			}
		}
		ewRaw, _ := json.Marshal(*partial.EngagementWeights)
		_ = json.Unmarshal(ewRaw, &cfg.EngagementWeights)
	}
	if partial.UseWeightedEngagements != nil {
		cfg.UseWeightedEngagements = *partial.UseWeightedEngagements
	}
	if partial.WeightSimilarity != nil {
		cfg.WeightSimilarity = *partial.WeightSimilarity
	}
	if partial.WeightQuality != nil {
		cfg.WeightQuality = *partial.WeightQuality
	}
	if partial.WeightRecency != nil {
		cfg.WeightRecency = *partial.WeightRecency
	}
	if partial.RecencyLambda != nil {
		cfg.RecencyLambda = *partial.RecencyLambda
	}
	if partial.CredibilityMultiplier != nil {
		cfg.CredibilityMultiplier = *partial.CredibilityMultiplier
	}
	if partial.MaxQualityScore != nil {
		cfg.MaxQualityScore = *partial.MaxQualityScore
	}
	if partial.SeriesPenaltyAlpha != nil {
		cfg.SeriesPenaltyAlpha = *partial.SeriesPenaltyAlpha
	}
	if partial.MaxEpisodesPerSeries != nil {
		cfg.MaxEpisodesPerSeries = *partial.MaxEpisodesPerSeries
	}
	if partial.CategoryAnchorWeight != nil {
		cfg.CategoryAnchorWeight = *partial.CategoryAnchorWeight
	}
	if partial.ColdStart != nil {
		for key := range *partial.ColdStart {
			if _, ok := knownColdStartKeys[key]; !ok {
				return &ErrConfigInvalid{Reason: fmt.Sprintf("unknown cold_start key %q", key)}
			}
		}
		csRaw, _ := json.Marshal(*partial.ColdStart)
		_ = json.Unmarshal(csRaw, &cfg.ColdStart)
	}
	if partial.DefaultSimilarityOnMissing != nil {
		cfg.DefaultSimilarityOnMissing = *partial.DefaultSimilarityOnMissing
	}
	if partial.SimFallbackLoggingEnabled != nil {
		cfg.SimFallbackLoggingEnabled = *partial.SimFallbackLoggingEnabled
	}
	if partial.EmbeddingDimension != nil {
		cfg.EmbeddingDimension = *partial.EmbeddingDimension
	}
	return nil
}

// Validate enforces the configuration invariants: non-negative blend
// weights, consistent floors, finite values, non-negative user-vector
// limit.
func (c Config) Validate() error {
	floats := map[string]float64{
		"weight_similarity":             c.WeightSimilarity,
		"weight_quality":                c.WeightQuality,
		"weight_recency":                c.WeightRecency,
		"recency_lambda":                c.RecencyLambda,
		"credibility_multiplier":        c.CredibilityMultiplier,
		"max_quality_score":             c.MaxQualityScore,
		"series_penalty_alpha":          c.SeriesPenaltyAlpha,
		"category_anchor_weight":        c.CategoryAnchorWeight,
		"default_similarity_on_missing": c.DefaultSimilarityOnMissing,
		"cold_start.weight_quality":     c.ColdStart.WeightQuality,
		"cold_start.weight_recency":     c.ColdStart.WeightRecency,
		"engagement_weights.click":      c.EngagementWeights.Click,
		"engagement_weights.bookmark":   c.EngagementWeights.Bookmark,
		"engagement_weights.listen":     c.EngagementWeights.Listen,
	}
	for name, v := range floats {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ErrConfigInvalid{Reason: fmt.Sprintf("%s must be finite", name)}
		}
	}

	negativeMustBeNonNegative := map[string]float64{
		"weight_similarity": c.WeightSimilarity,
		"weight_quality":    c.WeightQuality,
		"weight_recency":    c.WeightRecency,
	}
	for name, v := range negativeMustBeNonNegative {
		if v < 0 {
			return &ErrConfigInvalid{Reason: fmt.Sprintf("%s must be non-negative", name)}
		}
	}

	if c.UserVectorLimit < 0 {
		return &ErrConfigInvalid{Reason: "user_vector_limit must be non-negative"}
	}
	if c.CandidatePoolSize < 0 {
		return &ErrConfigInvalid{Reason: "candidate_pool_size must be non-negative"}
	}
	if c.CombinedFloor < c.CredibilityFloor {
		return &ErrConfigInvalid{Reason: "combined_floor must be at least credibility_floor"}
	}
	if c.MaxEpisodesPerSeries <= 0 {
		return &ErrConfigInvalid{Reason: "max_episodes_per_series must be positive"}
	}
	if c.SeriesPenaltyAlpha < 0 || c.SeriesPenaltyAlpha > 1 {
		return &ErrConfigInvalid{Reason: "series_penalty_alpha must be in [0, 1]"}
	}
	if c.EmbeddingDimension <= 0 {
		return &ErrConfigInvalid{Reason: "embedding_dimension must be positive"}
	}
	if c.FreshnessWindowDays < 0 {
		return &ErrConfigInvalid{Reason: "freshness_window_days must be non-negative"}
	}
	return nil
}
