package providers

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by the optional VectorStore operations
// (Query, SaveEmbeddings) when a backend does not implement them, e.g.
// a plain key-value embedding cache with no ANN index.
var ErrUnsupported = errors.New("providers: operation not supported by this backend")

// EpisodeProvider is the abstract episode catalog. All operations are
// idempotent and side-effect-free.
type EpisodeProvider interface {
	// GetEpisodes returns episodes matching q. Implementations backed
	// by a fully in-memory dataset may ignore pagination and return the
	// whole catalog; remote-store implementations should honor it.
	GetEpisodes(ctx context.Context, q EpisodeQuery) ([]Episode, error)

	// GetEpisode resolves a single episode by primary id.
	GetEpisode(ctx context.Context, id string) (*Episode, bool, error)

	// GetEpisodeByContentIDMap returns a content_id -> Episode map. It
	// must be derived from an already-in-memory catalog (the same
	// round trip GetEpisodes made, or a cached full dataset) rather
	// than issuing a second full scan.
	GetEpisodeByContentIDMap(ctx context.Context) (map[string]Episode, error)
}

// VectorStore is the abstract embedding store. Namespace is a
// deterministic string of the form
// "{algorithm_version}_s{strategy_version}__{dataset_version}".
type VectorStore interface {
	// HasCache reports whether embeddings exist for namespace at all
	// (used to distinguish "empty result" from "never populated").
	HasCache(ctx context.Context, namespace string) (bool, error)

	// GetEmbeddings returns only the requested ids that exist; missing
	// ids are silently omitted. No other ids ever appear in the result.
	GetEmbeddings(ctx context.Context, ids []string, namespace string) (map[string][]float32, error)

	// Query performs an ANN search, if the backend supports one. It
	// returns ErrUnsupported otherwise.
	Query(ctx context.Context, namespace string, vector []float32, topK int, filter QueryFilter) ([]ScoredRef, error)

	// SaveEmbeddings upserts vectors into namespace. Returns
	// ErrUnsupported if the backend is read-only.
	SaveEmbeddings(ctx context.Context, namespace string, vectors map[string][]float32) error
}

// EngagementStore is the abstract engagement log.
type EngagementStore interface {
	// GetEngagementsForRanking returns engagements ordered by timestamp
	// descending. When userID is non-empty, persisted engagements are
	// merged with requestEngagements (deduped on EpisodeID, preferring
	// the newer timestamp). When userID is empty, requestEngagements is
	// returned unchanged.
	GetEngagementsForRanking(ctx context.Context, userID string, requestEngagements []Engagement, limit int) ([]Engagement, error)

	// RecordEngagement persists e for userID. A no-op if userID is empty.
	RecordEngagement(ctx context.Context, userID string, e Engagement) error
}

// UserStore is the optional per-user profile store.
type UserStore interface {
	GetByID(ctx context.Context, userID string) (*UserProfile, bool, error)
}
