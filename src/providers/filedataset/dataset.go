// Package filedataset implements the provider contracts over a single
// JSON-backed, fully in-memory dataset: an EpisodeProvider, VectorStore,
// and EngagementStore suitable for local development, tests, and the
// bundled demo command.
package filedataset

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/castsignal/foryou-engine/src/providers"
	"github.com/castsignal/foryou-engine/src/recerr"
	"github.com/castsignal/foryou-engine/src/scoring"
)

// record is the on-disk shape of one catalog entry: an Episode plus its
// optional embedding.
type record struct {
	providers.Episode
	Embedding []float32 `json:"embedding,omitempty"`
}

// Dataset is an in-memory episode catalog with embeddings and a
// per-user engagement log, all guarded by a single RWMutex following
// the teacher's InMemoryStore shape.
type Dataset struct {
	mu          sync.RWMutex
	episodes    map[string]providers.Episode
	contentToID map[string]string
	embeddings  map[string][]float32
	engagements map[string][]providers.Engagement
}

// New returns an empty Dataset.
func New() *Dataset {
	return &Dataset{
		episodes:    make(map[string]providers.Episode),
		contentToID: make(map[string]string),
		embeddings:  make(map[string][]float32),
		engagements: make(map[string][]providers.Engagement),
	}
}

// LoadFile reads a JSON array of records (an Episode plus an optional
// embedding field) from path and populates the dataset.
func LoadFile(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, recerr.Wrap(recerr.KindUpstreamUnavailable, "read dataset file", err)
	}
	var records []record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, recerr.Wrap(recerr.KindInputInvalid, "decode dataset file", err)
	}
	ds := New()
	for _, r := range records {
		ds.Put(r.Episode, r.Embedding)
	}
	return ds, nil
}

// Put inserts or replaces an episode and its embedding (embedding may
// be nil).
func (d *Dataset) Put(ep providers.Episode, embedding []float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.episodes[ep.ID] = ep
	if ep.ContentID != "" {
		d.contentToID[ep.ContentID] = ep.ID
	}
	if embedding != nil {
		d.embeddings[ep.ID] = embedding
	}
}

// GetEpisodes implements providers.EpisodeProvider. The in-memory
// dataset applies q's Since/Until window but ignores its Limit/Offset
// pagination fields, returning every matching episode sorted by id for
// determinism.
func (d *Dataset) GetEpisodes(_ context.Context, q providers.EpisodeQuery) ([]providers.Episode, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]providers.Episode, 0, len(d.episodes))
	for _, ep := range d.episodes {
		if q.Since != nil && ep.PublishedAt.Before(*q.Since) {
			continue
		}
		if q.Until != nil && ep.PublishedAt.After(*q.Until) {
			continue
		}
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetEpisode implements providers.EpisodeProvider.
func (d *Dataset) GetEpisode(_ context.Context, id string) (*providers.Episode, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ep, ok := d.episodes[id]
	if !ok {
		return nil, false, nil
	}
	cp := ep
	return &cp, true, nil
}

// GetEpisodeByContentIDMap implements providers.EpisodeProvider by
// deriving the map from the already-loaded in-memory catalog.
func (d *Dataset) GetEpisodeByContentIDMap(_ context.Context) (map[string]providers.Episode, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]providers.Episode, len(d.contentToID))
	for contentID, id := range d.contentToID {
		out[contentID] = d.episodes[id]
	}
	return out, nil
}

// HasCache implements providers.VectorStore: the in-memory dataset
// always reports a populated cache once it holds at least one
// embedding, regardless of namespace (it carries only one generation
// of vectors at a time).
func (d *Dataset) HasCache(_ context.Context, _ string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.embeddings) > 0, nil
}

// GetEmbeddings implements providers.VectorStore.
func (d *Dataset) GetEmbeddings(_ context.Context, ids []string, _ string) (map[string][]float32, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string][]float32, len(ids))
	for _, id := range ids {
		if vec, ok := d.embeddings[id]; ok {
			out[id] = vec
		}
	}
	return out, nil
}

// Query implements providers.VectorStore with a brute-force cosine-
// similarity scan; there is no ANN index over a plain in-memory map, so
// this is O(n) over the catalog, acceptable at dataset scale.
func (d *Dataset) Query(_ context.Context, _ string, vector []float32, topK int, filter providers.QueryFilter) ([]providers.ScoredRef, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	type scored struct {
		ref providers.ScoredRef
		sim float64
	}
	var candidates []scored
	for id, vec := range d.embeddings {
		if _, excluded := filter.ExcludedIDs[id]; excluded {
			continue
		}
		ep, ok := d.episodes[id]
		if !ok {
			continue
		}
		if ep.Credibility < filter.CredibilityFloor {
			continue
		}
		if ep.Credibility+ep.Insight < filter.CombinedFloor {
			continue
		}
		if filter.FreshnessWindowDays > 0 && scoring.DaysSince(ep.PublishedAt, filter.Now) > filter.FreshnessWindowDays {
			continue
		}
		sim, err := scoring.CosineSimilarity(vector, vec)
		if err != nil {
			continue
		}
		candidates = append(candidates, scored{ref: providers.ScoredRef{ID: id, Similarity: sim}, sim: sim})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].ref.ID < candidates[j].ref.ID
	})
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	out := make([]providers.ScoredRef, len(candidates))
	for i, c := range candidates {
		out[i] = c.ref
	}
	return out, nil
}

// SaveEmbeddings implements providers.VectorStore.
func (d *Dataset) SaveEmbeddings(_ context.Context, _ string, vectors map[string][]float32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, vec := range vectors {
		d.embeddings[id] = vec
	}
	return nil
}

// GetEngagementsForRanking implements providers.EngagementStore.
func (d *Dataset) GetEngagementsForRanking(_ context.Context, userID string, requestEngagements []providers.Engagement, limit int) ([]providers.Engagement, error) {
	if userID == "" {
		return requestEngagements, nil
	}
	d.mu.RLock()
	persisted := append([]providers.Engagement(nil), d.engagements[userID]...)
	d.mu.RUnlock()

	merged := make(map[string]providers.Engagement, len(persisted)+len(requestEngagements))
	for _, e := range persisted {
		merged[e.EpisodeID] = e
	}
	for _, e := range requestEngagements {
		if cur, ok := merged[e.EpisodeID]; !ok || e.Timestamp.After(cur.Timestamp) {
			merged[e.EpisodeID] = e
		}
	}
	out := make([]providers.Engagement, 0, len(merged))
	for _, e := range merged {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].EpisodeID < out[j].EpisodeID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecordEngagement implements providers.EngagementStore.
func (d *Dataset) RecordEngagement(_ context.Context, userID string, e providers.Engagement) error {
	if userID == "" {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.engagements[userID] = append(d.engagements[userID], e)
	return nil
}
