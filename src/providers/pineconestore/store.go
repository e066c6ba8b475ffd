// Package pineconestore implements providers.VectorStore against a
// Pinecone index's REST API, grounded on the teacher's QdrantStore: a
// plain net/http client, a JSON envelope type, and an internal do()
// helper, retargeted at Pinecone's upsert/query/fetch endpoints
// instead of Qdrant's points API. There is no official Pinecone Go SDK
// anywhere in the retrieval pack, so this talks to the documented REST
// surface directly rather than fabricating one.
package pineconestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/castsignal/foryou-engine/src/providers"
	"github.com/castsignal/foryou-engine/src/recerr"
)

// Store implements providers.VectorStore over a single Pinecone index
// host (the per-index URL Pinecone issues, e.g.
// "https://my-index-abc123.svc.us-east-1-aws.pinecone.io").
type Store struct {
	host   string
	apiKey string
	client *http.Client
}

// New returns a Store targeting host, authenticating with apiKey.
func New(host, apiKey string) *Store {
	return &Store{
		host:   strings.TrimRight(host, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type upsertVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type upsertRequest struct {
	Vectors   []upsertVector `json:"vectors"`
	Namespace string         `json:"namespace,omitempty"`
}

type upsertResponse struct {
	UpsertedCount int `json:"upsertedCount"`
}

// SaveEmbeddings implements providers.VectorStore via Pinecone's
// /vectors/upsert endpoint.
func (s *Store) SaveEmbeddings(ctx context.Context, namespace string, vectors map[string][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	req := upsertRequest{Namespace: namespace}
	for id, vec := range vectors {
		req.Vectors = append(req.Vectors, upsertVector{ID: id, Values: vec})
	}
	var resp upsertResponse
	return s.do(ctx, http.MethodPost, "/vectors/upsert", req, &resp)
}

type queryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	Namespace       string    `json:"namespace,omitempty"`
	IncludeMetadata bool      `json:"includeMetadata"`
	IncludeValues   bool      `json:"includeValues"`
	Filter          map[string]any `json:"filter,omitempty"`
}

type queryMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

type queryResponse struct {
	Matches []queryMatch `json:"matches"`
}

// Query implements providers.VectorStore via Pinecone's /query
// endpoint. Only the exclusion and credibility-floor fields of filter
// are translated into Pinecone's metadata filter (episode_id $nin,
// credibility $gte); CombinedFloor and FreshnessWindowDays are not sent
// and are not applied to the results. Excluded ids are also dropped
// again client-side from the returned matches.
func (s *Store) Query(ctx context.Context, namespace string, vector []float32, topK int, filter providers.QueryFilter) ([]providers.ScoredRef, error) {
	req := queryRequest{
		Vector:          vector,
		TopK:            topK,
		Namespace:       namespace,
		IncludeMetadata: true,
	}
	if len(filter.ExcludedIDs) > 0 || filter.CredibilityFloor > 0 || filter.CombinedFloor > 0 {
		req.Filter = buildMetadataFilter(filter)
	}

	var resp queryResponse
	if err := s.do(ctx, http.MethodPost, "/query", req, &resp); err != nil {
		return nil, err
	}

	out := make([]providers.ScoredRef, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if _, excluded := filter.ExcludedIDs[m.ID]; excluded {
			continue
		}
		ref := providers.ScoredRef{ID: m.ID, Similarity: m.Score}
		if meta := metadataToRef(m.Metadata); meta != nil {
			ref.Metadata = meta
		}
		out = append(out, ref)
	}
	return out, nil
}

func buildMetadataFilter(filter providers.QueryFilter) map[string]any {
	f := map[string]any{}
	if filter.CredibilityFloor > 0 {
		f["credibility"] = map[string]any{"$gte": filter.CredibilityFloor}
	}
	if len(filter.ExcludedIDs) > 0 {
		ids := make([]string, 0, len(filter.ExcludedIDs))
		for id := range filter.ExcludedIDs {
			ids = append(ids, id)
		}
		f["episode_id"] = map[string]any{"$nin": ids}
	}
	return f
}

type fetchResponse struct {
	Vectors map[string]struct {
		Values   []float32      `json:"values"`
		Metadata map[string]any `json:"metadata"`
	} `json:"vectors"`
}

// GetEmbeddings implements providers.VectorStore via Pinecone's
// /vectors/fetch endpoint.
func (s *Store) GetEmbeddings(ctx context.Context, ids []string, namespace string) (map[string][]float32, error) {
	if len(ids) == 0 {
		return map[string][]float32{}, nil
	}
	path := "/vectors/fetch?" + fetchQuery(ids, namespace)
	var resp fetchResponse
	if err := s.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	out := make(map[string][]float32, len(resp.Vectors))
	for id, v := range resp.Vectors {
		out[id] = v.Values
	}
	return out, nil
}

func fetchQuery(ids []string, namespace string) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString("ids=")
		b.WriteString(id)
	}
	if namespace != "" {
		b.WriteString("&namespace=")
		b.WriteString(namespace)
	}
	return b.String()
}

type describeStatsResponse struct {
	Namespaces map[string]struct {
		VectorCount int `json:"vectorCount"`
	} `json:"namespaces"`
}

// HasCache implements providers.VectorStore via
// /describe_index_stats.
func (s *Store) HasCache(ctx context.Context, namespace string) (bool, error) {
	var resp describeStatsResponse
	if err := s.do(ctx, http.MethodPost, "/describe_index_stats", map[string]any{}, &resp); err != nil {
		return false, err
	}
	ns, ok := resp.Namespaces[namespace]
	return ok && ns.VectorCount > 0, nil
}

func metadataToRef(meta map[string]any) *providers.RefMetadata {
	if len(meta) == 0 {
		return nil
	}
	out := &providers.RefMetadata{}
	if v, ok := meta["credibility"].(float64); ok {
		out.Credibility = int(v)
	}
	if v, ok := meta["insight"].(float64); ok {
		out.Insight = int(v)
	}
	if v, ok := meta["published_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			out.PublishedAt = t
		}
	}
	if v, ok := meta["title"].(string); ok {
		out.Title = v
	}
	if v, ok := meta["key_insight"].(string); ok {
		out.KeyInsight = v
	}
	if v, ok := meta["content_id"].(string); ok {
		out.ContentID = v
	}
	if v, ok := meta["series_id"].(string); ok {
		out.SeriesID = v
	}
	if v, ok := meta["series_name"].(string); ok {
		out.SeriesName = v
	}
	return out
}

func (s *Store) do(ctx context.Context, method, path string, body any, out any) error {
	url := s.host + path

	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return recerr.Wrap(recerr.KindInputInvalid, "encode pinecone request body", err)
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, buf)
	if err != nil {
		return recerr.Wrap(recerr.KindInputInvalid, "build pinecone request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return recerr.Wrap(recerr.KindUpstreamUnavailable, "pinecone request failed", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		return recerr.Wrap(recerr.KindUpstreamUnavailable, fmt.Sprintf("pinecone %s %s -> http %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(payload))), nil)
	}
	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return recerr.Wrap(recerr.KindUpstreamUnavailable, "decode pinecone response", err)
		}
	}
	return nil
}
