// Package embedclient provides the pluggable text-embedding
// collaborator used by cmd/ingest to backfill episode vectors offline.
// It is grounded on the teacher's src/memory/embed package: the same
// Embedder interface and env-driven AutoEmbedder selection, retargeted
// from embedding a free-form memory string to embedding an episode's
// title, key insight, and category tags. Nothing under src/pipeline or
// src/session imports this package; ranking only ever consumes
// embeddings that already exist in a providers.VectorStore.
package embedclient

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/castsignal/foryou-engine/src/providers"
)

// Embedder turns a text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// TextFor builds the canonical text ingest embeds for an episode: its
// title, key insight, and category names, in that order. Keeping this
// in one place means every provider embeds the same text for the same
// episode.
func TextFor(ep providers.Episode) string {
	var b strings.Builder
	b.WriteString(ep.Title)
	if ep.KeyInsight != "" {
		b.WriteString(". ")
		b.WriteString(ep.KeyInsight)
	}
	for _, c := range ep.Categories {
		b.WriteString(". ")
		b.WriteString(c.Category)
	}
	return b.String()
}

// DummyEmbedder is a deterministic, dependency-free fallback: useful
// in tests and when no provider is configured, never in production
// ingest runs.
type DummyEmbedder struct{ Dim int }

func (d DummyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	dim := d.Dim
	if dim <= 0 {
		dim = 1536
	}
	vec := make([]float32, dim)
	for i, ch := range []byte(text) {
		vec[i%dim] += float32(ch) / 255.0
	}
	return vec, nil
}

// AutoEmbedder selects a provider from environment variables:
//
//	FORYOU_EMBED_PROVIDER=openai|gemini|ollama|voyage|fastembed
//	FORYOU_EMBED_MODEL=<model string>
//
// Falling back to DummyEmbedder when the provider is unset, unknown,
// or fails to construct (e.g. missing API key), so ingest never blocks
// on embedding-provider configuration during local development.
func AutoEmbedder() Embedder {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("FORYOU_EMBED_PROVIDER")))
	model := strings.TrimSpace(os.Getenv("FORYOU_EMBED_MODEL"))

	switch provider {
	case "openai":
		if e, err := NewOpenAIEmbedder(model); err == nil {
			return e
		}
	case "gemini", "google":
		if e, err := NewGeminiEmbedder(model); err == nil {
			return e
		}
	case "ollama":
		if e, err := NewOllamaEmbedder(model); err == nil {
			return e
		}
	case "voyage", "anthropic", "claude":
		if e, err := NewVoyageEmbedder(model); err == nil {
			return e
		}
	case "fastembed":
		if opts := defaultFastEmbedOptions(); opts != nil {
			if e, err := NewFastEmbedder(context.Background(), opts); err == nil {
				return e
			}
		}
	}

	log.Printf("embedclient: no embed provider configured (FORYOU_EMBED_PROVIDER=%q); falling back to DummyEmbedder", provider)
	return DummyEmbedder{}
}
