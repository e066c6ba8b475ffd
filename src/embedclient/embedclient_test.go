package embedclient

import (
	"context"
	"testing"

	"github.com/castsignal/foryou-engine/src/providers"
)

func TestTextForJoinsTitleInsightAndCategories(t *testing.T) {
	ep := providers.Episode{
		Title:      "Rate Cuts and the Real Economy",
		KeyInsight: "The Fed's pivot is already priced in.",
		Categories: []providers.CategoryWeight{{Category: "economics"}, {Category: "markets"}},
	}
	want := "Rate Cuts and the Real Economy. The Fed's pivot is already priced in.. economics. markets"
	if got := TextFor(ep); got != want {
		t.Fatalf("TextFor() = %q, want %q", got, want)
	}
}

func TestTextForWithoutInsightOrCategories(t *testing.T) {
	ep := providers.Episode{Title: "Only A Title"}
	if got := TextFor(ep); got != "Only A Title" {
		t.Fatalf("TextFor() = %q, want %q", got, "Only A Title")
	}
}

func TestDummyEmbedderIsDeterministic(t *testing.T) {
	d := DummyEmbedder{Dim: 8}
	v1, err := d.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v2, err := d.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v1) != 8 {
		t.Fatalf("expected dimension 8, got %d", len(v1))
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("expected the same text to embed deterministically, diverged at index %d: %v vs %v", i, v1, v2)
		}
	}
}

func TestDummyEmbedderDefaultsDimension(t *testing.T) {
	d := DummyEmbedder{}
	v, err := d.Embed(context.Background(), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v) != 1536 {
		t.Fatalf("expected the default dimension of 1536, got %d", len(v))
	}
}

func TestAutoEmbedderFallsBackToDummyWhenUnconfigured(t *testing.T) {
	t.Setenv("FORYOU_EMBED_PROVIDER", "")
	t.Setenv("FORYOU_EMBED_MODEL", "")

	e := AutoEmbedder()
	if _, ok := e.(DummyEmbedder); !ok {
		t.Fatalf("expected DummyEmbedder with no provider configured, got %T", e)
	}
}

func TestAutoEmbedderFallsBackToDummyWithoutCredentials(t *testing.T) {
	t.Setenv("FORYOU_EMBED_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "")

	e := AutoEmbedder()
	if _, ok := e.(DummyEmbedder); !ok {
		t.Fatalf("expected DummyEmbedder when the configured provider is missing its API key, got %T", e)
	}
}

func TestAutoEmbedderFallsBackToDummyForUnknownProvider(t *testing.T) {
	t.Setenv("FORYOU_EMBED_PROVIDER", "not-a-real-provider")

	e := AutoEmbedder()
	if _, ok := e.(DummyEmbedder); !ok {
		t.Fatalf("expected DummyEmbedder for an unrecognized provider, got %T", e)
	}
}
