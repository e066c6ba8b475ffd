package mongocatalog

import (
	"context"
	"testing"

	"github.com/castsignal/foryou-engine/src/providers"
)

func TestGetEpisodesOnUnconnectedStoreReturnsEmpty(t *testing.T) {
	st := &Store{}
	out, err := st.GetEpisodes(context.Background(), providers.EpisodeQuery{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != nil {
		t.Fatalf("expected a nil result from an unconnected store, got %+v", out)
	}
}

func TestGetEpisodeOnUnconnectedStoreReturnsNotFound(t *testing.T) {
	st := &Store{}
	ep, ok, err := st.GetEpisode(context.Background(), "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || ep != nil {
		t.Fatalf("expected not found from an unconnected store, got %+v ok=%v", ep, ok)
	}
}

func TestGetEpisodeByContentIDMapOnUnconnectedStoreReturnsEmptyMap(t *testing.T) {
	st := &Store{}
	out, err := st.GetEpisodeByContentIDMap(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected an empty map from an unconnected store, got %+v", out)
	}
}

func TestCloseOnUnconnectedStoreIsSafe(t *testing.T) {
	var st *Store
	if err := st.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st = &Store{}
	if err := st.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateSchemaOnUnconnectedStoreIsSafe(t *testing.T) {
	st := &Store{}
	if err := st.CreateSchema(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewRequiresURIDatabaseAndCollection(t *testing.T) {
	if _, err := New(context.Background(), "", "db", "coll"); err == nil {
		t.Fatal("expected an error with an empty uri")
	}
	if _, err := New(context.Background(), "mongodb://localhost", "", "coll"); err == nil {
		t.Fatal("expected an error with an empty database name")
	}
	if _, err := New(context.Background(), "mongodb://localhost", "db", ""); err == nil {
		t.Fatal("expected an error with an empty collection name")
	}
}
