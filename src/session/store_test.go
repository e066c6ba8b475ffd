package session

import (
	"testing"
	"time"

	"github.com/castsignal/foryou-engine/src/providers"
	"github.com/castsignal/foryou-engine/src/ranking"
	"github.com/castsignal/foryou-engine/src/recerr"
)

func newTestSession(id string, episodeIDs ...string) *Session {
	queue := make([]ranking.ScoredEpisode, len(episodeIDs))
	for i, eid := range episodeIDs {
		queue[i] = ranking.ScoredEpisode{Episode: providers.Episode{ID: eid}}
	}
	return &Session{
		SessionID:   id,
		Queue:       queue,
		CreatedAt:   time.Now().UTC(),
		EngagedIDs:  map[string]struct{}{},
		ExcludedIDs: map[string]struct{}{},
	}
}

func TestStoreGetUnknownSessionReturnsSessionNotFound(t *testing.T) {
	st := NewStore(10, time.Minute)
	_, err := st.Get("missing")
	if !recerr.Is(err, recerr.KindSessionNotFound) {
		t.Fatalf("expected KindSessionNotFound, got %v", err)
	}
}

func TestStorePutAndGetRoundTrips(t *testing.T) {
	st := NewStore(10, time.Minute)
	s := newTestSession("s1", "a", "b", "c")
	st.Put(s)

	got, err := st.Get("s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Queue) != 3 {
		t.Fatalf("expected 3 queued episodes, got %d", len(got.Queue))
	}

	// Get returns a defensive copy: mutating it must not affect the store.
	got.Queue[0].Episode.ID = "mutated"
	again, _ := st.Get("s1")
	if again.Queue[0].Episode.ID != "a" {
		t.Fatalf("expected store's copy unaffected by caller mutation, got %q", again.Queue[0].Episode.ID)
	}
}

func TestStoreNextAdvancesCursorForwardOnly(t *testing.T) {
	st := NewStore(10, time.Minute)
	st.Put(newTestSession("s1", "a", "b", "c", "d", "e"))

	page, shown, remaining, err := st.Next("s1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shown != 2 || remaining != 3 {
		t.Fatalf("expected shown=2 remaining=3, got shown=%d remaining=%d", shown, remaining)
	}
	if page[0].Episode.ID != "a" || page[1].Episode.ID != "b" {
		t.Fatalf("unexpected first page: %+v", page)
	}

	page2, shown2, remaining2, err := st.Next("s1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shown2 != 3 || remaining2 != 0 {
		t.Fatalf("expected the cursor clamped to the remaining 3 items, got shown=%d remaining=%d", shown2, remaining2)
	}
	if page2[0].Episode.ID != "c" {
		t.Fatalf("expected pagination to resume after the first page, got %+v", page2)
	}

	page3, shown3, remaining3, err := st.Next("s1", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shown3 != 0 || remaining3 != 0 || len(page3) != 0 {
		t.Fatalf("expected an exhausted queue to return nothing further, got shown=%d remaining=%d page=%+v", shown3, remaining3, page3)
	}
}

func TestStoreEngageMarksEngagedAndExcluded(t *testing.T) {
	st := NewStore(10, time.Minute)
	st.Put(newTestSession("s1", "a", "b"))

	if err := st.Engage("s1", "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := st.Get("s1")
	if _, ok := got.EngagedIDs["a"]; !ok {
		t.Fatal("expected 'a' marked engaged")
	}
	if _, ok := got.ExcludedIDs["a"]; !ok {
		t.Fatal("expected 'a' marked excluded once engaged")
	}
}

func TestStoreEngageRejectsEpisodeNotInQueue(t *testing.T) {
	st := NewStore(10, time.Minute)
	st.Put(newTestSession("s1", "a", "b"))

	err := st.Engage("s1", "not-in-queue")
	if !recerr.Is(err, recerr.KindInputInvalid) {
		t.Fatalf("expected KindInputInvalid, got %v", err)
	}
}

func TestStoreCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	st := NewStore(2, time.Minute)
	st.Put(newTestSession("s1", "a"))
	st.Put(newTestSession("s2", "a"))
	st.Put(newTestSession("s3", "a")) // evicts s1, the LRU entry

	if _, err := st.Get("s1"); !recerr.Is(err, recerr.KindSessionNotFound) {
		t.Fatalf("expected s1 evicted, got err=%v", err)
	}
	if _, err := st.Get("s3"); err != nil {
		t.Fatalf("expected s3 to survive, got %v", err)
	}
}
