package session

import (
	"time"

	"github.com/castsignal/foryou-engine/src/cache"
	"github.com/castsignal/foryou-engine/src/ranking"
	"github.com/castsignal/foryou-engine/src/recerr"
)

// DefaultCapacity and DefaultTTL match the teacher's own LRUCache
// defaults neighborhood; operators wire their own via NewStore.
const (
	DefaultCapacity = 10_000
	DefaultTTL      = 30 * time.Minute
)

// entry wraps a Session with its own lock so two concurrent mutations
// of the same session serialize without blocking unrelated sessions.
type entry struct {
	mu      chan struct{} // 1-buffered, acts as a non-reentrant mutex
	session *Session
}

func newEntry(s *Session) *entry {
	e := &entry{mu: make(chan struct{}, 1), session: s}
	e.mu <- struct{}{}
	return e
}

func (e *entry) lock()   { <-e.mu }
func (e *entry) unlock() { e.mu <- struct{}{} }

// Store is the in-memory mapping from session id to Session (C9). It
// is built on the teacher's cache.LRUCache for capacity+TTL eviction,
// adding per-session locking and the create/next/engage semantics the
// ranking session orchestrator needs.
type Store struct {
	cache *cache.LRUCache
}

// NewStore constructs a Store evicting the least-recently-used session
// once capacity entries are held, or after ttl of inactivity.
func NewStore(capacity int, ttl time.Duration) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{cache: cache.NewLRUCache(capacity, ttl)}
}

// Put inserts a freshly created session.
func (st *Store) Put(s *Session) {
	st.cache.Set(s.SessionID, newEntry(s))
}

// Get returns a defensive copy of the session, or recerr.KindSessionNotFound.
func (st *Store) Get(id string) (*Session, error) {
	e, err := st.lookup(id)
	if err != nil {
		return nil, err
	}
	e.lock()
	defer e.unlock()
	return e.session.clone(), nil
}

func (st *Store) lookup(id string) (*entry, error) {
	v, ok := st.cache.Get(id)
	if !ok {
		return nil, recerr.New(recerr.KindSessionNotFound, "unknown session id "+id)
	}
	e, ok := v.(*entry)
	if !ok {
		return nil, recerr.New(recerr.KindSessionNotFound, "unknown session id "+id)
	}
	return e, nil
}

// Next advances the session's cursor by up to count items and returns
// the page actually served, the shown count, and the remaining count.
// count is clamped so the cursor never exceeds the queue length;
// pagination only moves forward within a session.
func (st *Store) Next(id string, count int) ([]ranking.ScoredEpisode, int, int, error) {
	e, err := st.lookup(id)
	if err != nil {
		return nil, 0, 0, err
	}
	e.lock()
	defer e.unlock()

	s := e.session
	if count < 0 {
		count = 0
	}
	start := s.Cursor
	end := start + count
	if end > len(s.Queue) {
		end = len(s.Queue)
	}
	if start > end {
		start = end
	}
	page := append([]ranking.ScoredEpisode(nil), s.Queue[start:end]...)
	s.Cursor = end
	st.cache.Set(id, e)
	return page, len(page), len(s.Queue) - s.Cursor, nil
}

// Engage marks episodeID engaged and excluded on the session, failing
// with recerr.KindInputInvalid if the episode is not present in the
// session's queue.
func (st *Store) Engage(id, episodeID string) error {
	e, err := st.lookup(id)
	if err != nil {
		return err
	}
	e.lock()
	defer e.unlock()

	s := e.session
	found := false
	for _, item := range s.Queue {
		if item.Episode.ID == episodeID {
			found = true
			break
		}
	}
	if !found {
		return recerr.New(recerr.KindInputInvalid, "episode "+episodeID+" is not in the session queue")
	}
	if s.EngagedIDs == nil {
		s.EngagedIDs = make(map[string]struct{})
	}
	if s.ExcludedIDs == nil {
		s.ExcludedIDs = make(map[string]struct{})
	}
	s.EngagedIDs[episodeID] = struct{}{}
	s.ExcludedIDs[episodeID] = struct{}{}
	st.cache.Set(id, e)
	return nil
}
