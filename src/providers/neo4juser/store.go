// Package neo4juser implements providers.UserStore over Neo4j,
// grounded on the teacher's Neo4jStore: the same abstracted
// driver/session/result/record interfaces, so the store is
// unit-testable with lightweight fakes without depending on the real
// driver package (which lives behind the neo4j build tag).
package neo4juser

import (
	"context"
	"errors"
	"fmt"

	"github.com/castsignal/foryou-engine/src/providers"
	"github.com/castsignal/foryou-engine/src/recerr"
)

// AccessMode controls whether a session is opened for read or write.
type AccessMode string

const (
	AccessModeRead  AccessMode = "read"
	AccessModeWrite AccessMode = "write"
)

// SessionConfig mirrors the minimal subset of Neo4j session
// configuration this store needs.
type SessionConfig struct {
	AccessMode   AccessMode
	DatabaseName string
}

// driver, session, result, and record abstract the Neo4j driver
// capabilities this store uses, so tests can supply fakes without
// depending on the real driver package.
type driver interface {
	NewSession(ctx context.Context, config SessionConfig) (session, error)
	Close(ctx context.Context) error
}

type session interface {
	Run(ctx context.Context, query string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

type result interface {
	Next(ctx context.Context) bool
	Record() record
	Err() error
	Close(ctx context.Context) error
}

type record interface {
	Get(key string) (any, bool)
}

// ErrUnavailable is returned when a store operation is attempted
// without a configured driver.
var ErrUnavailable = errors.New("neo4juser: driver not configured")

// Store implements providers.UserStore against a Neo4j graph of
// (:User) nodes carrying a category anchor vector and named category
// interests.
type Store struct {
	driver   driver
	database string
}

// New constructs a Store from an already-connected driver.
func New(d driver, database string) (*Store, error) {
	if d == nil {
		return nil, errors.New("neo4j driver is nil")
	}
	return &Store{driver: d, database: database}, nil
}

// Close releases the underlying driver.
func (s *Store) Close() error {
	if s == nil || s.driver == nil {
		return nil
	}
	return s.driver.Close(context.Background())
}

const getUserCypher = `
MATCH (u:User {id: $id})
RETURN u.category_anchor_vector AS category_anchor_vector,
       u.category_interests AS category_interests
`

// GetByID implements providers.UserStore.
func (s *Store) GetByID(ctx context.Context, userID string) (*providers.UserProfile, bool, error) {
	if s == nil || s.driver == nil {
		return nil, false, ErrUnavailable
	}
	sess, err := s.driver.NewSession(ctx, SessionConfig{AccessMode: AccessModeRead, DatabaseName: s.database})
	if err != nil {
		return nil, false, recerr.Wrap(recerr.KindUpstreamUnavailable, "neo4j new session", err)
	}
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, getUserCypher, map[string]any{"id": userID})
	if err != nil {
		return nil, false, recerr.Wrap(recerr.KindUpstreamUnavailable, "neo4j run query", err)
	}
	defer res.Close(ctx)

	if !res.Next(ctx) {
		if err := res.Err(); err != nil {
			return nil, false, recerr.Wrap(recerr.KindUpstreamUnavailable, "neo4j iterate result", err)
		}
		return nil, false, nil
	}

	profile := &providers.UserProfile{UserID: userID}
	if v, ok := res.Record().Get("category_anchor_vector"); ok {
		profile.CategoryAnchorVector = toFloat32Slice(v)
	}
	if v, ok := res.Record().Get("category_interests"); ok {
		profile.CategoryInterests = toStringSlice(v)
	}
	return profile, true, nil
}

// UpsertProfile writes or replaces a user's anchor vector and category
// interests. It is not part of providers.UserStore (the ranking core
// never mutates user state) but backs the ingest/demo tooling that
// seeds Neo4j with test profiles.
func (s *Store) UpsertProfile(ctx context.Context, profile providers.UserProfile) error {
	if s == nil || s.driver == nil {
		return ErrUnavailable
	}
	sess, err := s.driver.NewSession(ctx, SessionConfig{AccessMode: AccessModeWrite, DatabaseName: s.database})
	if err != nil {
		return recerr.Wrap(recerr.KindUpstreamUnavailable, "neo4j new session", err)
	}
	defer sess.Close(ctx)

	anchor := make([]float64, len(profile.CategoryAnchorVector))
	for i, v := range profile.CategoryAnchorVector {
		anchor[i] = float64(v)
	}
	params := map[string]any{
		"id":                     profile.UserID,
		"category_anchor_vector": anchor,
		"category_interests":     profile.CategoryInterests,
	}
	res, err := sess.Run(ctx, `
MERGE (u:User {id: $id})
SET u.category_anchor_vector = $category_anchor_vector,
    u.category_interests = $category_interests
`, params)
	if err != nil {
		return fmt.Errorf("neo4j upsert user: %w", err)
	}
	defer res.Close(ctx)
	for res.Next(ctx) {
	}
	return res.Err()
}

func toFloat32Slice(v any) []float32 {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(items))
	for _, item := range items {
		switch n := item.(type) {
		case float64:
			out = append(out, float32(n))
		case float32:
			out = append(out, n)
		case int64:
			out = append(out, float32(n))
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func toStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
