// Package pgengagement implements providers.EngagementStore over
// Postgres using pgx, grounded on the teacher's Postgres-backed
// long-term memory store: the same pgxpool connection pattern and
// parameterized query style, applied to a plain engagements table
// instead of a vector memory bank.
package pgengagement

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/castsignal/foryou-engine/src/providers"
	"github.com/castsignal/foryou-engine/src/recerr"
)

// Store implements providers.EngagementStore on top of Postgres.
type Store struct {
	DB *pgxpool.Pool
}

// New connects to Postgres and returns a Store.
func New(ctx context.Context, connStr string) (*Store, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, recerr.Wrap(recerr.KindUpstreamUnavailable, "connect to postgres", err)
	}
	return &Store{DB: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	if s == nil || s.DB == nil {
		return
	}
	s.DB.Close()
}

// CreateSchema ensures the engagements table and its indexes exist, or
// executes the contents of schemaPath if given.
func (s *Store) CreateSchema(ctx context.Context, schemaPath string) error {
	if s == nil || s.DB == nil {
		return nil
	}
	schema := defaultSchema
	if schemaPath != "" {
		data, err := os.ReadFile(schemaPath)
		if err != nil {
			return fmt.Errorf("failed to read schema file: %w", err)
		}
		schema = string(data)
	}
	if _, err := s.DB.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// GetEngagementsForRanking implements providers.EngagementStore: it
// merges persisted rows with requestEngagements, deduping by
// episode_id and preferring the newer timestamp.
func (s *Store) GetEngagementsForRanking(ctx context.Context, userID string, requestEngagements []providers.Engagement, limit int) ([]providers.Engagement, error) {
	if userID == "" {
		return requestEngagements, nil
	}
	if s == nil || s.DB == nil {
		return requestEngagements, nil
	}

	query := `
                SELECT episode_id, kind, occurred_at
                FROM engagements
                WHERE user_id = $1
                ORDER BY occurred_at DESC
        `
	rows, err := s.DB.Query(ctx, query, userID)
	if err != nil {
		return nil, recerr.Wrap(recerr.KindUpstreamUnavailable, "query engagements", err)
	}
	defer rows.Close()

	merged := make(map[string]providers.Engagement)
	for rows.Next() {
		var e providers.Engagement
		var kind string
		if err := rows.Scan(&e.EpisodeID, &kind, &e.Timestamp); err != nil {
			return nil, recerr.Wrap(recerr.KindUpstreamUnavailable, "scan engagement row", err)
		}
		e.Kind = providers.EngagementKind(kind)
		merged[e.EpisodeID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, recerr.Wrap(recerr.KindUpstreamUnavailable, "iterate engagement rows", err)
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
func (s *Store) RecordEngagement(ctx context.Context, userID string, e providers.Engagement) error {
	if userID == "" {
		return nil
	}
	if s == nil || s.DB == nil {
		return nil
	}
	_, err := s.DB.Exec(ctx, `
                INSERT INTO engagements (user_id, episode_id, kind, occurred_at)
                VALUES ($1, $2, $3, $4)
                ON CONFLICT (user_id, episode_id) DO UPDATE
                SET kind = EXCLUDED.kind, occurred_at = EXCLUDED.occurred_at
                WHERE engagements.occurred_at < EXCLUDED.occurred_at
        `, userID, e.EpisodeID, string(e.Kind), e.Timestamp)
	if err != nil {
		return recerr.Wrap(recerr.KindUpstreamUnavailable, "insert engagement", err)
	}
	return nil
}

const defaultSchema = `
CREATE TABLE IF NOT EXISTS engagements (
    user_id TEXT NOT NULL,
    episode_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    occurred_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (user_id, episode_id)
);

CREATE INDEX IF NOT EXISTS engagements_user_idx ON engagements (user_id, occurred_at DESC);
`
