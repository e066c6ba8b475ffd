// Package mongocatalog implements providers.EpisodeProvider over
// MongoDB, grounded on the teacher's MongoDB-backed long-term memory
// store: the same client/collection construction and bson document
// mapping, applied to an episode catalog collection instead of a
// memory bank.
package mongocatalog

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/castsignal/foryou-engine/src/providers"
	"github.com/castsignal/foryou-engine/src/recerr"
)

const connectTimeout = 5 * time.Second

// Store implements providers.EpisodeProvider over a MongoDB
// collection of episode documents.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// New connects to MongoDB and returns a Store backed by database.collection.
func New(ctx context.Context, uri, database, collection string) (*Store, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	if collection == "" {
		return nil, errors.New("mongo collection name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, recerr.Wrap(recerr.KindUpstreamUnavailable, "connect to mongo", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, recerr.Wrap(recerr.KindUpstreamUnavailable, "ping mongo", err)
	}
	db := client.Database(database)
	return &Store{client: client, collection: db.Collection(collection)}, nil
}

// Close releases the underlying MongoDB client.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// CreateSchema ensures the indexes GetEpisodes and GetEpisode rely on
// exist.
func (s *Store) CreateSchema(ctx context.Context) error {
	if s == nil || s.collection == nil {
		return nil
	}
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetName("episode_id").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "content_id", Value: 1}},
			Options: options.Index().SetName("content_id"),
		},
		{
			Keys:    bson.D{{Key: "published_at", Value: -1}},
			Options: options.Index().SetName("published_at"),
		},
	}
	_, err := s.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

type episodeDocument struct {
	providers.Episode `bson:",inline"`
}

// GetEpisodes implements providers.EpisodeProvider.
func (s *Store) GetEpisodes(ctx context.Context, q providers.EpisodeQuery) ([]providers.Episode, error) {
	if s == nil || s.collection == nil {
		return nil, nil
	}

	filter := bson.M{}
	if q.Since != nil || q.Until != nil {
		window := bson.M{}
		if q.Since != nil {
			window["$gte"] = *q.Since
		}
		if q.Until != nil {
			window["$lte"] = *q.Until
		}
		filter["published_at"] = window
	}

	opts := options.Find().SetSort(bson.D{{Key: "id", Value: 1}})
	if q.Limit > 0 {
		opts = opts.SetLimit(int64(q.Limit))
	}
	if q.Offset > 0 {
		opts = opts.SetSkip(int64(q.Offset))
	}

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, recerr.Wrap(recerr.KindUpstreamUnavailable, "query episodes", err)
	}
	defer cursor.Close(ctx)

	var out []providers.Episode
	for cursor.Next(ctx) {
		var doc episodeDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, recerr.Wrap(recerr.KindUpstreamUnavailable, "decode episode document", err)
		}
		out = append(out, doc.Episode)
	}
	if err := cursor.Err(); err != nil {
		return nil, recerr.Wrap(recerr.KindUpstreamUnavailable, "iterate episode cursor", err)
	}
	return out, nil
}

// GetEpisode implements providers.EpisodeProvider.
func (s *Store) GetEpisode(ctx context.Context, id string) (*providers.Episode, bool, error) {
	if s == nil || s.collection == nil {
		return nil, false, nil
	}
	var doc episodeDocument
	err := s.collection.FindOne(ctx, bson.M{"id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, recerr.Wrap(recerr.KindUpstreamUnavailable, "find episode", err)
	}
	ep := doc.Episode
	return &ep, true, nil
}

// GetEpisodeByContentIDMap implements providers.EpisodeProvider: each
// call runs one unpaginated GetEpisodes query over the collection and
// indexes the result by content_id in process.
func (s *Store) GetEpisodeByContentIDMap(ctx context.Context) (map[string]providers.Episode, error) {
	episodes, err := s.GetEpisodes(ctx, providers.EpisodeQuery{})
	if err != nil {
		return nil, err
	}
	out := make(map[string]providers.Episode, len(episodes))
	for _, ep := range episodes {
		if ep.ContentID != "" {
			out[ep.ContentID] = ep
		}
	}
	return out, nil
}
