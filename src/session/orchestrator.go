package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/castsignal/foryou-engine/src/candidates"
	"github.com/castsignal/foryou-engine/src/concurrent"
	"github.com/castsignal/foryou-engine/src/config"
	"github.com/castsignal/foryou-engine/src/pipeline"
	"github.com/castsignal/foryou-engine/src/providers"
	"github.com/castsignal/foryou-engine/src/recerr"
	"github.com/castsignal/foryou-engine/src/telemetry"
	"github.com/castsignal/foryou-engine/src/uservector"
)

const defaultEmbeddingChunkSize = 100
const defaultPageLimit = 10

// Orchestrator is the request-scoped coordinator (C8): it assembles
// inputs from the provider contracts with concurrent I/O, computes
// exclusions and the candidate-id set, invokes the ranking pipeline,
// and manages the session store for pagination and engagement
// write-back.
type Orchestrator struct {
	Episodes    providers.EpisodeProvider
	Vectors     providers.VectorStore
	Engagements providers.EngagementStore
	Users       providers.UserStore // optional; nil is treated as "no profile"

	Store  *Store
	Config config.Config
	Sink   telemetry.Sink

	AlgorithmVersion string
	StrategyVersion  string
	DatasetVersion   string

	// InMemoryCatalog, when set, is used instead of calling
	// Episodes.GetEpisodes, mirroring spec.md's "in-memory dataset if
	// loaded" branch.
	InMemoryCatalog []providers.Episode

	FetchTimeout             time.Duration
	EmbeddingTimeout         time.Duration
	EngageTimeout            time.Duration
	DegradeOnUpstreamTimeout bool
	EmbeddingChunkSize       int

	// EmbeddingLimiter, when set, paces outbound embedding-fetch
	// batches against a vector store that enforces its own request
	// quota (e.g. a shared Pinecone index), independent of the
	// retry/backoff applied on failure.
	EmbeddingLimiter *rate.Limiter

	// RetryConfig governs the exponential-backoff retry applied to
	// every upstream provider call (engagement log, user store,
	// catalog, vector store, engagement write-back). The zero value
	// falls back to providers.DefaultRetryConfig.
	RetryConfig providers.RetryConfig

	// Now returns the current instant; overridable for deterministic
	// tests.
	Now func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now().UTC()
}

func (o *Orchestrator) sink() telemetry.Sink {
	if o.Sink == nil {
		return telemetry.NoopSink{}
	}
	return o.Sink
}

func (o *Orchestrator) chunkSize() int {
	if o.EmbeddingChunkSize > 0 {
		return o.EmbeddingChunkSize
	}
	return defaultEmbeddingChunkSize
}

// Namespace derives the deterministic embedding namespace string from
// the orchestrator's configured versions.
func (o *Orchestrator) Namespace() string {
	return fmt.Sprintf("%s_s%s__%s", o.AlgorithmVersion, o.StrategyVersion, o.DatasetVersion)
}

// CreateSession implements C8's create_session procedure end to end.
func (o *Orchestrator) CreateSession(ctx context.Context, req CreateRequest) (*SessionResponse, error) {
	now := o.now()
	limit := req.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}

	engagements, user, catalog, err := o.concurrentFetch(ctx, req)
	if err != nil {
		return nil, err
	}

	episodesByID := make(map[string]providers.Episode, len(catalog))
	contentIndex := make(map[string]providers.Episode, len(catalog))
	for _, ep := range catalog {
		episodesByID[ep.ID] = ep
		if ep.ContentID != "" {
			contentIndex[ep.ContentID] = ep
		}
	}
	resolveID := func(raw string) string {
		if _, ok := episodesByID[raw]; ok {
			return raw
		}
		if ep, ok := contentIndex[raw]; ok {
			return ep.ID
		}
		return raw
	}

	excluded := make(map[string]struct{}, len(req.ExcludedIDs)+len(engagements))
	for _, id := range req.ExcludedIDs {
		excluded[id] = struct{}{}
	}
	engagementIDs := make(map[string]struct{}, len(engagements))
	for _, e := range engagements {
		resolved := resolveID(e.EpisodeID)
		excluded[resolved] = struct{}{}
		engagementIDs[resolved] = struct{}{}
	}

	// Stage A, run here solely to learn which ids need embeddings (the
	// fetch path re-runs it inside the pipeline for the actual ranking
	// candidate set; this avoids fetching embeddings for excluded or
	// low-quality episodes).
	idCandidates := candidates.Pool(catalog, excluded, o.Config, now)

	namespace := o.Namespace()

	var (
		embeddings          map[string][]float32
		candidatesForRank   []providers.Episode
		similarityMap       map[string]float64
		usedQueryPath       bool
		hadUserVector       bool
	)

	if len(req.UserVector) > 0 {
		hadUserVector = true
		refs, qerr := o.Vectors.Query(ctx, namespace, req.UserVector, o.Config.CandidatePoolSize, providers.QueryFilter{
			ExcludedIDs:         excluded,
			CredibilityFloor:    o.Config.CredibilityFloor,
			CombinedFloor:       o.Config.CombinedFloor,
			FreshnessWindowDays: o.Config.FreshnessWindowDays,
			Now:                 now,
		})
		if qerr == nil {
			candidatesForRank, similarityMap = resolveRefs(refs, episodesByID)
			usedQueryPath = true
		} else if !errors.Is(qerr, providers.ErrUnsupported) {
			return nil, classifyUpstream(qerr)
		}
	} else if o.Vectors != nil {
		// Case (b): compute a user vector from engagements and try the
		// query fast path before falling back to a full embedding fetch.
		engEmbeddings, eerr := o.fetchEmbeddings(ctx, setKeys(engagementIDs), namespace)
		if eerr != nil {
			return nil, classifyUpstream(eerr)
		}
		uv := uservector.Compute(ctx, uservector.Input{
			Engagements:    engagements,
			Embeddings:     engEmbeddings,
			ContentIDIndex: contentIndex,
			UserProfile:    user,
			Config:         o.Config,
		}, o.sink())

		if uv.Vector != nil {
			hadUserVector = true
			refs, qerr := o.Vectors.Query(ctx, namespace, uv.Vector, o.Config.CandidatePoolSize, providers.QueryFilter{
				ExcludedIDs:         excluded,
				CredibilityFloor:    o.Config.CredibilityFloor,
				CombinedFloor:       o.Config.CombinedFloor,
				FreshnessWindowDays: o.Config.FreshnessWindowDays,
				Now:                 now,
			})
			if qerr == nil {
				candidatesForRank, similarityMap = resolveRefs(refs, episodesByID)
				usedQueryPath = true
			} else if !errors.Is(qerr, providers.ErrUnsupported) {
				return nil, classifyUpstream(qerr)
			}
		}
		embeddings = engEmbeddings
	}

	if !usedQueryPath {
		if hadUserVector {
			o.sink().Emit(ctx, telemetry.SessionNoQueryAsync, "user_id", req.UserID)
		} else {
			o.sink().Emit(ctx, telemetry.SessionUserVectorNoneFetchPath, "user_id", req.UserID)
		}

		neededIDs := make(map[string]struct{}, len(idCandidates)+len(engagementIDs))
		for _, ep := range idCandidates {
			neededIDs[ep.ID] = struct{}{}
		}
		for id := range engagementIDs {
			neededIDs[id] = struct{}{}
		}
		fetched, eerr := o.fetchEmbeddings(ctx, setKeys(neededIDs), namespace)
		if eerr != nil {
			return nil, classifyUpstream(eerr)
		}
		embeddings = fetched
	}

	result := pipeline.Run(ctx, pipeline.Input{
		Engagements:         engagements,
		ExcludedIDs:         excluded,
		Episodes:            catalog,
		CandidatesFromQuery: candidatesForRank,
		SimilarityMap:       similarityMap,
		Embeddings:          embeddings,
		ContentIDIndex:      contentIndex,
		UserProfile:         user,
		Config:              o.Config,
		Now:                 now,
		Limit:               limit,
	}, o.sink())

	// Mirror ranking.Rank's own cold-start test exactly (no user
	// vector and no query similarity map), not result.ColdStart, which
	// tracks engagement history and can diverge from which weights
	// Stage B actually applied (e.g. an anchor-only user vector with
	// no engagements, or a client-supplied UserVector query).
	rankedColdStart := !result.UserVectorPresent && similarityMap == nil

	debug := DebugInfo{UserVectorEpisodeCount: result.UserVectorEpisodeCount}
	debug.ScoringWeights.Similarity = o.Config.WeightSimilarity
	debug.ScoringWeights.Quality = o.Config.WeightQuality
	debug.ScoringWeights.Recency = o.Config.WeightRecency
	if rankedColdStart {
		debug.ScoringWeights.Similarity = 0
		debug.ScoringWeights.Quality = o.Config.ColdStart.WeightQuality
		debug.ScoringWeights.Recency = o.Config.ColdStart.WeightRecency
	}

	s := &Session{
		SessionID:              uuid.NewString(),
		Queue:                  result.Queue,
		Cursor:                 0,
		ColdStart:              result.ColdStart,
		CreatedAt:              now,
		AlgorithmVersion:       o.AlgorithmVersion,
		DatasetVersion:         o.DatasetVersion,
		EngagedIDs:             map[string]struct{}{},
		ExcludedIDs:            excluded,
		UserVectorEpisodeCount: result.UserVectorEpisodeCount,
		Weights:                debug,
	}
	o.Store.Put(s)

	shown := s.Queue
	if len(shown) > limit {
		shown = shown[:limit]
	}
	s.Cursor = len(shown)
	o.Store.Put(s)

	views := make([]EpisodeView, len(shown))
	for i, e := range shown {
		views[i] = viewOf(e)
	}

	return &SessionResponse{
		SessionID:        s.SessionID,
		Episodes:         views,
		TotalInQueue:     len(s.Queue),
		ShownCount:       len(shown),
		RemainingCount:   len(s.Queue) - len(shown),
		ColdStart:        s.ColdStart,
		AlgorithmVersion: o.AlgorithmVersion,
		DatasetVersion:   o.DatasetVersion,
		Debug:            debug,
	}, nil
}

// Next implements the next(session_id, count) operation.
func (o *Orchestrator) Next(sessionID string, count int) (*NextResponse, error) {
	page, shown, remaining, err := o.Store.Next(sessionID, count)
	if err != nil {
		return nil, err
	}
	views := make([]EpisodeView, len(page))
	for i, e := range page {
		views[i] = viewOf(e)
	}
	return &NextResponse{Episodes: views, ShownCount: shown, RemainingCount: remaining}, nil
}

// Engage implements the engage(session_id, episode_id, kind, user_id?)
// operation: it verifies membership synchronously, updates in-memory
// state, and fires the persistence call without waiting for it.
func (o *Orchestrator) Engage(ctx context.Context, req EngageRequest) (*EngageResponse, error) {
	if err := o.Store.Engage(req.SessionID, req.EpisodeID); err != nil {
		return nil, err
	}

	if req.UserID != "" && o.Engagements != nil {
		go func() {
			engageCtx := context.Background()
			var cancel context.CancelFunc
			if o.EngageTimeout > 0 {
				engageCtx, cancel = context.WithTimeout(engageCtx, o.EngageTimeout)
				defer cancel()
			}
			retryErr := providers.WithRetry(engageCtx, o.RetryConfig, func(ctx context.Context) error {
				return o.Engagements.RecordEngagement(ctx, req.UserID, providers.Engagement{
					EpisodeID: req.EpisodeID,
					Kind:      req.Kind,
					Timestamp: o.now(),
				})
			})
			if retryErr != nil {
				o.sink().Emit(engageCtx, "ENGAGEMENT_RECORD_FAILED", "user_id", req.UserID, "episode_id", req.EpisodeID, "err", retryErr.Error())
			}
		}()
	}

	return &EngageResponse{OK: true}, nil
}

// concurrentFetch launches the three logically independent fetches of
// C8 step 1 and joins them at a single suspension point.
func (o *Orchestrator) concurrentFetch(ctx context.Context, req CreateRequest) ([]providers.Engagement, *providers.UserProfile, []providers.Episode, error) {
	fetchCtx := ctx
	var cancel context.CancelFunc
	if o.FetchTimeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, o.FetchTimeout)
		defer cancel()
	}

	var (
		engagements []providers.Engagement
		user        *providers.UserProfile
		catalog     []providers.Episode
	)

	err := concurrent.ParallelForEach(fetchCtx, []int{0, 1, 2}, func(task int) error {
		switch task {
		case 0:
			var es []providers.Engagement
			retryErr := providers.WithRetry(fetchCtx, o.RetryConfig, func(ctx context.Context) error {
				var err error
				es, err = o.Engagements.GetEngagementsForRanking(ctx, req.UserID, req.Engagements, 0)
				return err
			})
			if retryErr != nil {
				if o.DegradeOnUpstreamTimeout {
					engagements = req.Engagements
					return nil
				}
				return retryErr
			}
			engagements = es
			return nil
		case 1:
			if req.UserID == "" || o.Users == nil {
				return nil
			}
			var u *providers.UserProfile
			var ok bool
			retryErr := providers.WithRetry(fetchCtx, o.RetryConfig, func(ctx context.Context) error {
				var err error
				u, ok, err = o.Users.GetByID(ctx, req.UserID)
				return err
			})
			if retryErr != nil {
				if o.DegradeOnUpstreamTimeout {
					return nil
				}
				return retryErr
			}
			if ok {
				user = u
			}
			return nil
		case 2:
			if o.InMemoryCatalog != nil {
				catalog = o.InMemoryCatalog
				return nil
			}
			var c []providers.Episode
			retryErr := providers.WithRetry(fetchCtx, o.RetryConfig, func(ctx context.Context) error {
				var err error
				c, err = o.Episodes.GetEpisodes(ctx, providers.EpisodeQuery{})
				return err
			})
			if retryErr != nil {
				return retryErr
			}
			catalog = c
			return nil
		}
		return nil
	}, 3)
	if err != nil {
		return nil, nil, nil, classifyUpstream(err)
	}
	return engagements, user, catalog, nil
}

// fetchEmbeddings chunks ids into batches of at most the configured
// chunk size and fetches each batch concurrently, transparently to
// the caller, per spec.md's backpressure policy.
func (o *Orchestrator) fetchEmbeddings(ctx context.Context, ids []string, namespace string) (map[string][]float32, error) {
	if len(ids) == 0 {
		return map[string][]float32{}, nil
	}
	embedCtx := ctx
	var cancel context.CancelFunc
	if o.EmbeddingTimeout > 0 {
		embedCtx, cancel = context.WithTimeout(ctx, o.EmbeddingTimeout)
		defer cancel()
	}

	chunkSize := o.chunkSize()
	var chunks [][]string
	for i := 0; i < len(ids); i += chunkSize {
		end := i + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[i:end])
	}

	results, err := concurrent.ParallelMap(embedCtx, chunks, func(chunk []string) (map[string][]float32, error) {
		if o.EmbeddingLimiter != nil {
			if err := o.EmbeddingLimiter.Wait(embedCtx); err != nil {
				return nil, err
			}
		}
		var vecs map[string][]float32
		retryErr := providers.WithRetry(embedCtx, o.RetryConfig, func(ctx context.Context) error {
			var err error
			vecs, err = o.Vectors.GetEmbeddings(ctx, chunk, namespace)
			return err
		})
		if retryErr != nil {
			return nil, retryErr
		}
		return vecs, nil
	}, len(chunks))
	if err != nil {
		return nil, err
	}

	merged := make(map[string][]float32, len(ids))
	for _, m := range results {
		for id, vec := range m {
			merged[id] = vec
		}
	}
	return merged, nil
}

func setKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// resolveRefs converts a VectorStore.Query result into a candidate
// episode list plus a similarity map, preferring an in-memory catalog
// entry over ref metadata, and falling back to a metadata-built
// episode when the catalog wasn't available (spec.md §6: metadata
// must be enough to bypass the catalog fetch on the query path).
func resolveRefs(refs []providers.ScoredRef, episodesByID map[string]providers.Episode) ([]providers.Episode, map[string]float64) {
	out := make([]providers.Episode, 0, len(refs))
	simMap := make(map[string]float64, len(refs))
	for _, ref := range refs {
		simMap[ref.ID] = ref.Similarity
		if ep, ok := episodesByID[ref.ID]; ok {
			out = append(out, ep)
			continue
		}
		if ref.Metadata != nil {
			out = append(out, providers.Episode{
				ID:          ref.ID,
				ContentID:   ref.Metadata.ContentID,
				Title:       ref.Metadata.Title,
				KeyInsight:  ref.Metadata.KeyInsight,
				SeriesID:    ref.Metadata.SeriesID,
				SeriesName:  ref.Metadata.SeriesName,
				Categories:  ref.Metadata.Categories,
				Credibility: ref.Metadata.Credibility,
				Insight:     ref.Metadata.Insight,
				PublishedAt: ref.Metadata.PublishedAt,
			})
		}
	}
	return out, simMap
}

// classifyUpstream maps a raw provider error onto the UpstreamTimeout
// / UpstreamUnavailable taxonomy of spec.md §7.
func classifyUpstream(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return recerr.Wrap(recerr.KindUpstreamTimeout, "upstream call exceeded its deadline", err)
	}
	return recerr.Wrap(recerr.KindUpstreamUnavailable, "upstream call failed", err)
}
