// Command app is a small demo CLI driving the "For You" session
// orchestrator end to end against the bundled sample dataset: it
// creates a session, pages through it, and records an engagement,
// printing each response as indented JSON, in the style of the
// teacher's cmd/app (flag-parsed, timeout-bounded).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/castsignal/foryou-engine/src/config"
	"github.com/castsignal/foryou-engine/src/explain"
	"github.com/castsignal/foryou-engine/src/providers"
	"github.com/castsignal/foryou-engine/src/providers/filedataset"
	"github.com/castsignal/foryou-engine/src/ranking"
	"github.com/castsignal/foryou-engine/src/session"
)

var (
	flagDataset = flag.String("dataset", "testdata/sample_dataset.json", "path to a filedataset-shaped JSON catalog")
	flagUser    = flag.String("user", "demo-user", "user id to build the session for")
	flagLimit   = flag.Int("limit", 5, "page size")
	flagTimeout = flag.Duration("timeout", 30*time.Second, "overall request timeout")
	flagExplain = flag.Bool("explain", false, "ask Claude for a one-line rationale per top episode (requires ANTHROPIC_API_KEY)")
)

func main() {
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *flagTimeout)
	defer cancel()

	ds, err := filedataset.LoadFile(*flagDataset)
	if err != nil {
		fail(fmt.Errorf("load dataset: %w", err))
	}

	cfg, err := config.New(map[string]any{"embedding_dimension": 8})
	if err != nil {
		fail(fmt.Errorf("build config: %w", err))
	}

	orch := &session.Orchestrator{
		Episodes:         ds,
		Vectors:          ds,
		Engagements:      ds,
		Store:            session.NewStore(1000, 30*time.Minute),
		Config:           *cfg,
		AlgorithmVersion: "v1",
		StrategyVersion:  "1",
		DatasetVersion:   "demo",
	}

	created, err := orch.CreateSession(ctx, session.CreateRequest{UserID: *flagUser, Limit: *flagLimit})
	if err != nil {
		fail(fmt.Errorf("create session: %w", err))
	}
	printJSON("create_session", created)

	if *flagExplain {
		explainer := explain.NewClaudeExplainer("")
		for _, ep := range created.Episodes {
			scored := ranking.ScoredEpisode{Episode: ep.Episode, Similarity: ep.Similarity, Badges: ep.Badges}
			rationale, err := explainer.Explain(ctx, scored)
			if err == nil && rationale != "" {
				fmt.Printf("  %s: %s\n", ep.Episode.ID, rationale)
			}
		}
	}

	if len(created.Episodes) > 0 {
		first := created.Episodes[0]
		engaged, err := orch.Engage(ctx, session.EngageRequest{
			SessionID: created.SessionID,
			EpisodeID: first.Episode.ID,
			Kind:      providers.EngagementClick,
			UserID:    *flagUser,
		})
		if err != nil {
			fail(fmt.Errorf("engage: %w", err))
		}
		printJSON("engage", engaged)
	}

	next, err := orch.Next(created.SessionID, *flagLimit)
	if err != nil {
		fail(fmt.Errorf("next: %w", err))
	}
	printJSON("next", next)
}

func printJSON(label string, v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	fmt.Printf("=== %s ===\n", label)
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
