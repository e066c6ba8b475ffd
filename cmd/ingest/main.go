// Command ingest backfills missing embeddings for an episode catalog:
// it reads a JSON array of episodes, embeds any episode lacking a
// vector via the configured embedclient.Embedder, and writes the
// merged (episode, embedding) pairs back out as a filedataset-shaped
// JSON file cmd/app (or any providers.VectorStore-backed deployment)
// can load directly.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/alpkeskin/gotoon"

	"github.com/castsignal/foryou-engine/src/concurrent"
	"github.com/castsignal/foryou-engine/src/embedclient"
	"github.com/castsignal/foryou-engine/src/providers"
)

var (
	flagIn          = flag.String("in", "episodes.json", "input JSON array of episodes (optionally carrying an existing embedding field)")
	flagOut         = flag.String("out", "dataset.json", "output path for the merged episode+embedding dataset")
	flagTimeout     = flag.Duration("timeout", 5*time.Minute, "overall ingest timeout")
	flagConcurrency = flag.Int("concurrency", 8, "max embedding requests in flight at once")
)

type record struct {
	providers.Episode
	Embedding []float32 `json:"embedding,omitempty"`
}

func main() {
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *flagTimeout)
	defer cancel()

	raw, err := os.ReadFile(*flagIn)
	if err != nil {
		fail(fmt.Errorf("read %s: %w", *flagIn, err))
	}
	var records []record
	if err := json.Unmarshal(raw, &records); err != nil {
		fail(fmt.Errorf("decode %s: %w", *flagIn, err))
	}

	embedder := embedclient.AutoEmbedder()
	pool := concurrent.NewWorkerPool(*flagConcurrency)

	var (
		wg       sync.WaitGroup
		embedded int64
		errOnce  sync.Once
		firstErr error
	)
	for i := range records {
		if len(records[i].Embedding) > 0 {
			continue
		}
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.Do(ctx, func() error {
				text := embedclient.TextFor(records[i].Episode)
				vec, err := embedder.Embed(ctx, text)
				if err != nil {
					return fmt.Errorf("embed episode %s: %w", records[i].ID, err)
				}
				records[i].Embedding = vec
				atomic.AddInt64(&embedded, 1)
				return nil
			})
			if err != nil {
				errOnce.Do(func() { firstErr = err })
			}
		}()
	}
	wg.Wait()
	if firstErr != nil {
		fail(firstErr)
	}

	out, err := json.Marshal(records)
	if err != nil {
		fail(fmt.Errorf("encode dataset: %w", err))
	}
	if err := os.WriteFile(*flagOut, out, 0o644); err != nil {
		fail(fmt.Errorf("write %s: %w", *flagOut, err))
	}

	fmt.Printf("ingest: %d episodes total, %d newly embedded, wrote %s\n", len(records), embedded, *flagOut)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
