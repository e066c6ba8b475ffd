//go:build fastembed

package embedclient

import (
	"context"
	"fmt"
	"runtime"

	fastembed "github.com/anush008/fastembed-go"
)

// Options configures the local fastembed-go ONNX runtime model.
type Options struct {
	Model     fastembed.EmbeddingModel
	CacheDir  string
	MaxLength int
	BatchSize int
}

// FastEmbedder runs a local bge-small-en-v1.5 model via fastembed-go,
// for offline ingest runs that should not depend on any network
// embedding provider.
type FastEmbedder struct {
	m   *fastembed.FlagEmbedding
	dim int
	bs  int
}

func defaultFastEmbedOptions() *Options {
	return &Options{
		Model:     fastembed.BGESmallENV15,
		CacheDir:  ".fastembed",
		BatchSize: 64,
	}
}

// NewFastEmbedder loads the local model, downloading it into opt.CacheDir
// on first use.
func NewFastEmbedder(ctx context.Context, opt *Options) (Embedder, error) {
	var init *fastembed.InitOptions
	if opt != nil {
		init = &fastembed.InitOptions{
			Model:     opt.Model,
			CacheDir:  opt.CacheDir,
			MaxLength: opt.MaxLength,
		}
	}
	m, err := fastembed.NewFlagEmbedding(init)
	if err != nil {
		return nil, err
	}
	bs := 64
	if opt != nil && opt.BatchSize > 0 {
		bs = opt.BatchSize
	}
	if bs > 4*runtime.GOMAXPROCS(0) {
		bs = 4 * runtime.GOMAXPROCS(0)
	}
	return &FastEmbedder{m: m, dim: 384, bs: bs}, nil
}

func (e *FastEmbedder) Close() error {
	if e.m != nil {
		e.m.Destroy()
	}
	return nil
}

func (e *FastEmbedder) Dim() int { return e.dim }

func (e *FastEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	out, err := e.m.PassageEmbed([]string{"passage: " + text}, e.bs)
	if err != nil {
		return nil, fmt.Errorf("fastembed passage embed: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("fastembed: empty embedding result")
	}
	return out[0], nil
}
