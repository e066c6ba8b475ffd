//go:build !fastembed

package embedclient

import (
	"context"
	"fmt"
)

// Options configures the local fastembed model; empty in the stub
// build (no -tags fastembed).
type Options struct {
	Model     string
	CacheDir  string
	MaxLength int
	BatchSize int
}

// FastEmbedder is the no-op stand-in when the module is built without
// -tags fastembed, so cmd/ingest links cleanly without the ONNX
// runtime dependency by default.
type FastEmbedder struct{}

func defaultFastEmbedOptions() *Options { return nil }

// NewFastEmbedder always fails in the stub build.
func NewFastEmbedder(_ context.Context, _ *Options) (Embedder, error) {
	return nil, fmt.Errorf("fastembed support not included; rebuild with -tags fastembed")
}

func (FastEmbedder) Close() error { return nil }

func (FastEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("fastembed support not included")
}
