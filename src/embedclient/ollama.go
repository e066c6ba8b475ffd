package embedclient

import (
	"context"
	"errors"

	"github.com/ollama/ollama/api"
)

// OllamaEmbedder embeds text via a local or remote Ollama server.
// Reads its address from OLLAMA_HOST (defaulting to the ollama
// package's own default when unset).
type OllamaEmbedder struct {
	client *api.Client
	model  string
}

// NewOllamaEmbedder constructs an OllamaEmbedder. model defaults to
// "nomic-embed-text" when empty.
func NewOllamaEmbedder(model string) (Embedder, error) {
	if model == "" {
		model = "nomic-embed-text"
	}
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, err
	}
	return &OllamaEmbedder{client: client, model: model}, nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings(ctx, &api.EmbeddingRequest{
		Model:  e.model,
		Prompt: text,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, errors.New("OllamaEmbedder: empty embedding response")
	}
	out := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}
