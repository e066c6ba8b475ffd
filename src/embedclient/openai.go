package embedclient

import (
	"context"
	"errors"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder embeds text via OpenAI's embeddings endpoint.
// Requires OPENAI_API_KEY.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder. model defaults to
// text-embedding-3-small when empty.
func NewOpenAIEmbedder(model string) (Embedder, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OpenAIEmbedder: OPENAI_API_KEY not set")
	}
	m := openai.SmallEmbedding3
	if model != "" {
		m = openai.EmbeddingModel(model)
	}
	return &OpenAIEmbedder{client: openai.NewClient(apiKey), model: m}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("OpenAIEmbedder: empty embedding response")
	}
	return resp.Data[0].Embedding, nil
}
