package embedclient

import (
	"context"
	"errors"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiEmbedder embeds text via Google's Generative AI embedding
// models. Requires GEMINI_API_KEY (or GOOGLE_API_KEY).
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

// NewGeminiEmbedder constructs a GeminiEmbedder. model defaults to
// "embedding-001" when empty.
func NewGeminiEmbedder(model string) (Embedder, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("GeminiEmbedder: GEMINI_API_KEY not set")
	}
	if model == "" {
		model = "embedding-001"
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GeminiEmbedder{client: client, model: model}, nil
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	em := e.client.EmbeddingModel(e.model)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("GeminiEmbedder: empty embedding response")
	}
	return res.Embedding.Values, nil
}

func (e *GeminiEmbedder) Close() error {
	if e == nil || e.client == nil {
		return nil
	}
	return e.client.Close()
}
