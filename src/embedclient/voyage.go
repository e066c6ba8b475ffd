package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// VoyageEmbedder proxies to Voyage AI, Anthropic's recommended
// embeddings partner (Anthropic does not offer a first-party
// embeddings endpoint, so github.com/anthropics/anthropic-sdk-go
// covers this module's only other Anthropic-API surface: the
// completions call this package deliberately does not make, since
// ingest only ever needs embeddings). Requires VOYAGE_API_KEY.
type VoyageEmbedder struct {
	client    *http.Client
	apiKey    string
	model     string
	inputType string
	endpoint  string
}

// NewVoyageEmbedder constructs a VoyageEmbedder. model defaults to
// "voyage-3.5" when empty.
func NewVoyageEmbedder(model string) (Embedder, error) {
	apiKey := os.Getenv("VOYAGE_API_KEY")
	if apiKey == "" {
		return nil, errors.New("VoyageEmbedder: VOYAGE_API_KEY not set")
	}
	if model == "" {
		model = "voyage-3.5"
	}
	inputType := os.Getenv("FORYOU_EMBED_INPUT_TYPE")
	if inputType == "" {
		inputType = "document"
	}
	endpoint := os.Getenv("VOYAGE_API_BASE")
	if endpoint == "" {
		endpoint = "https://api.voyageai.com/v1/embeddings"
	}
	return &VoyageEmbedder{
		client:    &http.Client{Timeout: 60 * time.Second},
		apiKey:    apiKey,
		model:     model,
		inputType: inputType,
		endpoint:  endpoint,
	}, nil
}

func (e *VoyageEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	payload := map[string]any{
		"input":      []string{text},
		"model":      e.model,
		"input_type": e.inputType,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("voyage embeddings HTTP %d: %s", resp.StatusCode, string(slurp))
	}

	var out struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, errors.New("VoyageEmbedder: empty embedding response")
	}
	return f64toF32(out.Data[0].Embedding), nil
}

func f64toF32(v []float64) []float32 {
	r := make([]float32, len(v))
	for i, x := range v {
		r[i] = float32(x)
	}
	return r
}
