// Package explain generates a one-line, human-readable rationale for
// why an episode was recommended, grounded on the teacher's
// AnthropicLLM (pkg/models/anthropics.go): the same Messages API
// client construction and single-turn completion call, retargeted
// from a general agent prompt to a fixed recommendation-explanation
// prompt. It is optional, used only by cmd/app's demo output, and
// never touches ranking: a missing ANTHROPIC_API_KEY degrades to
// Explainer returning an empty string rather than failing the request.
package explain

import (
	"context"
	"fmt"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/castsignal/foryou-engine/src/ranking"
)

// Explainer produces a short rationale for a ranked episode.
type Explainer interface {
	Explain(ctx context.Context, ep ranking.ScoredEpisode) (string, error)
}

// ClaudeExplainer calls Anthropic's Messages API for a single-sentence
// explanation. It is nil-safe: a zero-value ClaudeExplainer with no
// client configured always returns "", nil.
type ClaudeExplainer struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

// NewClaudeExplainer constructs a ClaudeExplainer, reading
// ANTHROPIC_API_KEY from the environment. model defaults to
// "claude-3-5-haiku-latest" when empty; the explanation prompt is
// deliberately short, so a small fast model is enough.
func NewClaudeExplainer(model string) *ClaudeExplainer {
	key := os.Getenv("ANTHROPIC_API_KEY")
	if key == "" {
		return &ClaudeExplainer{}
	}
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	cl := anthropic.NewClient(anthropicopt.WithAPIKey(key))
	return &ClaudeExplainer{client: &cl, model: model, maxTokens: 120}
}

// Explain asks Claude for a single sentence explaining why ep was
// surfaced, given its badges and similarity score. Returns "", nil
// when no client is configured.
func (e *ClaudeExplainer) Explain(ctx context.Context, ep ranking.ScoredEpisode) (string, error) {
	if e == nil || e.client == nil {
		return "", nil
	}

	prompt := fmt.Sprintf(
		"In one short sentence, explain to a podcast listener why the episode %q (badges: %s, similarity score %.2f) was recommended to them. Do not repeat the episode title verbatim.",
		ep.Episode.Title, strings.Join(badgeStrings(ep.Badges), ", "), ep.Similarity,
	)

	msg, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: int64(e.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, cb := range msg.Content {
		if tb, ok := cb.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func badgeStrings(badges []ranking.Badge) []string {
	if len(badges) == 0 {
		return []string{"none"}
	}
	out := make([]string, len(badges))
	for i, b := range badges {
		out[i] = string(b)
	}
	return out
}
