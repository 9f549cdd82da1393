package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder backs C2 with OpenAI's embeddings endpoint, grounded on
// BaSui01-AgentFlowCreativeHub's rag/openai_embeddings.go use of
// openai.CreateEmbeddings.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder builds an embedder against apiKey, optionally pointed at
// a custom baseURL for OpenAI-wire-compatible embedding backends.
func NewOpenAIEmbedder(apiKey, baseURL string) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.SmallEmbedding3,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: openai request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding: openai returned no data")
	}

	raw := resp.Data[0].Embedding
	vec := make(Vector, len(raw))
	for i, f := range raw {
		vec[i] = float64(f)
	}
	return Normalize(vec), nil
}
