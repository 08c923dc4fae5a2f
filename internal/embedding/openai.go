package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/davidamom/neuralflake/internal/domain"
)

// OpenAI embeds text through an OpenAI-compatible embeddings API. A custom
// base URL points it at self-hosted servers (llama.cpp, vLLM) that speak the
// same protocol.
type OpenAI struct {
	client *openai.Client
	model  string
	dim    int
}

// NewOpenAI creates the API adapter. dim is the expected vector size; every
// returned vector is validated against it so a misconfigured model surfaces
// immediately instead of poisoning the store.
func NewOpenAI(apiKey, baseURL, model string, dim int) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		dim:    dim,
	}
}

// Embed returns the embedding for a single text.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds all texts in one API call, preserving input order.
func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: empty input batch", domain.ErrEmbedding)
	}
	for i, text := range texts {
		if text == "" {
			return nil, &domain.BatchError{Index: i, Err: fmt.Errorf("cannot embed empty text")}
		}
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(o.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", domain.ErrEmbedding, len(texts), len(resp.Data))
	}

	result := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("%w: response index %d out of range", domain.ErrEmbedding, data.Index)
		}
		if len(data.Embedding) != o.dim {
			return nil, &domain.BatchError{
				Index: data.Index,
				Err:   fmt.Errorf("embedding has size %d, expected %d", len(data.Embedding), o.dim),
			}
		}
		vec := make([]float32, o.dim)
		copy(vec, data.Embedding)
		l2normalize(vec)
		result[data.Index] = vec
	}
	for i, vec := range result {
		if vec == nil {
			return nil, fmt.Errorf("%w: no embedding returned for input %d", domain.ErrEmbedding, i)
		}
	}

	return result, nil
}

// Dimension returns the configured vector size.
func (o *OpenAI) Dimension() int { return o.dim }
