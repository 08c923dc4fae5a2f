// Package embedding maps text to fixed-dimensionality vectors through a
// pluggable provider interface. The pipeline depends only on Provider;
// concrete adapters cover an OpenAI-compatible API backend and a
// deterministic local embedder for offline use and tests.
package embedding

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_provider.go -package=mocks github.com/davidamom/neuralflake/internal/embedding Provider

import (
	"context"
	"math"
)

// Provider generates embedding vectors for text.
type Provider interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	// It fails atomically: if any item cannot be embedded, the whole call
	// fails with a domain.BatchError carrying the failing index and no
	// vectors are returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the fixed length of vectors this provider produces.
	Dimension() int
}

// l2normalize scales v to unit length in place. Cosine similarity then
// reduces to a dot product in the store.
func l2normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
