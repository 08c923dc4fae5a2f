package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/davidamom/neuralflake/internal/domain"
)

// Local is a deterministic, dependency-free embedder: tokens are hashed into
// a fixed number of buckets and the resulting count vector is L2-normalized.
// It carries no semantic signal worth shipping, but it is stable across runs
// and processes, which makes it useful for offline development and for tests
// that assert on pipeline behavior rather than retrieval quality.
type Local struct {
	dim int
}

// NewLocal creates a local embedder producing vectors of the given dimension.
func NewLocal(dim int) (*Local, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d", domain.ErrInvalidConfiguration, dim)
	}
	return &Local{dim: dim}, nil
}

// Embed returns the hashed-bag-of-tokens vector for text.
func (l *Local) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, fmt.Errorf("%w: cannot embed empty text", domain.ErrEmbedding)
	}

	vec := make([]float32, l.dim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[int(h.Sum32())%l.dim]++
	}
	l2normalize(vec)
	return vec, nil
}

// EmbedBatch embeds each text in order, failing atomically on the first
// item that cannot be embedded.
func (l *Local) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: empty input batch", domain.ErrEmbedding)
	}

	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := l.Embed(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, &domain.BatchError{Index: i, Err: err}
		}
		vecs[i] = vec
	}
	return vecs, nil
}

// Dimension returns the configured vector size.
func (l *Local) Dimension() int { return l.dim }
