// Package retriever answers similarity queries: it embeds the query text,
// searches the vector store, and optionally memoizes results until the next
// index mutation.
package retriever

import (
	"context"
	"fmt"
	"sync"

	"github.com/davidamom/neuralflake/internal/contextutil"
	"github.com/davidamom/neuralflake/internal/domain"
	"github.com/davidamom/neuralflake/internal/embedding"
	"github.com/davidamom/neuralflake/internal/vectorstore"
)

// Retriever turns query text into ranked store results.
type Retriever struct {
	provider embedding.Provider
	store    vectorstore.Store

	mu      sync.Mutex
	cache   map[string][]vectorstore.Result
	enabled bool
}

// New creates a Retriever. With withCache set, results are memoized per
// (query, topK) pair and dropped wholesale on Invalidate; the cache trades
// staleness for latency only between index mutations, never across them.
func New(provider embedding.Provider, store vectorstore.Store, withCache bool) *Retriever {
	r := &Retriever{provider: provider, store: store, enabled: withCache}
	if withCache {
		r.cache = make(map[string][]vectorstore.Result)
	}
	return r
}

// Retrieve returns the topK records most similar to the query text.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]vectorstore.Result, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", domain.ErrInvalidArgument, topK)
	}
	if query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", domain.ErrInvalidArgument)
	}

	key := cacheKey(query, topK)
	if r.enabled {
		r.mu.Lock()
		cached, ok := r.cache[key]
		r.mu.Unlock()
		if ok {
			logger.DebugContext(ctx, "retrieval cache hit", "top_k", topK)
			return cloneResults(cached), nil
		}
	}

	vector, err := r.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := r.store.Query(ctx, vector, topK)
	if err != nil {
		return nil, err
	}
	logger.DebugContext(ctx, "retrieval completed", "top_k", topK, "results", len(results))

	if r.enabled {
		r.mu.Lock()
		r.cache[key] = cloneResults(results)
		r.mu.Unlock()
	}
	return results, nil
}

// Invalidate drops the whole cache. Wired to the index processor's mutation
// callback so cached results never outlive the store state they came from.
func (r *Retriever) Invalidate() {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	r.cache = make(map[string][]vectorstore.Result)
	r.mu.Unlock()
}

// cacheKey joins topK and the query with a separator that cannot appear in
// either, so distinct pairs never collide.
func cacheKey(query string, topK int) string {
	return fmt.Sprintf("%d\x00%s", topK, query)
}

// cloneResults deep-copies each record so callers and the cache never share
// vectors or metadata maps.
func cloneResults(results []vectorstore.Result) []vectorstore.Result {
	out := make([]vectorstore.Result, len(results))
	for i, res := range results {
		out[i] = vectorstore.Result{Record: res.Record.Clone(), Score: res.Score}
	}
	return out
}
