// Package vectorstore persists (vector, text, metadata) records and answers
// cosine-similarity queries. Three adapters implement the Store interface:
// a durable local SQLite store (the default), a remote Qdrant store, and an
// in-memory store for tests and ephemeral runs.
package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_store.go -package=mocks github.com/davidamom/neuralflake/internal/vectorstore Store

import "context"

// Metadata keys attached to every stored record.
const (
	MetaPath       = "path"
	MetaFileType   = "file_type"
	MetaChunkIndex = "chunk_index"
	MetaStart      = "start_offset"
	MetaEnd        = "end_offset"
	MetaTitle      = "title"
	MetaModels     = "dbt_models"
)

// Record is a stored (vector, text, metadata) triple. The ID is stable per
// (source path, chunk index), which makes upserts idempotent across
// re-indexing runs.
type Record struct {
	ID     string
	Vector []float32
	Text   string
	Meta   map[string]any
}

// Clone returns a deep copy of the record. Vector and Meta are copied so the
// caller can mutate the clone without reaching shared state.
func (r Record) Clone() Record {
	out := r
	out.Vector = append([]float32(nil), r.Vector...)
	if r.Meta != nil {
		out.Meta = make(map[string]any, len(r.Meta))
		for k, v := range r.Meta {
			out.Meta[k] = v
		}
	}
	return out
}

// Result is a record returned from a similarity query with its score.
type Result struct {
	Record Record
	Score  float32
}

// Store is the vector storage capability consumed by the pipeline.
type Store interface {
	// Upsert inserts records, overwriting any existing record with the same
	// ID. Records whose vector length differs from the store's configured
	// dimensionality are rejected.
	Upsert(ctx context.Context, records []Record) error

	// Query returns up to topK records ranked by descending cosine
	// similarity to vector, ties broken most-recently-inserted first.
	// Querying an empty store returns an empty result, not an error.
	Query(ctx context.Context, vector []float32, topK int) ([]Result, error)

	// Delete removes records by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// ListIDs returns the IDs of all records whose source path equals
	// sourcePath, ordered by chunk index. Used for stale-chunk cleanup when
	// a document is re-indexed.
	ListIDs(ctx context.Context, sourcePath string) ([]string, error)
}
