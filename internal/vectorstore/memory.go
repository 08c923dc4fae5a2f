package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/davidamom/neuralflake/internal/domain"
)

// Memory is an in-memory Store using brute-force cosine scoring. State is
// lost on process exit; it exists for tests and ephemeral runs.
type Memory struct {
	mu      sync.RWMutex
	dim     int
	records map[string]*memoryRecord
	nextSeq int64
}

type memoryRecord struct {
	rec Record
	seq int64
}

// NewMemory creates an in-memory store with the given fixed dimensionality.
func NewMemory(dim int) (*Memory, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: vector dimension must be positive, got %d", domain.ErrInvalidConfiguration, dim)
	}
	return &Memory{dim: dim, records: make(map[string]*memoryRecord)}, nil
}

// Upsert inserts or overwrites records keyed by ID.
func (m *Memory) Upsert(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("%w: record ID must not be empty", domain.ErrInvalidArgument)
		}
		if len(rec.Vector) != m.dim {
			return fmt.Errorf("%w: record %s vector has dimension %d, store expects %d",
				domain.ErrInvalidConfiguration, rec.ID, len(rec.Vector), m.dim)
		}
	}
	for _, rec := range records {
		m.nextSeq++
		m.records[rec.ID] = &memoryRecord{rec: rec.Clone(), seq: m.nextSeq}
	}
	return nil
}

// Query ranks all records by cosine similarity.
func (m *Memory) Query(ctx context.Context, vector []float32, topK int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", domain.ErrInvalidArgument, topK)
	}
	if len(vector) != m.dim {
		return nil, fmt.Errorf("%w: query vector has dimension %d, store expects %d",
			domain.ErrInvalidArgument, len(vector), m.dim)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]scored, 0, len(m.records))
	for _, mr := range m.records {
		items = append(items, scored{
			rec:   mr.rec.Clone(),
			score: cosine(mr.rec.Vector, vector),
			seq:   mr.seq,
		})
	}
	return rank(items, topK), nil
}

// Delete removes records by ID.
func (m *Memory) Delete(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.records, id)
	}
	return nil
}

// Count returns the number of stored records.
func (m *Memory) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// ListIDs returns IDs of records for one source path, ordered by chunk index.
func (m *Memory) ListIDs(ctx context.Context, sourcePath string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	type entry struct {
		id    string
		index int
	}
	var entries []entry
	for id, mr := range m.records {
		if p, _ := mr.rec.Meta[MetaPath].(string); p == sourcePath {
			index, _ := mr.rec.Meta[MetaChunkIndex].(int)
			entries = append(entries, entry{id: id, index: index})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].index < entries[j].index })

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids, nil
}
