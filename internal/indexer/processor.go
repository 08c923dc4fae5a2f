// Package indexer drives the ingest pipeline: it enumerates source
// documents, chunks them, embeds the chunks in parallel batches with bounded
// retries, and commits the results to the vector store one document at a
// time. Failures are isolated per document so one unreadable file never
// sinks a whole run.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/davidamom/neuralflake/internal/chunker"
	"github.com/davidamom/neuralflake/internal/contextutil"
	"github.com/davidamom/neuralflake/internal/domain"
	"github.com/davidamom/neuralflake/internal/embedding"
	"github.com/davidamom/neuralflake/internal/vectorstore"
)

// Source enumerates and reads documents for ingestion.
type Source interface {
	List(ctx context.Context, root string) ([]string, error)
	Read(root, relPath string) (domain.Document, error)
}

// Config tunes batching, parallelism, and retry behavior.
type Config struct {
	// BatchSize is the number of chunks sent per embedding call.
	BatchSize int
	// Workers bounds how many embedding batches run concurrently.
	Workers int
	// MaxRetries is the number of attempts per embedding batch, the first
	// attempt included. Values below 1 mean a single attempt, no retry.
	MaxRetries int
	// Timeout bounds a single embedding attempt. A timed-out attempt counts
	// as an embedding failure and is retried like any other.
	Timeout time.Duration
	// Backoff is the delay before the first retry; it doubles per attempt.
	Backoff time.Duration
}

// Processor runs ingest over a document source.
type Processor struct {
	source     Source
	chunker    *chunker.Chunker
	provider   embedding.Provider
	store      vectorstore.Store
	cfg        Config
	onMutation func()
}

// New creates a Processor. Zero config fields fall back to sane defaults.
func New(source Source, ch *chunker.Chunker, provider embedding.Provider, store vectorstore.Store, cfg Config) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return &Processor{
		source:   source,
		chunker:  ch,
		provider: provider,
		store:    store,
		cfg:      cfg,
	}
}

// OnMutation registers a callback fired after each successful document
// commit. The retriever hangs its cache invalidation here.
func (p *Processor) OnMutation(fn func()) {
	p.onMutation = fn
}

// Run ingests every document under root and returns a per-run report.
// Individual document failures are recorded and skipped; a store failure or
// context cancellation aborts the run, leaving already-committed documents
// in place.
func (p *Processor) Run(ctx context.Context, root string) (*Report, error) {
	logger := contextutil.LoggerFromContext(ctx)
	start := time.Now()
	report := &Report{}

	paths, err := p.source.List(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("listing documents under %s: %w", root, err)
	}
	logger.InfoContext(ctx, "ingest started", "root", root, "documents", len(paths))

	for _, path := range paths {
		// Cancellation takes effect between documents, never mid-commit.
		if err := ctx.Err(); err != nil {
			report.DurationMS = time.Since(start).Milliseconds()
			return report, err
		}

		written, err := p.processDocument(ctx, root, path)
		if err != nil {
			if errors.Is(err, domain.ErrStoreUnavailable) {
				logger.ErrorContext(ctx, "ingest aborted, store unavailable", "path", path, "error", err)
				report.DurationMS = time.Since(start).Milliseconds()
				return report, err
			}
			if ctx.Err() != nil {
				report.DurationMS = time.Since(start).Milliseconds()
				return report, ctx.Err()
			}
			report.DocsFailed++
			report.Failures = append(report.Failures, Failure{Path: path, Cause: err.Error()})
			logger.WarnContext(ctx, "document failed", "path", path, "error", err)
			continue
		}

		report.DocsProcessed++
		report.ChunksWritten += written
		logger.DebugContext(ctx, "document ingested", "path", path, "chunks", written)
	}

	report.DurationMS = time.Since(start).Milliseconds()
	logger.InfoContext(ctx, "ingest finished",
		"processed", report.DocsProcessed,
		"failed", report.DocsFailed,
		"chunks", report.ChunksWritten,
		"duration_ms", report.DurationMS)
	return report, nil
}

// processDocument reads, chunks, embeds, and commits one document. All of
// the document's embedding batches must succeed before anything is written,
// so a failed document leaves the store exactly as it was.
func (p *Processor) processDocument(ctx context.Context, root, relPath string) (int, error) {
	doc, err := p.source.Read(root, relPath)
	if err != nil {
		return 0, err
	}

	chunks := p.chunker.Split(doc.Text)
	records := make([]vectorstore.Record, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for begin := 0; begin < len(chunks); begin += p.cfg.BatchSize {
		begin := begin
		end := min(begin+p.cfg.BatchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, end-begin)
			for i, c := range chunks[begin:end] {
				texts[i] = c.Text
			}
			vecs, err := p.embedWithRetry(gctx, texts)
			if err != nil {
				return err
			}
			for i, c := range chunks[begin:end] {
				records[begin+i] = p.record(doc, c, vecs[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	// Commit: drop the document's previous chunks, then write the new set.
	// Stable record IDs make the upsert itself idempotent; the delete only
	// clears chunks past the new chunk count after a document shrank.
	stale, err := p.store.ListIDs(ctx, doc.Path)
	if err != nil {
		return 0, err
	}
	if len(stale) > 0 {
		if err := p.store.Delete(ctx, stale); err != nil {
			return 0, err
		}
	}
	if len(records) > 0 {
		if err := p.store.Upsert(ctx, records); err != nil {
			return 0, err
		}
	}

	if p.onMutation != nil {
		p.onMutation()
	}
	return len(records), nil
}

// embedWithRetry embeds one batch with exponential backoff between attempts.
func (p *Processor) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	delay := p.cfg.Backoff
	var lastErr error

	for attempt := 1; attempt <= p.cfg.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		vecs, err := p.provider.EmbedBatch(attemptCtx, texts)
		cancel()
		if err == nil {
			return vecs, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: attempt timed out after %s", domain.ErrEmbedding, p.cfg.Timeout)
		}
		lastErr = err

		if attempt == p.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, fmt.Errorf("batch failed after %d attempts: %w", p.cfg.MaxRetries, lastErr)
}

func (p *Processor) record(doc domain.Document, c chunker.Chunk, vec []float32) vectorstore.Record {
	meta := map[string]any{
		vectorstore.MetaPath:       doc.Path,
		vectorstore.MetaFileType:   doc.FileType,
		vectorstore.MetaChunkIndex: c.Index,
		vectorstore.MetaStart:      c.Start,
		vectorstore.MetaEnd:        c.End,
	}
	if doc.Title != "" {
		meta[vectorstore.MetaTitle] = doc.Title
	}
	if len(doc.Models) > 0 {
		meta[vectorstore.MetaModels] = doc.Models
	}
	return vectorstore.Record{
		ID:     RecordID(doc.Path, c.Index),
		Vector: vec,
		Text:   c.Text,
		Meta:   meta,
	}
}

// RecordID derives the stable UUID for a (source path, chunk index) pair.
// Re-indexing an unchanged document reproduces the same IDs, which is what
// makes ingest idempotent end to end.
func RecordID(path string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d", path, index))).String()
}
