package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/davidamom/neuralflake/internal/chunker"
	"github.com/davidamom/neuralflake/internal/domain"
	"github.com/davidamom/neuralflake/internal/embedding"
	"github.com/davidamom/neuralflake/internal/embedding/mocks"
	"github.com/davidamom/neuralflake/internal/source"
	"github.com/davidamom/neuralflake/internal/vectorstore"
	storemocks "github.com/davidamom/neuralflake/internal/vectorstore/mocks"
)

func writeFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func newTestProcessor(t *testing.T, store vectorstore.Store) *Processor {
	t.Helper()
	ch, err := chunker.New(50, 10)
	if err != nil {
		t.Fatalf("chunker.New() error = %v", err)
	}
	provider, err := embedding.NewLocal(8)
	if err != nil {
		t.Fatalf("embedding.NewLocal() error = %v", err)
	}
	src := source.NewFS([]string{".md", ".sql", ".yml"})
	return New(src, ch, provider, store, Config{Backoff: time.Millisecond})
}

func TestProcessor_Run(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "docs/warehouses.md", "# Warehouses\n\n"+strings.Repeat("sizing guidance ", 20))
	writeFile(t, root, "models/stg_orders.sql", "select order_id, amount from raw.orders")

	store, _ := vectorstore.NewMemory(8)
	p := newTestProcessor(t, store)

	report, err := p.Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.DocsProcessed != 2 {
		t.Errorf("DocsProcessed = %d, want 2", report.DocsProcessed)
	}
	if report.DocsFailed != 0 {
		t.Errorf("DocsFailed = %d, want 0", report.DocsFailed)
	}

	count, _ := store.Count(context.Background())
	if count != report.ChunksWritten {
		t.Errorf("store holds %d records, report says %d chunks written", count, report.ChunksWritten)
	}
	if count == 0 {
		t.Error("no chunks written")
	}
}

func TestProcessor_IsolatesDocumentFailures(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 4; i++ {
		writeFile(t, root, fmt.Sprintf("doc%d.md", i), fmt.Sprintf("document %d content", i))
	}
	// Not valid UTF-8; reading it must fail without sinking the run.
	badPath := filepath.Join(root, "broken.md")
	if err := os.WriteFile(badPath, []byte{0xff, 0xfe, 0xfd}, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	store, _ := vectorstore.NewMemory(8)
	p := newTestProcessor(t, store)

	report, err := p.Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.DocsProcessed != 4 {
		t.Errorf("DocsProcessed = %d, want 4", report.DocsProcessed)
	}
	if report.DocsFailed != 1 {
		t.Errorf("DocsFailed = %d, want 1", report.DocsFailed)
	}
	if len(report.Failures) != 1 || report.Failures[0].Path != "broken.md" {
		t.Errorf("Failures = %+v, want one entry for broken.md", report.Failures)
	}
	if !strings.Contains(report.Failures[0].Cause, "UTF-8") {
		t.Errorf("failure cause = %q, want an encoding error", report.Failures[0].Cause)
	}
}

func TestProcessor_ReindexIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "guide.md", strings.Repeat("incremental load strategy ", 10))

	store, _ := vectorstore.NewMemory(8)
	p := newTestProcessor(t, store)
	ctx := context.Background()

	if _, err := p.Run(ctx, root); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	first, _ := store.Count(ctx)

	if _, err := p.Run(ctx, root); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	second, _ := store.Count(ctx)

	if first != second {
		t.Errorf("store count changed across identical runs: %d then %d", first, second)
	}
}

func TestProcessor_RemovesStaleChunksWhenDocumentShrinks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "guide.md", strings.Repeat("long version of the document ", 20))

	store, _ := vectorstore.NewMemory(8)
	p := newTestProcessor(t, store)
	ctx := context.Background()

	if _, err := p.Run(ctx, root); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	before, _ := store.Count(ctx)

	writeFile(t, root, "guide.md", "short now")
	if _, err := p.Run(ctx, root); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	after, _ := store.Count(ctx)

	if after >= before {
		t.Errorf("store count = %d after shrink, want fewer than %d", after, before)
	}
	ids, _ := store.ListIDs(ctx, "guide.md")
	if len(ids) != after {
		t.Errorf("ListIDs returned %d IDs, store count is %d", len(ids), after)
	}
}

func TestProcessor_StoreUnavailableAbortsRun(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "first document")
	writeFile(t, root, "b.md", "second document")

	ctrl := gomock.NewController(t)
	store := storemocks.NewMockStore(ctrl)
	store.EXPECT().ListIDs(gomock.Any(), gomock.Any()).
		Return(nil, fmt.Errorf("%w: connection refused", domain.ErrStoreUnavailable))

	p := newTestProcessor(t, store)
	report, err := p.Run(context.Background(), root)
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("Run() error = %v, want ErrStoreUnavailable", err)
	}
	if report.DocsProcessed != 0 {
		t.Errorf("DocsProcessed = %d, want 0", report.DocsProcessed)
	}
}

func TestProcessor_CanceledContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "content")

	store, _ := vectorstore.NewMemory(8)
	p := newTestProcessor(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, root)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	count, _ := store.Count(context.Background())
	if count != 0 {
		t.Errorf("store holds %d records after canceled run, want 0", count)
	}
}

func TestProcessor_RetriesEmbeddingFailures(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "retry me")

	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)

	gomock.InOrder(
		provider.EXPECT().EmbedBatch(gomock.Any(), gomock.Any()).
			Return(nil, fmt.Errorf("%w: upstream hiccup", domain.ErrEmbedding)).Times(2),
		provider.EXPECT().EmbedBatch(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, texts []string) ([][]float32, error) {
				vecs := make([][]float32, len(texts))
				for i := range vecs {
					vecs[i] = []float32{1, 0, 0, 0, 0, 0, 0, 0}
				}
				return vecs, nil
			}),
	)

	ch, _ := chunker.New(50, 10)
	store, _ := vectorstore.NewMemory(8)
	src := source.NewFS([]string{".md"})
	p := New(src, ch, provider, store, Config{MaxRetries: 3, Backoff: time.Millisecond})

	report, err := p.Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.DocsProcessed != 1 || report.DocsFailed != 0 {
		t.Errorf("report = %+v, want one processed document", report)
	}
}

func TestProcessor_ExhaustedRetriesFailDocument(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "never embeds")

	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)
	provider.EXPECT().EmbedBatch(gomock.Any(), gomock.Any()).
		Return(nil, fmt.Errorf("%w: upstream down", domain.ErrEmbedding)).Times(2)

	ch, _ := chunker.New(50, 10)
	store, _ := vectorstore.NewMemory(8)
	src := source.NewFS([]string{".md"})
	p := New(src, ch, provider, store, Config{MaxRetries: 2, Backoff: time.Millisecond})

	report, err := p.Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.DocsFailed != 1 {
		t.Fatalf("DocsFailed = %d, want 1", report.DocsFailed)
	}
	count, _ := store.Count(context.Background())
	if count != 0 {
		t.Errorf("store holds %d records after failed document, want 0", count)
	}
}

func TestProcessor_NoRetriesConfiguredMeansSingleAttempt(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "one shot")

	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)
	// Exactly one call: with MaxRetries left at its floor there is no
	// second attempt behind the caller's back.
	provider.EXPECT().EmbedBatch(gomock.Any(), gomock.Any()).
		Return(nil, fmt.Errorf("%w: upstream down", domain.ErrEmbedding)).Times(1)

	ch, _ := chunker.New(50, 10)
	store, _ := vectorstore.NewMemory(8)
	src := source.NewFS([]string{".md"})
	p := New(src, ch, provider, store, Config{Backoff: time.Millisecond})

	report, err := p.Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.DocsFailed != 1 {
		t.Errorf("DocsFailed = %d, want 1", report.DocsFailed)
	}
	if !strings.Contains(report.Failures[0].Cause, "after 1 attempt") {
		t.Errorf("failure cause = %q, want a single-attempt failure", report.Failures[0].Cause)
	}
}

func TestProcessor_OnMutationFires(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "content one")
	writeFile(t, root, "b.md", "content two")

	store, _ := vectorstore.NewMemory(8)
	p := newTestProcessor(t, store)

	var fired int
	p.OnMutation(func() { fired++ })

	if _, err := p.Run(context.Background(), root); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if fired != 2 {
		t.Errorf("OnMutation fired %d times, want 2 (once per committed document)", fired)
	}
}

func TestRecordID_Deterministic(t *testing.T) {
	a := RecordID("docs/a.md", 3)
	b := RecordID("docs/a.md", 3)
	if a != b {
		t.Errorf("RecordID not deterministic: %s vs %s", a, b)
	}
	if a == RecordID("docs/a.md", 4) {
		t.Error("RecordID collides across chunk indexes")
	}
	if a == RecordID("docs/b.md", 3) {
		t.Error("RecordID collides across paths")
	}
}
