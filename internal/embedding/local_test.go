package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/davidamom/neuralflake/internal/domain"
)

func TestNewLocal_InvalidDimension(t *testing.T) {
	for _, dim := range []int{0, -5} {
		if _, err := NewLocal(dim); !errors.Is(err, domain.ErrInvalidConfiguration) {
			t.Errorf("NewLocal(%d) error = %v, want ErrInvalidConfiguration", dim, err)
		}
	}
}

func TestLocal_Embed(t *testing.T) {
	l, err := NewLocal(64)
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}

	vec, err := l.Embed(context.Background(), "select order_id from stg_orders")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 64 {
		t.Fatalf("Embed() vector length = %d, want 64", len(vec))
	}
	if l.Dimension() != 64 {
		t.Errorf("Dimension() = %d, want 64", l.Dimension())
	}

	// Unit length after normalization.
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1.0) > 1e-5 {
		t.Errorf("vector norm^2 = %f, want 1.0", sum)
	}
}

func TestLocal_Deterministic(t *testing.T) {
	l, _ := NewLocal(32)
	ctx := context.Background()

	a, err := l.Embed(ctx, "dbt run --select fct_revenue")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	b, err := l.Embed(ctx, "dbt run --select fct_revenue")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Embed() not deterministic at index %d: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestLocal_BatchOfOneMatchesSingle(t *testing.T) {
	l, _ := NewLocal(48)
	ctx := context.Background()

	single, err := l.Embed(ctx, "snowflake warehouse metadata")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	batch, err := l.EmbedBatch(ctx, []string{"snowflake warehouse metadata"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("EmbedBatch() returned %d vectors, want 1", len(batch))
	}
	for i := range single {
		if single[i] != batch[0][i] {
			t.Fatalf("batch-of-one differs from single call at index %d", i)
		}
	}
}

func TestLocal_BatchPreservesOrder(t *testing.T) {
	l, _ := NewLocal(16)
	ctx := context.Background()

	texts := []string{"alpha", "beta", "gamma"}
	batch, err := l.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}

	for i, text := range texts {
		want, _ := l.Embed(ctx, text)
		for j := range want {
			if batch[i][j] != want[j] {
				t.Fatalf("batch[%d] does not match Embed(%q)", i, text)
			}
		}
	}
}

func TestLocal_BatchFailsAtomically(t *testing.T) {
	l, _ := NewLocal(16)

	_, err := l.EmbedBatch(context.Background(), []string{"ok", "", "also ok"})
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Fatalf("EmbedBatch() error = %v, want ErrEmbedding", err)
	}

	var batchErr *domain.BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("EmbedBatch() error %v is not a BatchError", err)
	}
	if batchErr.Index != 1 {
		t.Errorf("BatchError.Index = %d, want 1", batchErr.Index)
	}
}

func TestLocal_CanceledContext(t *testing.T) {
	l, _ := NewLocal(16)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := l.Embed(ctx, "anything"); !errors.Is(err, context.Canceled) {
		t.Errorf("Embed() error = %v, want context.Canceled", err)
	}
}
