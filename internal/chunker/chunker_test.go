package chunker

import (
	"errors"
	"strings"
	"testing"

	"github.com/davidamom/neuralflake/internal/domain"
)

func TestNew_InvalidConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{name: "zero size", size: 0, overlap: 0},
		{name: "negative size", size: -10, overlap: 0},
		{name: "negative overlap", size: 100, overlap: -1},
		{name: "overlap equals size", size: 100, overlap: 100},
		{name: "overlap exceeds size", size: 100, overlap: 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.overlap)
			if err == nil {
				t.Fatalf("New(%d, %d) expected error, got nil", tt.size, tt.overlap)
			}
			if !errors.Is(err, domain.ErrInvalidConfiguration) {
				t.Errorf("New(%d, %d) error = %v, want ErrInvalidConfiguration", tt.size, tt.overlap, err)
			}
		})
	}
}

func TestSplit_EmptyText(t *testing.T) {
	c, err := New(1000, 200)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if chunks := c.Split(""); len(chunks) != 0 {
		t.Errorf("Split(\"\") = %d chunks, want 0", len(chunks))
	}
}

func TestSplit_KnownOffsets(t *testing.T) {
	// 2500 characters at size 1000 / overlap 200 must produce exactly
	// three chunks at [0,1000), [800,1800), [1600,2500).
	c, err := New(1000, 200)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	text := strings.Repeat("x", 2500)
	chunks := c.Split(text)

	if len(chunks) != 3 {
		t.Fatalf("Split() = %d chunks, want 3", len(chunks))
	}

	want := []struct{ start, end int }{
		{0, 1000},
		{800, 1800},
		{1600, 2500},
	}
	for i, w := range want {
		if chunks[i].Start != w.start || chunks[i].End != w.end {
			t.Errorf("chunk[%d] offsets = [%d,%d), want [%d,%d)", i, chunks[i].Start, chunks[i].End, w.start, w.end)
		}
		if chunks[i].Index != i {
			t.Errorf("chunk[%d].Index = %d, want %d", i, chunks[i].Index, i)
		}
		if len([]rune(chunks[i].Text)) != w.end-w.start {
			t.Errorf("chunk[%d] text length = %d, want %d", i, len([]rune(chunks[i].Text)), w.end-w.start)
		}
	}
}

func TestSplit_ShortText(t *testing.T) {
	c, err := New(1000, 200)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	chunks := c.Split("short document")
	if len(chunks) != 1 {
		t.Fatalf("Split() = %d chunks, want 1", len(chunks))
	}
	if chunks[0].Text != "short document" {
		t.Errorf("chunk text = %q, want original text", chunks[0].Text)
	}
	if chunks[0].Start != 0 || chunks[0].End != len([]rune("short document")) {
		t.Errorf("chunk offsets = [%d,%d)", chunks[0].Start, chunks[0].End)
	}
}

func TestSplit_ExactMultiple(t *testing.T) {
	// Text exactly one chunk long must not produce a trailing overlap-only chunk.
	c, err := New(100, 20)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	chunks := c.Split(strings.Repeat("a", 100))
	if len(chunks) != 1 {
		t.Fatalf("Split() = %d chunks, want 1", len(chunks))
	}
}

func TestSplit_Reconstruction(t *testing.T) {
	// Dropping each chunk's leading overlap and concatenating the remainder
	// must reconstruct the original text exactly.
	tests := []struct {
		name    string
		size    int
		overlap int
		text    string
	}{
		{name: "plain ascii", size: 50, overlap: 10, text: strings.Repeat("the quick brown fox ", 40)},
		{name: "zero overlap", size: 64, overlap: 0, text: strings.Repeat("0123456789", 33)},
		{name: "multibyte runes", size: 30, overlap: 7, text: strings.Repeat("snowflake❄메타데이터 ", 25)},
		{name: "single rune", size: 10, overlap: 3, text: "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.size, tt.overlap)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			chunks := c.Split(tt.text)

			var b strings.Builder
			for i, chunk := range chunks {
				runes := []rune(chunk.Text)
				if i == 0 {
					b.WriteString(chunk.Text)
					continue
				}
				prev := chunks[i-1]
				gotOverlap := prev.End - chunk.Start
				if i < len(chunks) && gotOverlap != tt.overlap {
					t.Errorf("overlap between chunk %d and %d = %d, want %d", i-1, i, gotOverlap, tt.overlap)
				}
				b.WriteString(string(runes[gotOverlap:]))
			}
			if b.String() != tt.text {
				t.Errorf("reconstructed text differs from original (got %d runes, want %d)", len([]rune(b.String())), len([]rune(tt.text)))
			}
		})
	}
}

func TestSplit_Deterministic(t *testing.T) {
	c, err := New(120, 30)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	text := strings.Repeat("select * from warehouse.orders;\n", 60)

	first := c.Split(text)
	second := c.Split(text)

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk[%d] differs between runs", i)
		}
	}
}
