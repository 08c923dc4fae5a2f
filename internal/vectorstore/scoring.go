package vectorstore

import (
	"math"
	"sort"
)

// scored pairs a record with its similarity score and the store-assigned
// insert sequence used for deterministic tie-breaking.
type scored struct {
	rec   Record
	score float32
	seq   int64
}

// cosine computes cosine similarity between a and b. Providers L2-normalize
// their output, but the norms are computed here anyway so that unnormalized
// vectors still rank correctly.
func cosine(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// rank sorts by descending score, breaking ties by most recent insert, and
// truncates to topK.
func rank(items []scored, topK int) []Result {
	sort.Slice(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].seq > items[j].seq
	})

	if topK < len(items) {
		items = items[:topK]
	}
	results := make([]Result, len(items))
	for i, item := range items {
		results[i] = Result{Record: item.rec, Score: item.score}
	}
	return results
}
