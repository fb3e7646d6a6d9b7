package vectorstore

import (
	"context"
	"math"
	"reflect"
)

// Collections used by the pipeline.
const (
	CollectionItems     = "items"
	CollectionAnalysis  = "analysis"
	CollectionSynthesis = "synthesis"
	CollectionSnapshots = "snapshots"
)

// Store is a collection-scoped document store with similarity search.
// where filters are equality matches on metadata keys; nil matches everything.
type Store interface {
	Add(ctx context.Context, collection string, documents, ids []string, metadatas []map[string]any) error
	Search(ctx context.Context, query, collection string, n int, where map[string]any) (*SearchResult, error)
	GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	Delete(ctx context.Context, collection string, ids []string, where map[string]any) error
	Count(ctx context.Context, collection string) (int, error)
}

// SearchResult holds one row of matches per query. All four slices have the
// same shape and the distances are ascending within a row.
type SearchResult struct {
	IDs       [][]string
	Documents [][]string
	Metadatas [][]map[string]any
	Distances [][]float64
}

func (r *SearchResult) Empty() bool {
	return r == nil || len(r.IDs) == 0 || len(r.IDs[0]) == 0
}

// CosineSimilarity is dot(a,b)/(|a||b|), or 0 when either vector has zero
// norm or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func validateAdd(documents, ids []string, metadatas []map[string]any) error {
	if len(documents) != len(ids) {
		return &MismatchError{What: "documents and ids", Left: len(documents), Right: len(ids)}
	}
	if metadatas != nil && len(metadatas) != len(ids) {
		return &MismatchError{What: "metadatas and ids", Left: len(metadatas), Right: len(ids)}
	}
	return nil
}

func matches(metadata, where map[string]any) bool {
	for k, want := range where {
		got, ok := metadata[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
