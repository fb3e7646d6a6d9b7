package vectorstore

import (
	"context"
	"sort"
	"sync"
)

type memoryDoc struct {
	id        string
	document  string
	metadata  map[string]any
	embedding []float32
}

// MemoryStore keeps collections in process. It backs local runs and tests;
// distances use the same cosine distance as the pgvector backend.
type MemoryStore struct {
	embedder Embedder

	mu          sync.RWMutex
	collections map[string][]*memoryDoc
}

func NewMemoryStore(embedder Embedder) *MemoryStore {
	return &MemoryStore{
		embedder:    embedder,
		collections: make(map[string][]*memoryDoc),
	}
}

func (s *MemoryStore) Add(ctx context.Context, collection string, documents, ids []string, metadatas []map[string]any) error {
	if err := validateAdd(documents, ids, metadatas); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	embeddings, err := s.embedder.Embed(ctx, documents)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collections[collection]
	for i, id := range ids {
		doc := &memoryDoc{id: id, document: documents[i], embedding: embeddings[i], metadata: map[string]any{}}
		if metadatas != nil && metadatas[i] != nil {
			doc.metadata = metadatas[i]
		}

		replaced := false
		for j, existing := range docs {
			if existing.id == id {
				docs[j] = doc
				replaced = true
				break
			}
		}
		if !replaced {
			docs = append(docs, doc)
		}
	}
	s.collections[collection] = docs
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, query, collection string, n int, where map[string]any) (*SearchResult, error) {
	result := &SearchResult{
		IDs:       [][]string{{}},
		Documents: [][]string{{}},
		Metadatas: [][]map[string]any{{}},
		Distances: [][]float64{{}},
	}

	s.mu.RLock()
	candidates := make([]*memoryDoc, 0, len(s.collections[collection]))
	for _, doc := range s.collections[collection] {
		if matches(doc.metadata, where) {
			candidates = append(candidates, doc)
		}
	}
	s.mu.RUnlock()

	if len(candidates) == 0 || n <= 0 {
		return result, nil
	}

	embeddings, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	q := embeddings[0]

	type scored struct {
		doc      *memoryDoc
		distance float64
	}
	ranked := make([]scored, len(candidates))
	for i, doc := range candidates {
		ranked[i] = scored{doc: doc, distance: 1 - CosineSimilarity(q, doc.embedding)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].distance < ranked[j].distance })

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	for _, r := range ranked {
		result.IDs[0] = append(result.IDs[0], r.doc.id)
		result.Documents[0] = append(result.Documents[0], r.doc.document)
		result.Metadatas[0] = append(result.Metadatas[0], r.doc.metadata)
		result.Distances[0] = append(result.Distances[0], r.distance)
	}
	return result, nil
}

func (s *MemoryStore) GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	return s.embedder.Embed(ctx, texts)
}

func (s *MemoryStore) Delete(_ context.Context, collection string, ids []string, where map[string]any) error {
	if len(ids) == 0 && len(where) == 0 {
		return ErrEmptyDelete
	}

	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.collections[collection][:0]
	for _, doc := range s.collections[collection] {
		_, listed := idSet[doc.id]
		hit := (len(ids) == 0 || listed) && matches(doc.metadata, where)
		if !hit {
			kept = append(kept, doc)
		}
	}
	s.collections[collection] = kept
	return nil
}

func (s *MemoryStore) Count(_ context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection]), nil
}
