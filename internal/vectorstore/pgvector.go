package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/pgvector/pgvector-go"

	"basegraph.app/radar/core/db"
)

const documentsTable = "vector_documents"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PGStore keeps documents in Postgres with a pgvector embedding column.
// Distances are pgvector cosine distances (the <=> operator), in [0, 2].
type PGStore struct {
	q        db.Querier
	embedder Embedder
}

func NewPGStore(q db.Querier, embedder Embedder) *PGStore {
	return &PGStore{q: q, embedder: embedder}
}

func (s *PGStore) Add(ctx context.Context, collection string, documents, ids []string, metadatas []map[string]any) error {
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

	insert := psql.Insert(documentsTable).
		Columns("collection", "id", "document", "metadata", "embedding")
	for i, id := range ids {
		var meta map[string]any
		if metadatas != nil {
			meta = metadatas[i]
		}
		metaJSON, err := marshalMetadata(meta)
		if err != nil {
			return fmt.Errorf("metadata for %s: %w", id, err)
		}
		insert = insert.Values(collection, id, documents[i], sq.Expr("?::jsonb", metaJSON), pgvector.NewVector(embeddings[i]))
	}
	insert = insert.Suffix(`ON CONFLICT (collection, id) DO UPDATE SET
		document = EXCLUDED.document,
		metadata = EXCLUDED.metadata,
		embedding = EXCLUDED.embedding,
		updated_at = now()`)

	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}
	if _, err := s.q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("adding %d documents to %s: %w", len(ids), collection, err)
	}
	return nil
}

func (s *PGStore) Search(ctx context.Context, query, collection string, n int, where map[string]any) (*SearchResult, error) {
	result := &SearchResult{
		IDs:       [][]string{{}},
		Documents: [][]string{{}},
		Metadatas: [][]map[string]any{{}},
		Distances: [][]float64{{}},
	}
	if n <= 0 {
		return result, nil
	}

	embeddings, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	sel := psql.Select("id", "document", "metadata").
		Column(sq.Expr("embedding <=> ? AS distance", pgvector.NewVector(embeddings[0]))).
		From(documentsTable).
		Where(sq.Eq{"collection": collection}).
		OrderBy("distance").
		Limit(uint64(n))
	sel, err = withMetadataFilter(sel, where)
	if err != nil {
		return nil, err
	}

	sqlStr, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building search: %w", err)
	}

	rows, err := s.q.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", collection, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, document string
			metaJSON     []byte
			distance     float64
		)
		if err := rows.Scan(&id, &document, &metaJSON, &distance); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		meta := map[string]any{}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &meta); err != nil {
				return nil, fmt.Errorf("decoding metadata for %s: %w", id, err)
			}
		}
		result.IDs[0] = append(result.IDs[0], id)
		result.Documents[0] = append(result.Documents[0], document)
		result.Metadatas[0] = append(result.Metadatas[0], meta)
		result.Distances[0] = append(result.Distances[0], distance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search rows: %w", err)
	}
	return result, nil
}

func (s *PGStore) GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	return s.embedder.Embed(ctx, texts)
}

func (s *PGStore) Delete(ctx context.Context, collection string, ids []string, where map[string]any) error {
	if len(ids) == 0 && len(where) == 0 {
		return ErrEmptyDelete
	}

	del := psql.Delete(documentsTable).Where(sq.Eq{"collection": collection})
	if len(ids) > 0 {
		del = del.Where(sq.Eq{"id": ids})
	}
	if len(where) > 0 {
		filter, err := marshalMetadata(where)
		if err != nil {
			return err
		}
		del = del.Where("metadata @> ?::jsonb", filter)
	}

	query, args, err := del.ToSql()
	if err != nil {
		return fmt.Errorf("building delete: %w", err)
	}
	if _, err := s.q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting from %s: %w", collection, err)
	}
	return nil
}

func (s *PGStore) Count(ctx context.Context, collection string) (int, error) {
	query, args, err := psql.Select("count(*)").
		From(documentsTable).
		Where(sq.Eq{"collection": collection}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count: %w", err)
	}

	var count int
	if err := s.q.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting %s: %w", collection, err)
	}
	return count, nil
}

func withMetadataFilter(sel sq.SelectBuilder, where map[string]any) (sq.SelectBuilder, error) {
	if len(where) == 0 {
		return sel, nil
	}
	filter, err := marshalMetadata(where)
	if err != nil {
		return sel, err
	}
	return sel.Where("metadata @> ?::jsonb", filter), nil
}

// marshalMetadata returns the JSONB text for m. It is a string so pgx sends
// it as text for the ::jsonb cast.
func marshalMetadata(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}
	return string(data), nil
}
