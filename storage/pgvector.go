package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"videoqa/core"
)

// PgVectorStore keeps every collection in one table, partitioned by a
// collection column, with a pgvector embedding column and cosine search.
type PgVectorStore struct {
	pool *pgxpool.Pool
	dim  int
}

func NewPgVectorStore(ctx context.Context, url string, dim int) (*PgVectorStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PgVectorStore{pool: pool, dim: dim}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PgVectorStore) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("enable pgvector: %w", err)
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS transcript_chunks (
			collection TEXT NOT NULL,
			chunk_id   TEXT NOT NULL,
			ordinal    INT  NOT NULL,
			content    TEXT NOT NULL,
			preview    TEXT NOT NULL DEFAULT '',
			embedding  vector(%d),
			PRIMARY KEY (collection, chunk_id)
		)`, s.dim))
	if err != nil {
		return fmt.Errorf("create transcript_chunks: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS transcript_chunks_collection_idx
		ON transcript_chunks (collection)`)
	if err != nil {
		return fmt.Errorf("create collection index: %w", err)
	}
	return nil
}

func (s *PgVectorStore) Upsert(ctx context.Context, collection string, chunks []core.Chunk) error {
	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(`
			INSERT INTO transcript_chunks (collection, chunk_id, ordinal, content, preview, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (collection, chunk_id)
			DO UPDATE SET ordinal = EXCLUDED.ordinal,
			              content = EXCLUDED.content,
			              preview = EXCLUDED.preview,
			              embedding = EXCLUDED.embedding`,
			collection, c.ID, c.Ordinal, c.Text, c.Metadata["content_preview"], pgvector.NewVector(c.Vector))
	}
	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()
	for range chunks {
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("upsert into %s: %w", collection, err)
		}
	}
	return nil
}

func (s *PgVectorStore) Query(ctx context.Context, collection string, vector []float32, topK int) ([]core.Hit, error) {
	if topK <= 0 {
		topK = 5
	}
	vec := pgvector.NewVector(vector)
	rows, err := s.pool.Query(ctx, `
		SELECT ordinal, content, 1 - (embedding <=> $1) AS similarity
		FROM transcript_chunks
		WHERE collection = $2
		ORDER BY embedding <=> $1
		LIMIT $3`, vec, collection, topK)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var hits []core.Hit
	for rows.Next() {
		var (
			ordinal    int
			content    string
			similarity float64
		)
		if err := rows.Scan(&ordinal, &content, &similarity); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, core.Hit{
			Text:     content,
			Metadata: map[string]string{"chunk": fmt.Sprint(ordinal)},
			Score:    similarity,
		})
	}
	return hits, rows.Err()
}

func (s *PgVectorStore) DropCollection(ctx context.Context, collection string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM transcript_chunks WHERE collection = $1`, collection)
	if err != nil {
		return fmt.Errorf("drop %s: %w", collection, err)
	}
	return nil
}

func (s *PgVectorStore) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM transcript_chunks WHERE collection = $1`, collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

func (s *PgVectorStore) Close() error {
	s.pool.Close()
	return nil
}
