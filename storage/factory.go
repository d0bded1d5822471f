package storage

import (
	"context"
	"fmt"

	"videoqa/config"
)

// New builds the configured VectorStore backend.
func New(ctx context.Context, cfg *config.Config) (VectorStore, error) {
	switch cfg.StoreKind {
	case "pgvector":
		return NewPgVectorStore(ctx, cfg.PostgresURL, cfg.EmbeddingDim)
	case "milvus":
		return NewMilvusStore(ctx, cfg.MilvusAddr, cfg.EmbeddingDim)
	case "", "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown vector store %q", cfg.StoreKind)
	}
}
