package storage

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"videoqa/core"
)

const milvusTextMaxLen = 8192

// MilvusStore maps each collection name to a Milvus collection with an
// HNSW cosine index over the embedding field.
type MilvusStore struct {
	mc  client.Client
	dim int
}

func NewMilvusStore(ctx context.Context, addr string, dim int) (*MilvusStore, error) {
	mc, err := client.NewClient(ctx, client.Config{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}
	return &MilvusStore{mc: mc, dim: dim}, nil
}

func (s *MilvusStore) ensureCollection(ctx context.Context, collection string) error {
	has, err := s.mc.HasCollection(ctx, collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", collection, err)
	}
	if has {
		return nil
	}

	schema := entity.NewSchema().WithName(collection)
	schema.WithField(entity.NewField().WithName("chunk_id").WithIsPrimaryKey(true).
		WithDataType(entity.FieldTypeVarChar).WithMaxLength(64))
	schema.WithField(entity.NewField().WithName("ordinal").WithDataType(entity.FieldTypeInt64))
	schema.WithField(entity.NewField().WithName("content").
		WithDataType(entity.FieldTypeVarChar).WithMaxLength(milvusTextMaxLen))
	schema.WithField(entity.NewField().WithName("embedding").
		WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dim)))

	if err := s.mc.CreateCollection(ctx, schema, 1); err != nil {
		return fmt.Errorf("create collection %s: %w", collection, err)
	}
	idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
	if err != nil {
		return fmt.Errorf("build index spec: %w", err)
	}
	if err := s.mc.CreateIndex(ctx, collection, "embedding", idx, false,
		client.WithIndexName("idx_embedding")); err != nil {
		return fmt.Errorf("create index on %s: %w", collection, err)
	}
	return nil
}

func (s *MilvusStore) Upsert(ctx context.Context, collection string, chunks []core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, collection); err != nil {
		return err
	}

	ids := make([]string, len(chunks))
	ordinals := make([]int64, len(chunks))
	contents := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		ordinals[i] = int64(c.Ordinal)
		text := c.Text
		if len(text) > milvusTextMaxLen {
			text = text[:milvusTextMaxLen]
		}
		contents[i] = text
		vectors[i] = c.Vector
	}

	_, err := s.mc.Upsert(ctx, collection, "",
		entity.NewColumnVarChar("chunk_id", ids),
		entity.NewColumnInt64("ordinal", ordinals),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnFloatVector("embedding", s.dim, vectors),
	)
	if err != nil {
		return fmt.Errorf("upsert into %s: %w", collection, err)
	}
	return nil
}

func (s *MilvusStore) Query(ctx context.Context, collection string, vector []float32, topK int) ([]core.Hit, error) {
	if topK <= 0 {
		topK = 5
	}
	has, err := s.mc.HasCollection(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("check collection %s: %w", collection, err)
	}
	if !has {
		return nil, fmt.Errorf("collection %s: %w", collection, core.ErrNotFound)
	}
	if err := s.mc.LoadCollection(ctx, collection, false); err != nil {
		return nil, fmt.Errorf("load collection %s: %w", collection, err)
	}

	sp, _ := entity.NewIndexHNSWSearchParam(74)
	res, err := s.mc.Search(ctx, collection, nil, "", []string{"ordinal", "content"},
		[]entity.Vector{entity.FloatVector(vector)}, "embedding", entity.COSINE, topK, sp)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	var hits []core.Hit
	for _, r := range res {
		cols := map[string]entity.Column{}
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		for i := 0; i < r.ResultCount; i++ {
			var (
				ordinal int64
				content string
			)
			if c, ok := cols["ordinal"].(*entity.ColumnInt64); ok {
				if data := c.Data(); i < len(data) {
					ordinal = data[i]
				}
			}
			if c, ok := cols["content"].(*entity.ColumnVarChar); ok {
				if data := c.Data(); i < len(data) {
					content = data[i]
				}
			}
			hits = append(hits, core.Hit{
				Text:     content,
				Metadata: map[string]string{"chunk": fmt.Sprint(ordinal)},
				Score:    float64(r.Scores[i]),
			})
		}
	}
	return hits, nil
}

func (s *MilvusStore) DropCollection(ctx context.Context, collection string) error {
	has, err := s.mc.HasCollection(ctx, collection)
	if err != nil || !has {
		return err
	}
	if err := s.mc.DropCollection(ctx, collection); err != nil {
		return fmt.Errorf("drop %s: %w", collection, err)
	}
	return nil
}

func (s *MilvusStore) Count(ctx context.Context, collection string) (int, error) {
	stats, err := s.mc.GetCollectionStatistics(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("stats for %s: %w", collection, err)
	}
	var n int
	fmt.Sscan(stats["row_count"], &n)
	return n, nil
}

func (s *MilvusStore) Close() error {
	return s.mc.Close()
}
