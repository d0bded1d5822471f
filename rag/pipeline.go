package rag

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"videoqa/core"
	"videoqa/storage"
)

const (
	upsertBatchSize = 50
	previewLen      = 100

	// DefaultTopK is how many chunks ground an answer.
	DefaultTopK = 5
)

// Pipeline splits, embeds and indexes transcripts, and retrieves grounding
// context for questions.
type Pipeline struct {
	embedder *Embedder
	store    storage.VectorStore
	logger   *zap.Logger
}

func NewPipeline(embedder *Embedder, store storage.VectorStore, logger *zap.Logger) *Pipeline {
	return &Pipeline{embedder: embedder, store: store, logger: logger}
}

// Index rebuilds the retrieval index for a transcript. Any prior collection
// for the source is dropped first so ordinals always describe the current
// transcript.
func (p *Pipeline) Index(ctx context.Context, sourceID, transcript string, chunked bool) (int, error) {
	coll := storage.CollectionName(sourceID)
	if err := p.store.DropCollection(ctx, coll); err != nil {
		return 0, fmt.Errorf("drop stale collection: %w", err)
	}

	target := TargetChunkSize(len(transcript), chunked)
	texts := Split(transcript, target)
	if len(texts) == 0 {
		return 0, fmt.Errorf("empty transcript for %s: %w", sourceID, core.ErrInvalidInput)
	}
	vectors := p.embedder.EmbedTexts(ctx, texts)

	chunks := make([]core.Chunk, len(texts))
	for i, text := range texts {
		preview := text
		if len(preview) > previewLen {
			preview = preview[:previewLen]
		}
		chunks[i] = core.Chunk{
			ID:      fmt.Sprintf("chunk-%d", i),
			Ordinal: i,
			Text:    text,
			Vector:  vectors[i],
			Metadata: map[string]string{
				"chunk":           fmt.Sprint(i),
				"content_preview": preview,
				"length":          fmt.Sprint(len(text)),
			},
		}
	}

	for off := 0; off < len(chunks); off += upsertBatchSize {
		hi := off + upsertBatchSize
		if hi > len(chunks) {
			hi = len(chunks)
		}
		if err := p.store.Upsert(ctx, coll, chunks[off:hi]); err != nil {
			return 0, fmt.Errorf("upsert batch at %d: %w", off, err)
		}
	}
	p.logger.Info("transcript indexed",
		zap.String("source", sourceID),
		zap.Int("chunks", len(chunks)),
		zap.Int("chunk_size", target))
	return len(chunks), nil
}

// Retrieve returns the chunks most similar to the question.
func (p *Pipeline) Retrieve(ctx context.Context, sourceID, question string, topK int) ([]core.Hit, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	vec, err := p.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}
	return p.store.Query(ctx, storage.CollectionName(sourceID), vec, topK)
}

func (p *Pipeline) DropCollection(ctx context.Context, sourceID string) error {
	return p.store.DropCollection(ctx, storage.CollectionName(sourceID))
}

// Keywords implements the orchestrator's keyword hook.
func (p *Pipeline) Keywords(transcript string, limit int) []string {
	return ExtractKeywords(transcript, limit)
}
