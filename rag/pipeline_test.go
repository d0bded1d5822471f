package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"videoqa/core"
	"videoqa/storage"
)

// fakeEmbeddings maps each input to a deterministic 3-dim vector so cosine
// ranking is predictable: texts sharing a marker word line up on an axis.
type fakeEmbeddings struct {
	err       error
	failBatch int
	calls     int
}

func (f *fakeEmbeddings) CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	f.calls++
	if f.err != nil {
		return openai.EmbeddingResponse{}, f.err
	}
	if f.failBatch > 0 && f.calls == f.failBatch {
		return openai.EmbeddingResponse{}, errors.New("rate limited")
	}
	er, ok := req.(openai.EmbeddingRequest)
	if !ok {
		return openai.EmbeddingResponse{}, errors.New("unexpected request type")
	}
	inputs := er.Input.([]string)
	resp := openai.EmbeddingResponse{}
	for _, in := range inputs {
		vec := []float32{0.1, 0.1, 0.1}
		if strings.Contains(in, "attention") {
			vec = []float32{1, 0, 0}
		} else if strings.Contains(in, "dataset") {
			vec = []float32{0, 1, 0}
		}
		resp.Data = append(resp.Data, openai.Embedding{Embedding: vec})
	}
	return resp, nil
}

func newTestPipeline(fe *fakeEmbeddings) (*Pipeline, *storage.MemoryStore) {
	store := storage.NewMemoryStore()
	emb := NewEmbedder(fe, "text-embedding-3-small", 3, zap.NewNop())
	return NewPipeline(emb, store, zap.NewNop()), store
}

func TestPipelineIndexAndRetrieve(t *testing.T) {
	p, store := newTestPipeline(&fakeEmbeddings{})
	ctx := context.Background()

	transcript := strings.Repeat("The attention mechanism weighs every token pair. ", 12) +
		"\n\n" + strings.Repeat("The training dataset was scraped from forums. ", 12)
	n, err := p.Index(ctx, "abc", transcript, false)
	require.NoError(t, err)
	require.Greater(t, n, 1)

	count, err := store.Count(ctx, storage.CollectionName("abc"))
	require.NoError(t, err)
	require.Equal(t, n, count)

	hits, err := p.Retrieve(ctx, "abc", "how does attention work", 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	require.Contains(t, hits[0].Text, "attention")
	require.NotEmpty(t, hits[0].Metadata["content_preview"])
}

func TestPipelineIndexDropsStaleCollection(t *testing.T) {
	p, store := newTestPipeline(&fakeEmbeddings{})
	ctx := context.Background()

	_, err := p.Index(ctx, "abc", strings.Repeat("attention words here. ", 40), false)
	require.NoError(t, err)
	first, _ := store.Count(ctx, storage.CollectionName("abc"))

	// Reindex with a much shorter transcript.
	n, err := p.Index(ctx, "abc", "short dataset transcript only.", false)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	count, _ := store.Count(ctx, storage.CollectionName("abc"))
	require.Equal(t, 1, count)
	require.NotEqual(t, first, count)
}

func TestPipelineEmptyTranscript(t *testing.T) {
	p, _ := newTestPipeline(&fakeEmbeddings{})
	_, err := p.Index(context.Background(), "abc", "   ", false)
	require.True(t, errors.Is(err, core.ErrInvalidInput))
}

func TestPipelineRetrieveEmbedFailure(t *testing.T) {
	p, _ := newTestPipeline(&fakeEmbeddings{err: errors.New("api down")})
	_, err := p.Retrieve(context.Background(), "abc", "question", 5)
	require.True(t, errors.Is(err, core.ErrRemoteService))
}

func TestEmbedTextsPlaceholderOnFailedBatch(t *testing.T) {
	fe := &fakeEmbeddings{failBatch: 1}
	emb := NewEmbedder(fe, "m", 3, zap.NewNop())

	texts := make([]string, 25) // two batches of 20 and 5
	for i := range texts {
		texts[i] = "attention text"
	}
	vecs := emb.EmbedTexts(context.Background(), texts)
	require.Len(t, vecs, 25)
	// First batch failed: zero placeholders keep positions aligned.
	require.Equal(t, []float32{0, 0, 0}, vecs[0])
	require.Equal(t, []float32{0, 0, 0}, vecs[19])
	require.Equal(t, []float32{1, 0, 0}, vecs[20])
}
