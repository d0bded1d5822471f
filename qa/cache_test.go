package qa

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"videoqa/core"
)

func newTestCache(t *testing.T) (*Cache, *core.FileStore) {
	t.Helper()
	store, err := core.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return NewCache(store, zap.NewNop()), store
}

func TestCacheRoundTrip(t *testing.T) {
	c, store := newTestCache(t)
	fp := Fingerprint("what is covered?", "en", false)
	c.Put("src1", fp, CachedAnswer{Question: "what is covered?", Answer: "the roadmap", CachedAt: time.Now()})

	got, ok := c.Get("src1", fp)
	require.True(t, ok)
	require.Equal(t, "the roadmap", got.Answer)

	// Persisted: a fresh cache over the same store still hits.
	c2 := NewCache(store, zap.NewNop())
	got, ok = c2.Get("src1", fp)
	require.True(t, ok)
	require.Equal(t, "the roadmap", got.Answer)
}

func TestCacheWindowIndependence(t *testing.T) {
	c, _ := newTestCache(t)
	fp := "samekey"
	c.Put("src1", fp, CachedAnswer{Answer: "question answer"})
	c.PutWindow("src1", fp, CachedAnswer{Answer: "window answer"})

	q, ok := c.Get("src1", fp)
	require.True(t, ok)
	w, ok2 := c.GetWindow("src1", fp)
	require.True(t, ok2)
	require.NotEqual(t, q.Answer, w.Answer)
}

func TestCacheInvalidate(t *testing.T) {
	c, store := newTestCache(t)
	fp := "key"
	c.Put("src1", fp, CachedAnswer{Answer: "a"})
	c.PutWindow("src1", fp, CachedAnswer{Answer: "w"})

	// Reprocessing clears disk via the file store, then memory.
	require.NoError(t, store.Clear("src1"))
	c.Invalidate("src1")

	_, ok := c.Get("src1", fp)
	require.False(t, ok)
	_, ok = c.GetWindow("src1", fp)
	require.False(t, ok)
}

func TestSessionsRingBuffer(t *testing.T) {
	s := NewSessions()
	id := s.Start()
	require.NotEmpty(t, id)
	require.NotEqual(t, id, s.Start())

	for i := 0; i < 15; i++ {
		s.Append(id, Turn{Question: string(rune('a' + i)), Answer: "x"})
	}
	hist := s.History(id)
	require.Len(t, hist, 10)
	require.Equal(t, "f", hist[0].Question) // oldest five evicted

	s.Reset(id)
	require.Empty(t, s.History(id))
}
