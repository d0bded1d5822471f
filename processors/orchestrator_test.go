package processors

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"videoqa/core"
	"videoqa/media"
)

type fakeProvider struct {
	meta   media.Metadata
	dlErr  error
	dlGate chan struct{}
}

func (f *fakeProvider) FetchMetadata(ctx context.Context, url string) (media.Metadata, error) {
	return f.meta, nil
}

func (f *fakeProvider) DownloadAudio(ctx context.Context, url, dest string) error {
	if f.dlGate != nil {
		<-f.dlGate
	}
	if f.dlErr != nil {
		return f.dlErr
	}
	return os.WriteFile(dest, []byte("audio"), 0o644)
}

type fakeIndexer struct {
	mu      sync.Mutex
	indexed []string
	chunked bool
	drops   int
	err     error
}

func (f *fakeIndexer) Index(ctx context.Context, sourceID, transcript string, chunked bool) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.indexed = append(f.indexed, transcript)
	f.chunked = chunked
	return 3, nil
}

func (f *fakeIndexer) DropCollection(ctx context.Context, sourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drops++
	return nil
}

func (f *fakeIndexer) Keywords(transcript string, limit int) []string {
	return []string{"segment"}
}

type orchFixture struct {
	store    *core.FileStore
	tracker  *core.Tracker
	provider *fakeProvider
	tc       *fakeTranscoder
	stt      *fakeSTT
	indexer  *fakeIndexer
	orch     *Orchestrator
}

func newOrchFixture(t *testing.T, duration float64) *orchFixture {
	t.Helper()
	store, err := core.NewFileStore(t.TempDir())
	require.NoError(t, err)
	f := &orchFixture{
		store:    store,
		tracker:  core.NewTracker(),
		provider: &fakeProvider{meta: media.Metadata{Title: "Talk", Duration: duration}},
		tc:       &fakeTranscoder{duration: duration, failIdx: map[int]bool{}},
		stt:      &fakeSTT{fail: map[int]bool{}},
		indexer:  &fakeIndexer{},
	}
	f.orch = NewOrchestrator(store, f.tracker, f.provider, f.tc, f.stt, f.indexer,
		zap.NewNop(), Options{DirectLimitSec: 1800})
	return f
}

func TestOrchestratorDirectRun(t *testing.T) {
	f := newOrchFixture(t, 900)
	id, err := f.orch.Process(context.Background(), "https://example.com/v1", false)
	require.NoError(t, err)
	f.orch.Wait()

	job, err := f.store.LoadJob(id)
	require.NoError(t, err)
	require.Equal(t, core.StatusComplete, job.Status)
	require.Equal(t, ModeDirect, job.Mode)

	text, err := f.store.LoadTranscript(id)
	require.NoError(t, err)
	require.Contains(t, text, "spoken text of segment 0.")
	require.False(t, f.indexer.chunked)

	src, err := f.store.LoadSource(id)
	require.NoError(t, err)
	require.Equal(t, "en", src.Language)
	require.Equal(t, []string{"segment"}, src.Keywords)

	p, ok := f.tracker.Get(id)
	require.True(t, ok)
	require.Equal(t, core.StatusComplete, p.Status)
	require.Equal(t, 100, p.Percent)
}

func TestOrchestratorForceChunkedShortSource(t *testing.T) {
	f := newOrchFixture(t, 900)
	id, err := f.orch.Process(context.Background(), "https://example.com/v1", true)
	require.NoError(t, err)
	f.orch.Wait()

	job, err := f.store.LoadJob(id)
	require.NoError(t, err)
	require.Equal(t, core.StatusComplete, job.Status)
	require.Equal(t, ModeChunked, job.Mode)
	require.Equal(t, 1, job.ChunksTotal)

	text, err := f.store.LoadTranscript(id)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(text, "[00:00]"))
	require.True(t, f.indexer.chunked)
}

func TestOrchestratorChunkedRun(t *testing.T) {
	f := newOrchFixture(t, 5400)
	id, err := f.orch.Process(context.Background(), "https://example.com/long", false)
	require.NoError(t, err)
	f.orch.Wait()

	job, err := f.store.LoadJob(id)
	require.NoError(t, err)
	require.Equal(t, core.StatusComplete, job.Status)
	require.Equal(t, ModeChunked, job.Mode)
	require.Equal(t, 5, job.ChunksTotal)
	require.Equal(t, 5, job.ChunksCompleted)

	text, err := f.store.LoadTranscript(id)
	require.NoError(t, err)
	require.Contains(t, text, "[00:00]")
	require.Contains(t, text, "[80:00]")
	require.True(t, f.indexer.chunked)

	// Segment scratch space is gone once the run finishes.
	entries, _ := os.ReadDir(f.store.Dir(id))
	for _, e := range entries {
		require.NotEqual(t, "media", e.Name())
	}
}

func TestOrchestratorToleratesFailedSuperChunk(t *testing.T) {
	f := newOrchFixture(t, 5400)
	// Every segment of the first super-chunk fails to transcribe.
	for i := 0; i < 10; i++ {
		f.stt.fail[i] = true
	}
	id, err := f.orch.Process(context.Background(), "https://example.com/long", false)
	require.NoError(t, err)
	f.orch.Wait()

	job, err := f.store.LoadJob(id)
	require.NoError(t, err)
	require.Equal(t, core.StatusComplete, job.Status)

	text, err := f.store.LoadTranscript(id)
	require.NoError(t, err)
	require.NotContains(t, text, "[00:00]")
	require.Contains(t, text, "[20:00]")
}

func TestOrchestratorDownloadFailure(t *testing.T) {
	f := newOrchFixture(t, 900)
	f.provider.dlErr = errors.Join(core.ErrDownloadFailed, errors.New("exit status 1"))

	id, err := f.orch.Process(context.Background(), "https://example.com/gone", false)
	require.NoError(t, err)
	f.orch.Wait()

	job, err := f.store.LoadJob(id)
	require.NoError(t, err)
	require.Equal(t, core.StatusError, job.Status)
	require.Contains(t, job.ErrorMessage, "download")

	p, _ := f.tracker.Get(id)
	require.Equal(t, core.StatusError, p.Status)
}

func TestOrchestratorRejectsConcurrentRun(t *testing.T) {
	f := newOrchFixture(t, 900)
	f.provider.dlGate = make(chan struct{})

	id, err := f.orch.Process(context.Background(), "https://example.com/v1", false)
	require.NoError(t, err)

	_, err = f.orch.Process(context.Background(), "https://example.com/v1", false)
	require.True(t, errors.Is(err, core.ErrJobRunning))

	close(f.provider.dlGate)
	f.orch.Wait()

	// Finished runs can be restarted.
	id2, err := f.orch.Process(context.Background(), "https://example.com/v1", false)
	require.NoError(t, err)
	require.Equal(t, id, id2)
	f.orch.Wait()
}

func TestOrchestratorReprocessClearsDerivedState(t *testing.T) {
	f := newOrchFixture(t, 900)
	id := SourceID("https://example.com/v1")
	require.NoError(t, f.store.SaveAnswerCache(id, map[string]string{"stale": "answer"}))

	_, err := f.orch.Process(context.Background(), "https://example.com/v1", false)
	require.NoError(t, err)
	f.orch.Wait()

	var m map[string]string
	require.True(t, errors.Is(f.store.LoadAnswerCache(id, &m), core.ErrNotFound))
	require.GreaterOrEqual(t, f.indexer.drops, 1)

	job, err := f.store.LoadJob(id)
	require.NoError(t, err)
	require.Equal(t, 1, job.Version)

	// A second full run bumps the version.
	_, err = f.orch.Process(context.Background(), "https://example.com/v1", false)
	require.NoError(t, err)
	f.orch.Wait()
	job, err = f.store.LoadJob(id)
	require.NoError(t, err)
	require.Equal(t, 2, job.Version)
}

func TestOrchestratorEmptyURL(t *testing.T) {
	f := newOrchFixture(t, 900)
	_, err := f.orch.Process(context.Background(), "", false)
	require.True(t, errors.Is(err, core.ErrInvalidInput))
}

func TestSourceIDStable(t *testing.T) {
	a := SourceID("https://example.com/watch?v=abc")
	b := SourceID("  https://example.com/watch?v=abc ")
	require.Equal(t, a, b)
	require.Len(t, a, 12)
	require.NotEqual(t, a, SourceID("https://example.com/watch?v=def"))
	require.False(t, strings.ContainsAny(a, "/:"))
}
