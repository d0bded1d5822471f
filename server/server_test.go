package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"videoqa/core"
	"videoqa/qa"
)

type fakeOrch struct {
	id           string
	err          error
	forceChunked bool
}

func (f *fakeOrch) Process(ctx context.Context, url string, forceChunked bool) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", fmt.Errorf("source url: %w", core.ErrInvalidInput)
	}
	f.forceChunked = forceChunked
	return f.id, f.err
}

type fakeAsker struct {
	ans qa.Answer
	err error
}

func (f *fakeAsker) Ask(ctx context.Context, req qa.Request) (qa.Answer, error) {
	return f.ans, f.err
}

func (f *fakeAsker) AskStream(ctx context.Context, req qa.Request, onDelta func(string)) (qa.Answer, error) {
	if f.err != nil {
		return qa.Answer{}, f.err
	}
	for _, part := range strings.SplitAfter(f.ans.Text, " ") {
		onDelta(part)
	}
	return f.ans, nil
}

type fakeDropper struct{ dropped []string }

func (f *fakeDropper) DropCollection(ctx context.Context, sourceID string) error {
	f.dropped = append(f.dropped, sourceID)
	return nil
}

type serverFixture struct {
	store   *core.FileStore
	tracker *core.Tracker
	orch    *fakeOrch
	asker   *fakeAsker
	dropper *fakeDropper
	ts      *httptest.Server
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	store, err := core.NewFileStore(t.TempDir())
	require.NoError(t, err)
	f := &serverFixture{
		store:   store,
		tracker: core.NewTracker(),
		orch:    &fakeOrch{id: "abc123def456"},
		asker:   &fakeAsker{ans: qa.Answer{Text: "the answer", Language: "en"}},
		dropper: &fakeDropper{},
	}
	srv := New(store, f.tracker, f.orch, f.asker, f.dropper,
		qa.NewCache(store, zap.NewNop()), qa.NewSessions(), zap.NewNop())
	f.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(f.ts.Close)
	return f
}

func (f *serverFixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	var decoded map[string]any
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

func TestHandleProcess(t *testing.T) {
	f := newServerFixture(t)
	resp, body := f.do(t, http.MethodPost, "/videos/process", `{"url":"https://example.com/v"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, "processing_started", body["status"])
	require.Equal(t, "abc123def456", body["source_id"])
	require.False(t, f.orch.forceChunked)
}

func TestHandleProcessForceChunked(t *testing.T) {
	f := newServerFixture(t)
	resp, _ := f.do(t, http.MethodPost, "/videos/process",
		`{"url":"https://example.com/v","force_chunked":true}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.True(t, f.orch.forceChunked)
}

func TestHandleProcessConflict(t *testing.T) {
	f := newServerFixture(t)
	f.orch.err = fmt.Errorf("source busy: %w", core.ErrJobRunning)
	resp, body := f.do(t, http.MethodPost, "/videos/process", `{"url":"https://example.com/v"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "already_processing", body["status"])
}

func TestHandleProcessBadInput(t *testing.T) {
	f := newServerFixture(t)
	resp, _ := f.do(t, http.MethodPost, "/videos/process", `{"url":""}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/videos/process", `{not json`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleStatus(t *testing.T) {
	f := newServerFixture(t)
	require.NoError(t, f.store.SaveJob(core.ProcessingJob{
		SourceID: "src1", Status: core.StatusTranscribing, Mode: "chunked",
		ChunksTotal: 5, ChunksCompleted: 2,
	}))
	f.tracker.Begin("src1", "chunked", 5)

	resp, body := f.do(t, http.MethodGet, "/videos/src1/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	job := body["job"].(map[string]any)
	require.Equal(t, "transcribing", job["status"])
	require.NotNil(t, body["progress"])

	resp, _ = f.do(t, http.MethodGet, "/videos/missing/status", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleQuestion(t *testing.T) {
	f := newServerFixture(t)
	resp, body := f.do(t, http.MethodPost, "/videos/src1/question", `{"question":"what is covered?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "the answer", body["answer"])
}

func TestHandleQuestionStream(t *testing.T) {
	f := newServerFixture(t)
	resp, err := http.Post(f.ts.URL+"/videos/src1/question", "application/json",
		strings.NewReader(`{"question":"what?","stream":true}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := string(raw)
	require.Contains(t, out, "event: delta")
	require.Contains(t, out, "event: done")
	require.Contains(t, out, "the answer")
}

func TestHandleListAndDelete(t *testing.T) {
	f := newServerFixture(t)
	require.NoError(t, f.store.SaveSource(core.Source{ID: "src1", Title: "Talk", AddedAt: time.Now()}))

	resp, body := f.do(t, http.MethodGet, "/videos", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["videos"], 1)

	resp, _ = f.do(t, http.MethodDelete, "/videos/src1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{"src1"}, f.dropper.dropped)

	resp, body = f.do(t, http.MethodGet, "/videos", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["videos"], 0)

	resp, _ = f.do(t, http.MethodDelete, "/videos/src1", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleLanguage(t *testing.T) {
	f := newServerFixture(t)
	require.NoError(t, f.store.SaveSource(core.Source{ID: "src1", Language: "en", AddedAt: time.Now()}))

	resp, body := f.do(t, http.MethodPost, "/videos/src1/language", `{"language":"ar"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ar", body["language"])

	resp, _ = f.do(t, http.MethodPost, "/videos/src1/language", `{}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleTranscriptPartialFlag(t *testing.T) {
	f := newServerFixture(t)
	require.NoError(t, f.store.SaveTranscript("src1", "[00:00] partial text\n"))
	require.NoError(t, f.store.SaveJob(core.ProcessingJob{SourceID: "src1", Status: core.StatusTranscribing}))

	resp, body := f.do(t, http.MethodGet, "/videos/src1/transcript", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["partial"])
	require.Contains(t, body["transcript"], "partial text")
}

func TestHandleSessionAndProgress(t *testing.T) {
	f := newServerFixture(t)
	resp, body := f.do(t, http.MethodPost, "/sessions", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, body["session_id"])

	f.tracker.Begin("a", "direct", 1)
	f.tracker.Begin("b", "chunked", 4)
	resp, body = f.do(t, http.MethodGet, "/progress", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["jobs"], 2)
}
