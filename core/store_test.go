package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestSourceRoundTrip(t *testing.T) {
	s := newTestStore(t)
	src := Source{
		ID:          "abc123",
		URL:         "https://example.com/watch?v=abc123",
		Title:       "Talk",
		DurationSec: 5400,
		Language:    "en",
		AddedAt:     time.Now().UTC(),
	}
	require.NoError(t, s.SaveSource(src))

	got, err := s.LoadSource("abc123")
	require.NoError(t, err)
	require.Equal(t, src.Title, got.Title)
	require.Equal(t, src.DurationSec, got.DurationSec)

	_, err = s.LoadSource("missing")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestTranscriptAppend(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AppendTranscript("abc", "[00:00] first part\n"))
	require.NoError(t, s.AppendTranscript("abc", "[20:00] second part\n"))

	text, err := s.LoadTranscript("abc")
	require.NoError(t, err)
	require.Equal(t, "[00:00] first part\n[20:00] second part\n", text)
}

func TestClearKeepsRegistration(t *testing.T) {
	s := newTestStore(t)
	src := Source{ID: "abc", URL: "u", AddedAt: time.Now()}
	require.NoError(t, s.SaveSource(src))
	require.NoError(t, s.SaveTranscript("abc", "text"))
	require.NoError(t, s.SaveJob(ProcessingJob{SourceID: "abc", Status: StatusComplete}))
	require.NoError(t, s.SaveAnswerCache("abc", map[string]string{"k": "v"}))
	require.NoError(t, os.WriteFile(filepath.Join(s.MediaDir("abc"), "audio.mp3"), []byte("x"), 0o644))

	require.NoError(t, s.Clear("abc"))

	_, err := s.LoadTranscript("abc")
	require.True(t, errors.Is(err, ErrNotFound))
	_, err = s.LoadJob("abc")
	require.True(t, errors.Is(err, ErrNotFound))
	var m map[string]string
	require.True(t, errors.Is(s.LoadAnswerCache("abc", &m), ErrNotFound))

	// Registration survives so the source can be reprocessed.
	got, err := s.LoadSource("abc")
	require.NoError(t, err)
	require.Equal(t, "abc", got.ID)
}

func TestDeleteRemovesEverything(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveSource(Source{ID: "abc", AddedAt: time.Now()}))
	require.NoError(t, s.Delete("abc"))
	_, err := s.LoadSource("abc")
	require.True(t, errors.Is(err, ErrNotFound))

	require.True(t, errors.Is(s.Delete("  "), ErrInvalidInput))
}

func TestListSourcesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	require.NoError(t, s.SaveSource(Source{ID: "old", AddedAt: now.Add(-time.Hour)}))
	require.NoError(t, s.SaveSource(Source{ID: "new", AddedAt: now}))

	list, err := s.ListSources()
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "new", list[0].ID)
}
