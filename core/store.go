package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	sourceFile     = "source.json"
	jobFile        = "job.json"
	transcriptFile = "transcript.txt"
	answersFile    = "answers.json"
	windowsFile    = "windows.json"
	mediaDir       = "media"
)

// FileStore persists per-source state as plain files under a data root:
//
//	<root>/<sourceID>/source.json     registered source metadata
//	<root>/<sourceID>/job.json        processing job record
//	<root>/<sourceID>/transcript.txt  merged transcript (may be partial)
//	<root>/<sourceID>/answers.json    question answer cache
//	<root>/<sourceID>/windows.json    time-window answer cache
//	<root>/<sourceID>/media/          downloaded audio and ephemeral segments
type FileStore struct {
	root string
	mu   sync.RWMutex
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create data root: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Dir returns the per-source directory, creating it on first use.
func (s *FileStore) Dir(sourceID string) string {
	dir := filepath.Join(s.root, sourceID)
	os.MkdirAll(dir, 0o755)
	return dir
}

// MediaDir returns the scratch directory for downloaded and extracted audio.
func (s *FileStore) MediaDir(sourceID string) string {
	dir := filepath.Join(s.root, sourceID, mediaDir)
	os.MkdirAll(dir, 0o755)
	return dir
}

func (s *FileStore) writeJSON(sourceID, name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	path := filepath.Join(s.Dir(sourceID), name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return os.Rename(tmp, path)
}

func (s *FileStore) readJSON(sourceID, name string, v any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(filepath.Join(s.root, sourceID, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s for %s: %w", name, sourceID, ErrNotFound)
		}
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *FileStore) SaveSource(src Source) error {
	return s.writeJSON(src.ID, sourceFile, src)
}

func (s *FileStore) LoadSource(sourceID string) (Source, error) {
	var src Source
	err := s.readJSON(sourceID, sourceFile, &src)
	return src, err
}

// ListSources returns every registered source, newest first.
func (s *FileStore) ListSources() ([]Source, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read data root: %w", err)
	}
	var sources []Source
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		src, err := s.LoadSource(e.Name())
		if err != nil {
			continue
		}
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool {
		return sources[i].AddedAt.After(sources[j].AddedAt)
	})
	return sources, nil
}

func (s *FileStore) SaveJob(job ProcessingJob) error {
	return s.writeJSON(job.SourceID, jobFile, job)
}

func (s *FileStore) LoadJob(sourceID string) (ProcessingJob, error) {
	var job ProcessingJob
	err := s.readJSON(sourceID, jobFile, &job)
	return job, err
}

// SaveTranscript replaces the stored transcript wholesale.
func (s *FileStore) SaveTranscript(sourceID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.WriteFile(filepath.Join(s.Dir(sourceID), transcriptFile), []byte(text), 0o644)
}

// AppendTranscript adds completed super-chunk text so pollers can read a
// partial transcript while later chunks are still in flight.
func (s *FileStore) AppendTranscript(sourceID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(filepath.Join(s.Dir(sourceID), transcriptFile),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(text)
	return err
}

func (s *FileStore) LoadTranscript(sourceID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(filepath.Join(s.root, sourceID, transcriptFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("transcript for %s: %w", sourceID, ErrNotFound)
		}
		return "", err
	}
	return string(data), nil
}

func (s *FileStore) SaveAnswerCache(sourceID string, v any) error {
	return s.writeJSON(sourceID, answersFile, v)
}

func (s *FileStore) LoadAnswerCache(sourceID string, v any) error {
	return s.readJSON(sourceID, answersFile, v)
}

func (s *FileStore) SaveWindowCache(sourceID string, v any) error {
	return s.writeJSON(sourceID, windowsFile, v)
}

func (s *FileStore) LoadWindowCache(sourceID string, v any) error {
	return s.readJSON(sourceID, windowsFile, v)
}

// Clear removes everything derived from processing (transcript, caches,
// media scratch) but keeps the source registration. Reprocessing calls this
// before the pipeline starts so stale answers can never survive.
func (s *FileStore) Clear(sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := filepath.Join(s.root, sourceID)
	for _, name := range []string{transcriptFile, answersFile, windowsFile, jobFile} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("clear %s: %w", name, err)
		}
	}
	if err := os.RemoveAll(filepath.Join(dir, mediaDir)); err != nil {
		return fmt.Errorf("clear media: %w", err)
	}
	return nil
}

// Delete removes the source and all of its data.
func (s *FileStore) Delete(sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(sourceID) == "" {
		return fmt.Errorf("source id: %w", ErrInvalidInput)
	}
	return os.RemoveAll(filepath.Join(s.root, sourceID))
}
