// Package server exposes the pipeline over HTTP: submit a source for
// processing, poll its progress, and ask questions once it is ready.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"videoqa/core"
	"videoqa/qa"
)

// Orchestrator is the processing entry point the server drives.
type Orchestrator interface {
	Process(ctx context.Context, url string, forceChunked bool) (string, error)
}

// Asker answers questions, optionally streaming.
type Asker interface {
	Ask(ctx context.Context, req qa.Request) (qa.Answer, error)
	AskStream(ctx context.Context, req qa.Request, onDelta func(string)) (qa.Answer, error)
}

// Indexer is the slice the server needs for source deletion.
type Indexer interface {
	DropCollection(ctx context.Context, sourceID string) error
}

type Server struct {
	store    *core.FileStore
	tracker  *core.Tracker
	orch     Orchestrator
	answerer Asker
	indexer  Indexer
	cache    *qa.Cache
	sessions *qa.Sessions
	logger   *zap.Logger
}

func New(store *core.FileStore, tracker *core.Tracker, orch Orchestrator, answerer Asker,
	indexer Indexer, cache *qa.Cache, sessions *qa.Sessions, logger *zap.Logger) *Server {
	return &Server{
		store:    store,
		tracker:  tracker,
		orch:     orch,
		answerer: answerer,
		indexer:  indexer,
		cache:    cache,
		sessions: sessions,
		logger:   logger,
	}
}

// Handler wires up all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /videos/process", s.handleProcess)
	mux.HandleFunc("GET /videos", s.handleList)
	mux.HandleFunc("DELETE /videos/{id}", s.handleDelete)
	mux.HandleFunc("GET /videos/{id}/status", s.handleStatus)
	mux.HandleFunc("GET /videos/{id}/transcript", s.handleTranscript)
	mux.HandleFunc("POST /videos/{id}/question", s.handleQuestion)
	mux.HandleFunc("POST /videos/{id}/language", s.handleLanguage)
	mux.HandleFunc("GET /progress", s.handleProgress)
	mux.HandleFunc("POST /sessions", s.handleNewSession)
	return s.logRequests(mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrJobRunning):
		status = http.StatusConflict
	case errors.Is(err, core.ErrRemoteService), errors.Is(err, core.ErrDownloadFailed):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
