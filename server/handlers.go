package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"videoqa/core"
	"videoqa/qa"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL          string `json:"url"`
		ForceChunked bool   `json:"force_chunked"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("decode request: %w", core.ErrInvalidInput))
		return
	}
	id, err := s.orch.Process(r.Context(), req.URL, req.ForceChunked)
	if err != nil {
		if errors.Is(err, core.ErrJobRunning) {
			writeJSON(w, http.StatusConflict, map[string]string{
				"source_id": id,
				"status":    "already_processing",
			})
			return
		}
		writeError(w, err)
		return
	}
	// The run just wiped derived state on disk; the in-memory answer
	// cache must not outlive it.
	s.cache.Invalidate(id)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"source_id": id,
		"status":    "processing_started",
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListSources()
	if err != nil {
		writeError(w, err)
		return
	}
	if sources == nil {
		sources = []core.Source{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"videos": sources})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.LoadSource(id); err != nil {
		writeError(w, err)
		return
	}
	if err := s.indexer.DropCollection(r.Context(), id); err != nil {
		s.logger.Warn("drop collection on delete", zap.String("source", id), zap.Error(err))
	}
	s.cache.Invalidate(id)
	if err := s.store.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := s.store.LoadJob(id)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := map[string]any{"job": job}
	if p, ok := s.tracker.Get(id); ok {
		resp["progress"] = p
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	text, err := s.store.LoadTranscript(id)
	if err != nil {
		writeError(w, err)
		return
	}
	job, err := s.store.LoadJob(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transcript": text,
		"partial":    job.Status != core.StatusComplete,
	})
}

func (s *Server) handleQuestion(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Question  string `json:"question"`
		SessionID string `json:"session_id"`
		Language  string `json:"language"`
		Stream    bool   `json:"stream"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("decode request: %w", core.ErrInvalidInput))
		return
	}
	ask := qa.Request{
		SourceID:  id,
		Question:  req.Question,
		SessionID: req.SessionID,
		Language:  req.Language,
	}

	if req.Stream {
		s.streamQuestion(w, r, ask)
		return
	}
	ans, err := s.answerer.Ask(r.Context(), ask)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

// streamQuestion emits answer deltas as server-sent events, then a final
// "done" event carrying the full answer record.
func (s *Server) streamQuestion(w http.ResponseWriter, r *http.Request, ask qa.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, fmt.Errorf("streaming unsupported: %w", core.ErrInvalidInput))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	ans, err := s.answerer.AskStream(r.Context(), ask, func(delta string) {
		data, _ := json.Marshal(map[string]string{"delta": delta})
		fmt.Fprintf(w, "event: delta\ndata: %s\n\n", data)
		flusher.Flush()
	})
	if err != nil {
		data, _ := json.Marshal(map[string]string{"error": err.Error()})
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
		flusher.Flush()
		return
	}
	data, _ := json.Marshal(ans)
	fmt.Fprintf(w, "event: done\ndata: %s\n\n", data)
	flusher.Flush()
}

func (s *Server) handleLanguage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Language string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Language == "" {
		writeError(w, fmt.Errorf("language is required: %w", core.ErrInvalidInput))
		return
	}
	src, err := s.store.LoadSource(id)
	if err != nil {
		writeError(w, err)
		return
	}
	src.Language = req.Language
	if err := s.store.SaveSource(src); err != nil {
		writeError(w, err)
		return
	}
	// Answers are language-keyed; a language switch must not replay the
	// old language's cache.
	s.cache.Invalidate(id)
	writeJSON(w, http.StatusOK, src)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.tracker.All()})
}

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": s.sessions.Start()})
}
