package qa

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// historyLimit bounds how many turns a follow-up prompt may carry.
const historyLimit = 10

// Turn is one question/answer exchange in a session.
type Turn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	AskedAt  time.Time `json:"asked_at"`
}

// Sessions holds in-memory conversation state. Sessions are scoped to a
// source; a new processing run orphans them via Reset.
type Sessions struct {
	mu    sync.Mutex
	turns map[string][]Turn
}

func NewSessions() *Sessions {
	return &Sessions{turns: make(map[string][]Turn)}
}

// Start allocates a fresh session token.
func (s *Sessions) Start() string {
	return uuid.NewString()
}

// Append records a completed exchange, keeping only the newest turns.
func (s *Sessions) Append(sessionID string, turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := append(s.turns[sessionID], turn)
	if len(turns) > historyLimit {
		turns = turns[len(turns)-historyLimit:]
	}
	s.turns[sessionID] = turns
}

// History returns the session's turns, oldest first.
func (s *Sessions) History(sessionID string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.turns[sessionID]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// Reset drops a session.
func (s *Sessions) Reset(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, sessionID)
}
