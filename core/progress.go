package core

import (
	"fmt"
	"sync"
	"time"
)

// Progress is a point-in-time snapshot of one source's processing run.
type Progress struct {
	SourceID        string    `json:"source_id"`
	Status          Status    `json:"status"`
	Message         string    `json:"message"`
	Percent         int       `json:"percent"`
	Mode            string    `json:"mode"`
	ChunksTotal     int       `json:"chunks_total,omitempty"`
	ChunksCompleted int       `json:"chunks_completed,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	ETA             string    `json:"eta,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// Tracker holds live progress for every in-flight and recently finished job.
// The orchestrator is the sole writer per source; readers poll concurrently.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]*Progress
	now  func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]*Progress), now: time.Now}
}

// Begin registers a fresh run, replacing any finished record for the source.
func (t *Tracker) Begin(sourceID, mode string, chunksTotal int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.jobs[sourceID] = &Progress{
		SourceID:    sourceID,
		Status:      StatusQueued,
		Message:     "queued",
		Mode:        mode,
		ChunksTotal: chunksTotal,
		StartedAt:   now,
		UpdatedAt:   now,
	}
}

// Transition moves the job to the given status if the state machine allows
// it, updating the visible message. Illegal transitions are ignored.
func (t *Tracker) Transition(sourceID string, to Status, message string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.jobs[sourceID]
	if !ok || !p.Status.CanTransition(to) {
		return false
	}
	p.Status = to
	p.Message = message
	p.UpdatedAt = t.now()
	if to == StatusComplete {
		p.Percent = 100
		p.ETA = ""
	}
	return true
}

// SetTotal fixes the chunk count once the real duration is known.
func (t *Tracker) SetTotal(sourceID string, chunksTotal int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.jobs[sourceID]; ok {
		p.ChunksTotal = chunksTotal
		p.UpdatedAt = t.now()
	}
}

// ChunkDone advances the completed-chunk counter and recomputes the
// percentage and remaining-time estimate. Percent never moves backwards.
func (t *Tracker) ChunkDone(sourceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.jobs[sourceID]
	if !ok || p.Status.Terminal() {
		return
	}
	p.ChunksCompleted++
	if p.ChunksCompleted > p.ChunksTotal {
		p.ChunksCompleted = p.ChunksTotal
	}
	now := t.now()
	p.UpdatedAt = now
	if p.ChunksTotal > 0 {
		if pct := p.ChunksCompleted * 100 / p.ChunksTotal; pct > p.Percent {
			p.Percent = pct
		}
		remaining := p.ChunksTotal - p.ChunksCompleted
		if remaining > 0 && p.ChunksCompleted > 0 {
			perChunk := now.Sub(p.StartedAt) / time.Duration(p.ChunksCompleted)
			p.ETA = FormatETA(perChunk * time.Duration(remaining))
		} else {
			p.ETA = ""
		}
	}
	p.Message = fmt.Sprintf("transcribing chunk %d/%d", p.ChunksCompleted, p.ChunksTotal)
}

// SetPercent raises the coarse percentage for single-pass jobs.
func (t *Tracker) SetPercent(sourceID string, percent int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.jobs[sourceID]
	if !ok || p.Status.Terminal() {
		return
	}
	if percent > p.Percent {
		p.Percent = percent
	}
	if message != "" {
		p.Message = message
	}
	p.UpdatedAt = t.now()
}

// Fail moves the job to the error state with a user-visible reason.
func (t *Tracker) Fail(sourceID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.jobs[sourceID]
	if !ok || p.Status.Terminal() {
		return
	}
	p.Status = StatusError
	p.Error = err.Error()
	p.Message = "processing failed"
	p.ETA = ""
	p.UpdatedAt = t.now()
}

// Get returns a copy of the progress record for the source.
func (t *Tracker) Get(sourceID string) (Progress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.jobs[sourceID]
	if !ok {
		return Progress{}, false
	}
	return *p, true
}

// All returns a snapshot of every tracked job.
func (t *Tracker) All() []Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Progress, 0, len(t.jobs))
	for _, p := range t.jobs {
		out = append(out, *p)
	}
	return out
}

// FormatETA renders a duration as "Xm Ys", the shape shown to pollers.
func FormatETA(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%dm %ds", total/60, total%60)
}

// FormatTimestamp renders seconds-from-start as "MM:SS".
func FormatTimestamp(sec float64) string {
	s := int(sec)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
