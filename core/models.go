package core

import "time"

// Source is a registered remote video or audio source.
type Source struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Uploader    string    `json:"uploader,omitempty"`
	DurationSec float64   `json:"duration_sec"`
	Language    string    `json:"language,omitempty"`
	Keywords    []string  `json:"keywords,omitempty"`
	AddedAt     time.Time `json:"added_at"`
}

// Status is the lifecycle state of a processing job.
type Status string

const (
	StatusQueued       Status = "queued"
	StatusDownloading  Status = "downloading"
	StatusTranscribing Status = "transcribing"
	StatusIndexing     Status = "indexing"
	StatusComplete     Status = "complete"
	StatusError        Status = "error"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

var nextStatus = map[Status]Status{
	StatusQueued:       StatusDownloading,
	StatusDownloading:  StatusTranscribing,
	StatusTranscribing: StatusIndexing,
	StatusIndexing:     StatusComplete,
}

// CanTransition reports whether moving from s to to is a legal step.
// Error is reachable from every non-terminal state.
func (s Status) CanTransition(to Status) bool {
	if s.Terminal() {
		return false
	}
	if to == StatusError {
		return true
	}
	return nextStatus[s] == to
}

// ProcessingJob is the persisted record of one processing run over a source.
type ProcessingJob struct {
	SourceID        string    `json:"source_id"`
	Version         int       `json:"version"`
	Mode            string    `json:"mode"` // "direct" or "chunked"
	Status          Status    `json:"status"`
	ChunksTotal     int       `json:"chunks_total"`
	ChunksCompleted int       `json:"chunks_completed"`
	StartedAt       time.Time `json:"started_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	ErrorMessage    string    `json:"error_message,omitempty"`
}

// Segment is a time-bounded slice of the source audio.
type Segment struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Path  string  `json:"path,omitempty"`
}

// Fragment is the transcribed text of one segment.
type Fragment struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	Text  string  `json:"text"`
}

// Chunk is an indexable piece of transcript text.
type Chunk struct {
	ID       string            `json:"id"`
	Ordinal  int               `json:"ordinal"`
	Text     string            `json:"text"`
	Vector   []float32         `json:"vector,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Hit is a retrieval result with its similarity score.
type Hit struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score"`
}
