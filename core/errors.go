package core

import "errors"

// Failure categories. Handlers and the orchestrator classify with errors.Is,
// so wrap these with fmt.Errorf("...: %w", Err...) rather than returning raw.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrDownloadFailed      = errors.New("download failed")
	ErrTranscodeFailed     = errors.New("transcode failed")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrIndexingFailed      = errors.New("indexing failed")
	ErrRemoteService       = errors.New("remote service unavailable")
	ErrJobRunning          = errors.New("job already running")
	ErrNotFound            = errors.New("not found")
)

// Retryable reports whether the failure is worth retrying with backoff.
// Invalid input and job conflicts never are.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrJobRunning), errors.Is(err, ErrNotFound):
		return false
	case errors.Is(err, ErrDownloadFailed), errors.Is(err, ErrRemoteService):
		return true
	}
	return false
}
