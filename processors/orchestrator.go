package processors

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"videoqa/core"
	"videoqa/media"
)

// Indexer builds the retrieval index over a finished transcript.
type Indexer interface {
	Index(ctx context.Context, sourceID, transcript string, chunked bool) (int, error)
	DropCollection(ctx context.Context, sourceID string) error
	Keywords(transcript string, limit int) []string
}

// Options tunes the orchestrator; zero values fall back to defaults.
type Options struct {
	DirectLimitSec    float64
	MaxExtractWorkers int
	MaxSTTWorkers     int
}

// Orchestrator drives a source through the full pipeline: download,
// segment, transcribe, merge, index. One run per source at a time.
type Orchestrator struct {
	store    *core.FileStore
	tracker  *core.Tracker
	provider media.SourceProvider
	tc       media.Transcoder
	stt      SpeechToText
	indexer  Indexer
	logger   *zap.Logger
	opts     Options

	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

func NewOrchestrator(store *core.FileStore, tracker *core.Tracker, provider media.SourceProvider,
	tc media.Transcoder, stt SpeechToText, indexer Indexer, logger *zap.Logger, opts Options) *Orchestrator {
	if opts.DirectLimitSec <= 0 {
		opts.DirectLimitSec = 1800
	}
	return &Orchestrator{
		store:    store,
		tracker:  tracker,
		provider: provider,
		tc:       tc,
		stt:      stt,
		indexer:  indexer,
		logger:   logger,
		opts:     opts,
		running:  make(map[string]struct{}),
	}
}

// SourceID derives a stable identifier from the source URL.
func SourceID(url string) string {
	sum := md5.Sum([]byte(strings.TrimSpace(url)))
	return fmt.Sprintf("%x", sum)[:12]
}

// Process registers the source and starts a background run. It returns the
// source ID immediately; callers poll the tracker for progress. A source
// with a run already in flight is rejected. forceChunked routes even a
// short source through the chunked schedule.
func (o *Orchestrator) Process(ctx context.Context, url string, forceChunked bool) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", fmt.Errorf("source url: %w", core.ErrInvalidInput)
	}
	id := SourceID(url)

	o.mu.Lock()
	if _, busy := o.running[id]; busy {
		o.mu.Unlock()
		return id, fmt.Errorf("source %s: %w", id, core.ErrJobRunning)
	}
	o.running[id] = struct{}{}
	o.mu.Unlock()

	version := 1
	if prev, err := o.store.LoadJob(id); err == nil {
		version = prev.Version + 1
	}

	// Reprocessing starts from a clean slate so stale transcripts, cached
	// answers and index entries can never outlive the data they came from.
	if err := o.store.Clear(id); err != nil {
		o.release(id)
		return id, fmt.Errorf("clear previous state: %w", err)
	}
	if err := o.indexer.DropCollection(ctx, id); err != nil {
		o.logger.Warn("drop collection before reprocess", zap.String("source", id), zap.Error(err))
	}

	src, err := o.store.LoadSource(id)
	if errors.Is(err, core.ErrNotFound) {
		src = core.Source{ID: id, URL: url, AddedAt: time.Now().UTC()}
	} else if err != nil {
		o.release(id)
		return id, err
	}

	meta, err := o.provider.FetchMetadata(ctx, url)
	if err != nil {
		o.release(id)
		return id, err
	}
	src.Title = meta.Title
	src.Uploader = meta.Uploader
	src.DurationSec = meta.Duration
	if err := o.store.SaveSource(src); err != nil {
		o.release(id)
		return id, err
	}

	plan := BuildPlan(src.DurationSec, o.opts.DirectLimitSec, forceChunked)
	o.tracker.Begin(id, plan.Mode, plan.SuperChunks)
	job := core.ProcessingJob{
		SourceID:    id,
		Version:     version,
		Mode:        plan.Mode,
		Status:      core.StatusQueued,
		ChunksTotal: plan.SuperChunks,
		StartedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := o.store.SaveJob(job); err != nil {
		o.release(id)
		return id, err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.release(id)
		o.run(context.WithoutCancel(ctx), src, job, forceChunked)
	}()
	return id, nil
}

// Wait blocks until every background run has finished. Used in shutdown.
func (o *Orchestrator) Wait() { o.wg.Wait() }

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	delete(o.running, id)
	o.mu.Unlock()
}

func (o *Orchestrator) fail(job core.ProcessingJob, err error) {
	o.logger.Error("processing failed",
		zap.String("source", job.SourceID),
		zap.String("mode", job.Mode),
		zap.Error(err))
	o.tracker.Fail(job.SourceID, err)
	job.Status = core.StatusError
	job.ErrorMessage = err.Error()
	job.UpdatedAt = time.Now().UTC()
	if serr := o.store.SaveJob(job); serr != nil {
		o.logger.Error("persist failed job", zap.String("source", job.SourceID), zap.Error(serr))
	}
}

func (o *Orchestrator) advance(job *core.ProcessingJob, to core.Status, message string) {
	o.tracker.Transition(job.SourceID, to, message)
	job.Status = to
	job.UpdatedAt = time.Now().UTC()
	if err := o.store.SaveJob(*job); err != nil {
		o.logger.Error("persist job", zap.String("source", job.SourceID), zap.Error(err))
	}
}

func (o *Orchestrator) run(ctx context.Context, src core.Source, job core.ProcessingJob, forceChunked bool) {
	start := time.Now()

	o.advance(&job, core.StatusDownloading, "downloading audio")
	audioPath := filepath.Join(o.store.MediaDir(src.ID), "audio.mp3")
	if err := o.provider.DownloadAudio(ctx, src.URL, audioPath); err != nil {
		o.fail(job, err)
		return
	}

	// Provider-reported durations are unreliable for some sources, and the
	// degraded metadata path reports none at all. The downloaded file is
	// the source of truth for the schedule.
	if dur, err := o.tc.ProbeDuration(ctx, audioPath); err == nil && dur > 0 {
		src.DurationSec = dur
	} else if err != nil {
		o.logger.Warn("duration probe failed, using reported duration",
			zap.String("source", src.ID), zap.Error(err))
	}
	if src.DurationSec <= 0 {
		o.fail(job, fmt.Errorf("source %s has unknown duration: %w", src.ID, core.ErrTranscodeFailed))
		return
	}

	plan := BuildPlan(src.DurationSec, o.opts.DirectLimitSec, forceChunked)
	job.Mode = plan.Mode
	job.ChunksTotal = plan.SuperChunks
	o.tracker.SetTotal(src.ID, plan.SuperChunks)
	if err := o.store.SaveSource(src); err != nil {
		o.logger.Warn("persist recalibrated duration", zap.String("source", src.ID), zap.Error(err))
	}

	o.advance(&job, core.StatusTranscribing, "transcribing")
	var (
		transcript string
		err        error
	)
	if plan.Mode == ModeDirect {
		transcript, err = o.runDirect(ctx, src, plan, audioPath)
	} else {
		transcript, err = o.runChunked(ctx, src, &job, plan, audioPath)
	}
	if err != nil {
		o.fail(job, err)
		return
	}

	if src.Language == "" {
		if lang := DetectLanguage(transcript); lang != "" {
			src.Language = lang
		}
	}
	transcript = ApplyDirectionMark(transcript, src.Language)
	if err := o.store.SaveTranscript(src.ID, transcript); err != nil {
		o.fail(job, err)
		return
	}

	o.advance(&job, core.StatusIndexing, "building retrieval index")
	chunks, err := o.indexer.Index(ctx, src.ID, transcript, plan.Mode == ModeChunked)
	if err != nil {
		o.fail(job, fmt.Errorf("index transcript: %w", errors.Join(core.ErrIndexingFailed, err)))
		return
	}
	src.Keywords = o.indexer.Keywords(transcript, 10)
	if err := o.store.SaveSource(src); err != nil {
		o.logger.Warn("persist source keywords", zap.String("source", src.ID), zap.Error(err))
	}

	os.RemoveAll(o.store.MediaDir(src.ID))
	o.advance(&job, core.StatusComplete, "ready")
	o.logger.Info("processing complete",
		zap.String("source", src.ID),
		zap.String("mode", plan.Mode),
		zap.Int("index_chunks", chunks),
		zap.Duration("took", time.Since(start)))
}

// runDirect processes the whole source in one extract/transcribe pass.
func (o *Orchestrator) runDirect(ctx context.Context, src core.Source, plan Plan, audioPath string) (string, error) {
	segs := plan.SplitSegments(0, src.DurationSec, 0)
	extractor := NewExtractor(o.tc, o.logger)
	extractor.MaxWorkers = o.opts.MaxExtractWorkers

	extracted, err := extractor.ExtractAll(ctx, audioPath, o.store.MediaDir(src.ID), segs, plan.Profile)
	if err != nil {
		return "", err
	}
	if len(extracted) == 0 {
		return "", fmt.Errorf("no segments extracted: %w", core.ErrTranscodeFailed)
	}
	o.tracker.SetPercent(src.ID, 40, "transcribing segments")

	tr := NewTranscriber(o.stt, o.logger)
	tr.MaxWorkers = o.opts.MaxSTTWorkers
	frags, failed := tr.TranscribeAll(ctx, extracted, src.Language)
	if failed == len(extracted) {
		return "", fmt.Errorf("all %d segments failed: %w", failed, core.ErrTranscriptionFailed)
	}
	if failed > 0 {
		o.logger.Warn("partial transcription",
			zap.String("source", src.ID),
			zap.Int("failed", failed),
			zap.Int("total", len(extracted)))
	}
	o.tracker.SetPercent(src.ID, 90, "merging transcript")
	o.tracker.ChunkDone(src.ID)
	return JoinFragments(frags), nil
}

// runChunked walks super-chunks sequentially, appending each finished
// chunk's timestamped text so pollers see a growing partial transcript.
// A failed super-chunk is skipped; the run only fails when nothing at all
// was transcribed.
func (o *Orchestrator) runChunked(ctx context.Context, src core.Source, job *core.ProcessingJob, plan Plan, audioPath string) (string, error) {
	extractor := NewExtractor(o.tc, o.logger)
	extractor.MaxWorkers = o.opts.MaxExtractWorkers
	tr := NewTranscriber(o.stt, o.logger)
	tr.MaxWorkers = o.opts.MaxSTTWorkers

	var (
		full      strings.Builder
		anyOutput bool
		segIndex  int
	)
	for i := 0; i < plan.SuperChunks; i++ {
		chunkStart, chunkEnd := plan.SuperChunkBounds(i)
		segs := plan.SplitSegments(chunkStart, chunkEnd, segIndex)
		segIndex += len(segs)
		if len(segs) == 0 {
			o.tracker.ChunkDone(src.ID)
			continue
		}

		text, err := o.processSuperChunk(ctx, src, extractor, tr, plan, audioPath, segs)
		if err != nil {
			if ctx.Err() != nil {
				return "", err
			}
			o.logger.Warn("super-chunk failed, skipping",
				zap.String("source", src.ID),
				zap.Int("chunk", i+1),
				zap.Int("of", plan.SuperChunks),
				zap.Error(err))
		} else if text != "" {
			full.WriteString(text)
			anyOutput = true
			if err := o.store.AppendTranscript(src.ID, text); err != nil {
				o.logger.Warn("append partial transcript", zap.String("source", src.ID), zap.Error(err))
			}
		}

		o.tracker.ChunkDone(src.ID)
		job.ChunksCompleted = i + 1
		job.UpdatedAt = time.Now().UTC()
		if err := o.store.SaveJob(*job); err != nil {
			o.logger.Error("persist job", zap.String("source", src.ID), zap.Error(err))
		}
	}
	if !anyOutput {
		return "", fmt.Errorf("every super-chunk failed: %w", core.ErrTranscriptionFailed)
	}
	return full.String(), nil
}

func (o *Orchestrator) processSuperChunk(ctx context.Context, src core.Source, extractor *Extractor,
	tr *Transcriber, plan Plan, audioPath string, segs []core.Segment) (string, error) {
	chunkDir := filepath.Join(o.store.MediaDir(src.ID), fmt.Sprintf("chunk_%04d", segs[0].Index))
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return "", err
	}
	// Segment files only need to live for the duration of this super-chunk.
	defer os.RemoveAll(chunkDir)

	extracted, err := extractor.ExtractAll(ctx, audioPath, chunkDir, segs, plan.Profile)
	if err != nil {
		return "", err
	}
	if len(extracted) == 0 {
		return "", fmt.Errorf("no segments extracted: %w", core.ErrTranscodeFailed)
	}
	frags, failed := tr.TranscribeAll(ctx, extracted, src.Language)
	if failed == len(extracted) {
		return "", fmt.Errorf("all %d segments failed: %w", failed, core.ErrTranscriptionFailed)
	}
	return JoinTimestamped(frags), nil
}
