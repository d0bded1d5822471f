package processors

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"videoqa/core"
	"videoqa/media"
)

// Extractor slices source audio into per-segment files with a bounded pool
// of ffmpeg processes. Failed segments are logged and dropped rather than
// failing the run.
type Extractor struct {
	tc     media.Transcoder
	logger *zap.Logger

	// MaxWorkers caps concurrency below the scheduler's choice when set.
	MaxWorkers int
}

func NewExtractor(tc media.Transcoder, logger *zap.Logger) *Extractor {
	return &Extractor{tc: tc, logger: logger}
}

// ExtractAll encodes every segment of srcPath into destDir and returns the
// segments that succeeded, in index order, with Path populated. Large sets
// are extracted in staged batches so disk usage stays bounded relative to
// the transcription pool draining behind it.
func (e *Extractor) ExtractAll(ctx context.Context, srcPath, destDir string, segs []core.Segment, profile media.EncodingProfile) ([]core.Segment, error) {
	if len(segs) == 0 {
		return nil, nil
	}
	batch := ExtractBatch(len(segs))
	if batch <= 0 {
		batch = len(segs)
	}

	var done []core.Segment
	for off := 0; off < len(segs); off += batch {
		hi := off + batch
		if hi > len(segs) {
			hi = len(segs)
		}
		out, err := e.extractBatch(ctx, srcPath, destDir, segs[off:hi], profile)
		if err != nil {
			return done, err
		}
		done = append(done, out...)
	}
	sort.Slice(done, func(i, j int) bool { return done[i].Index < done[j].Index })
	return done, nil
}

func (e *Extractor) extractBatch(ctx context.Context, srcPath, destDir string, segs []core.Segment, profile media.EncodingProfile) ([]core.Segment, error) {
	workers := ExtractWorkers(len(segs), e.MaxWorkers)
	sem := make(chan struct{}, workers)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	var out []core.Segment

	for _, seg := range segs {
		if ctx.Err() != nil {
			wg.Wait()
			return out, ctx.Err()
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(seg core.Segment) {
			defer wg.Done()
			defer func() { <-sem }()

			seg.Path = filepath.Join(destDir, fmt.Sprintf("segment_%05d.mp3", seg.Index))
			if err := e.tc.ExtractSegment(ctx, srcPath, seg.Path, seg.Start, seg.End-seg.Start, profile); err != nil {
				e.logger.Warn("segment extraction failed, skipping",
					zap.Int("index", seg.Index),
					zap.Float64("start", seg.Start),
					zap.Error(err))
				return
			}
			mu.Lock()
			out = append(out, seg)
			mu.Unlock()
		}(seg)
	}
	wg.Wait()
	return out, nil
}
