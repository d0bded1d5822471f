package processors

import (
	"runtime"

	"videoqa/core"
	"videoqa/media"
)

// Mode names for a processing plan.
const (
	ModeDirect  = "direct"
	ModeChunked = "chunked"
)

// Duration thresholds, in seconds, at which the plan degrades granularity
// to keep segment counts and encode cost bounded.
const (
	longSourceSec     = 3600
	veryLongSourceSec = 7200

	superChunkSec     = 1200
	superChunkLongSec = 1800

	batchThreshold    = 50
	extractBatchSize  = 20
	manySegments      = 100
	maxTranscribeConc = 5
)

// Plan is the full transcoding schedule for one source.
type Plan struct {
	Mode          string
	DurationSec   float64
	SuperChunkSec float64
	SegmentSec    float64
	Profile       media.EncodingProfile
	SuperChunks   int
}

// BuildPlan decides how a source of the given duration is carved up.
// Sources at or under directLimitSec are processed in a single pass; longer
// ones are split into sequential super-chunks with coarser segments and a
// lighter encoding profile.
func BuildPlan(durationSec, directLimitSec float64, forceChunked bool) Plan {
	if durationSec <= directLimitSec && !forceChunked {
		seg := 120.0
		if durationSec > longSourceSec {
			seg = 60
		}
		return Plan{
			Mode:        ModeDirect,
			DurationSec: durationSec,
			SegmentSec:  seg,
			Profile:     media.StandardProfile,
			SuperChunks: 1,
		}
	}

	super := float64(superChunkSec)
	if durationSec > veryLongSourceSec {
		super = superChunkLongSec
	}
	seg := 60.0
	switch {
	case durationSec > veryLongSourceSec:
		seg = 180
	case durationSec > longSourceSec:
		seg = 120
	}
	n := int(durationSec / super)
	if durationSec-float64(n)*super > 0.01 {
		n++
	}
	if n < 1 {
		n = 1
	}
	return Plan{
		Mode:          ModeChunked,
		DurationSec:   durationSec,
		SuperChunkSec: super,
		SegmentSec:    seg,
		Profile:       media.CompactProfile,
		SuperChunks:   n,
	}
}

// SuperChunkBounds returns the [start, end) of the i-th super-chunk.
func (p Plan) SuperChunkBounds(i int) (start, end float64) {
	if p.Mode == ModeDirect {
		return 0, p.DurationSec
	}
	start = float64(i) * p.SuperChunkSec
	end = start + p.SuperChunkSec
	if end > p.DurationSec {
		end = p.DurationSec
	}
	return start, end
}

// SplitSegments carves [start, end) into segments of the plan's length.
// Indexes continue from firstIndex so chunked runs stay globally ordered.
func (p Plan) SplitSegments(start, end float64, firstIndex int) []core.Segment {
	var segs []core.Segment
	for pos := start; pos < end; pos += p.SegmentSec {
		segEnd := pos + p.SegmentSec
		if segEnd > end {
			segEnd = end
		}
		// Skip sub-second tails that ffmpeg would encode as silence.
		if segEnd-pos < 0.5 {
			break
		}
		segs = append(segs, core.Segment{Index: firstIndex + len(segs), Start: pos, End: segEnd})
	}
	return segs
}

// ExtractWorkers bounds concurrent ffmpeg processes for a batch of segments.
func ExtractWorkers(segmentCount, maxWorkers int) int {
	n := runtime.NumCPU()
	if maxWorkers > 0 && maxWorkers < n {
		n = maxWorkers
	}
	limit := 8
	if segmentCount > manySegments {
		limit = 4
	}
	if n > limit {
		n = limit
	}
	if n < 1 {
		n = 1
	}
	return n
}

// ExtractBatch returns the batch size for staged extraction, or 0 when the
// whole set is small enough to extract in one wave.
func ExtractBatch(segmentCount int) int {
	if segmentCount > batchThreshold {
		return extractBatchSize
	}
	return 0
}

// TranscribeWorkers bounds concurrent speech-to-text calls.
func TranscribeWorkers(segmentCount, maxWorkers int) int {
	n := maxTranscribeConc
	if maxWorkers > 0 && maxWorkers < n {
		n = maxWorkers
	}
	if segmentCount < n {
		n = segmentCount
	}
	if n < 1 {
		n = 1
	}
	return n
}
