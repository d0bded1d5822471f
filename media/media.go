// Package media wraps the external tools the pipeline shells out to:
// yt-dlp for source metadata and audio download, ffmpeg/ffprobe for
// duration probing and segment extraction.
package media

import "context"

// Metadata describes a remote source. Partial reports that only a degraded
// lookup succeeded and Duration may be zero.
type Metadata struct {
	ID       string
	Title    string
	Uploader string
	Duration float64
	Partial  bool
}

// EncodingProfile controls the audio quality of extracted segments.
type EncodingProfile struct {
	SampleRate int // Hz
	Channels   int // 0 keeps the source layout
	Quality    int // libmp3lame -q:a, higher is smaller
}

// StandardProfile is used for sources short enough to process directly.
var StandardProfile = EncodingProfile{SampleRate: 22050, Quality: 4}

// CompactProfile trades fidelity for throughput on long sources.
var CompactProfile = EncodingProfile{SampleRate: 16000, Channels: 1, Quality: 7}

// SourceProvider resolves and downloads remote sources.
type SourceProvider interface {
	FetchMetadata(ctx context.Context, url string) (Metadata, error)
	DownloadAudio(ctx context.Context, url, destPath string) error
}

// Transcoder probes and slices local media files.
type Transcoder interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
	ExtractSegment(ctx context.Context, srcPath, destPath string, start, length float64, profile EncodingProfile) error
}
