package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"videoqa/core"
)

// FFmpegClient shells out to ffmpeg and ffprobe (resolved as a sibling of
// the ffmpeg binary name).
type FFmpegClient struct {
	Path   string
	logger *zap.Logger

	execFn func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

func NewFFmpegClient(path string, logger *zap.Logger) *FFmpegClient {
	return &FFmpegClient{Path: path, logger: logger}
}

func (c *FFmpegClient) pathOrDefault() string {
	if strings.TrimSpace(c.Path) == "" {
		return "ffmpeg"
	}
	return c.Path
}

func (c *FFmpegClient) probePath() string {
	p := c.pathOrDefault()
	if strings.HasSuffix(p, "ffmpeg") {
		return strings.TrimSuffix(p, "ffmpeg") + "ffprobe"
	}
	return "ffprobe"
}

func (c *FFmpegClient) exec(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error) {
	if c.execFn != nil {
		return c.execFn(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err = cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// ProbeDuration returns the media duration in seconds via ffprobe.
func (c *FFmpegClient) ProbeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	stdout, stderr, err := c.exec(ctx, c.probePath(), args...)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", path,
			errors.Join(core.ErrTranscodeFailed, wrapExecError(c.probePath(), args, stderr, err)))
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(stdout)), 64)
	if err != nil {
		return 0, fmt.Errorf("probe %s: parse duration %q: %w", path, stdout, core.ErrTranscodeFailed)
	}
	return dur, nil
}

// ExtractSegment re-encodes [start, start+length) of srcPath into destPath
// using the given profile.
func (c *FFmpegClient) ExtractSegment(ctx context.Context, srcPath, destPath string, start, length float64, profile EncodingProfile) error {
	args := []string{
		"-y",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(length),
		"-i", srcPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-ar", strconv.Itoa(profile.SampleRate),
		"-q:a", strconv.Itoa(profile.Quality),
	}
	if profile.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(profile.Channels))
	}
	args = append(args, destPath)

	_, stderr, err := c.exec(ctx, c.pathOrDefault(), args...)
	if err != nil {
		return fmt.Errorf("extract segment at %s: %w", core.FormatTimestamp(start),
			errors.Join(core.ErrTranscodeFailed, wrapExecError(c.pathOrDefault(), args, stderr, err)))
	}
	return nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
