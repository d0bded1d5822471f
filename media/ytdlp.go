package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"videoqa/core"
)

// ExecError carries the full context of a failed tool invocation.
type ExecError struct {
	Cmd      string
	Args     []string
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *ExecError) Error() string {
	cmdline := strings.TrimSpace(e.Cmd + " " + strings.Join(e.Args, " "))
	if e.ExitCode != 0 {
		return fmt.Sprintf("command failed (exit %d): %s", e.ExitCode, cmdline)
	}
	return fmt.Sprintf("command failed: %s", cmdline)
}

func (e *ExecError) Unwrap() error { return e.Cause }

func wrapExecError(cmd string, args []string, stderr []byte, cause error) error {
	exitCode := 0
	var ee *exec.ExitError
	if errors.As(cause, &ee) {
		exitCode = ee.ExitCode()
	}
	return &ExecError{
		Cmd:      cmd,
		Args:     args,
		ExitCode: exitCode,
		Stderr:   strings.TrimSpace(string(stderr)),
		Cause:    cause,
	}
}

// YtdlpClient shells out to yt-dlp. The zero value uses "yt-dlp" from PATH.
type YtdlpClient struct {
	Path      string
	ExtraArgs []string

	logger *zap.Logger
	httpc  *http.Client

	// execFn substitutes the process launch in tests.
	execFn func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

func NewYtdlpClient(path string, logger *zap.Logger) *YtdlpClient {
	return &YtdlpClient{
		Path:   path,
		logger: logger,
		httpc:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *YtdlpClient) pathOrDefault() string {
	if strings.TrimSpace(c.Path) == "" {
		return "yt-dlp"
	}
	return c.Path
}

func (c *YtdlpClient) exec(ctx context.Context, args ...string) (stdout, stderr []byte, err error) {
	name := c.pathOrDefault()
	fullArgs := append(append([]string{}, c.ExtraArgs...), args...)
	if c.execFn != nil {
		return c.execFn(ctx, name, fullArgs...)
	}
	cmd := exec.CommandContext(ctx, name, fullArgs...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err = cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

type ytdlpInfo struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Uploader string  `json:"uploader"`
	Duration float64 `json:"duration"`
}

// FetchMetadata resolves title, uploader and duration without downloading.
// When yt-dlp fails it falls back to the provider's oEmbed endpoint, which
// yields a partial record with no duration.
func (c *YtdlpClient) FetchMetadata(ctx context.Context, sourceURL string) (Metadata, error) {
	if strings.TrimSpace(sourceURL) == "" {
		return Metadata{}, fmt.Errorf("source url: %w", core.ErrInvalidInput)
	}

	args := []string{"--dump-single-json", "--skip-download", sourceURL}
	stdout, stderr, err := c.exec(ctx, args...)
	if err == nil {
		var info ytdlpInfo
		if jerr := json.Unmarshal(bytes.TrimSpace(stdout), &info); jerr == nil && info.Title != "" {
			return Metadata{
				ID:       info.ID,
				Title:    info.Title,
				Uploader: info.Uploader,
				Duration: info.Duration,
			}, nil
		}
	}
	c.logger.Warn("yt-dlp metadata fetch failed, trying oEmbed",
		zap.String("url", sourceURL),
		zap.Error(wrapExecError(c.pathOrDefault(), args, stderr, err)))

	meta, oerr := c.fetchOEmbed(ctx, sourceURL)
	if oerr != nil {
		return Metadata{}, fmt.Errorf("fetch metadata for %s: %w", sourceURL, errors.Join(core.ErrDownloadFailed, oerr))
	}
	return meta, nil
}

func (c *YtdlpClient) fetchOEmbed(ctx context.Context, sourceURL string) (Metadata, error) {
	endpoint := "https://www.youtube.com/oembed?format=json&url=" + url.QueryEscape(sourceURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Metadata{}, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return Metadata{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Metadata{}, fmt.Errorf("oembed status %d", resp.StatusCode)
	}
	var body struct {
		Title      string `json:"title"`
		AuthorName string `json:"author_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Metadata{}, err
	}
	return Metadata{Title: body.Title, Uploader: body.AuthorName, Partial: true}, nil
}

// DownloadAudio fetches the best audio stream to destPath as mp3, retrying
// transient failures with exponential backoff.
func (c *YtdlpClient) DownloadAudio(ctx context.Context, sourceURL, destPath string) error {
	args := []string{
		"-f", "bestaudio/best",
		"--extract-audio",
		"--audio-format", "mp3",
		"--no-playlist",
		"-o", destPath,
		sourceURL,
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 5 * time.Minute

	attempt := 0
	operation := func() error {
		attempt++
		_, stderr, err := c.exec(ctx, args...)
		if err != nil {
			werr := wrapExecError(c.pathOrDefault(), args, stderr, err)
			c.logger.Warn("audio download attempt failed",
				zap.Int("attempt", attempt),
				zap.Error(werr))
			return werr
		}
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return fmt.Errorf("download audio: %w", errors.Join(core.ErrDownloadFailed, err))
	}
	c.logger.Info("audio downloaded", zap.String("path", destPath), zap.Int("attempts", attempt))
	return nil
}
