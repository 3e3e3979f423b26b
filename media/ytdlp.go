package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/slog"

	"ewintr.nl/hansard/retry"
)

// Tool downloads and splits audio.
type Tool interface {
	DownloadAudio(ctx context.Context, url, destTemplate string) error
	SplitToChunks(ctx context.Context, audioPath string, segmentSeconds int, outputTemplate string) error
}

// ExitError reports a tool that ran but did not exit cleanly.
type ExitError struct {
	Cmd    string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %s", e.Cmd, e.Code, e.Stderr)
}

type YtDlpInfo struct {
	YtDlpPath   string
	FfmpegPath  string
	CookiesPath string
}

// YtDlp drives the yt-dlp and ffmpeg binaries.
type YtDlp struct {
	ytdlp   string
	ffmpeg  string
	cookies string
	policy  retry.Policy
	logger  *slog.Logger
}

func NewYtDlp(info YtDlpInfo, logger *slog.Logger) *YtDlp {
	y := &YtDlp{
		ytdlp:   info.YtDlpPath,
		ffmpeg:  info.FfmpegPath,
		cookies: info.CookiesPath,
		policy: retry.Policy{
			MaxAttempts: 3,
			Wait:        func(int, error) time.Duration { return 2 * time.Second },
		},
		logger: logger,
	}
	if y.ytdlp == "" {
		y.ytdlp = "yt-dlp"
	}
	if y.ffmpeg == "" {
		y.ffmpeg = "ffmpeg"
	}

	return y
}

func (y *YtDlp) DownloadAudio(ctx context.Context, url, destTemplate string) error {
	args := []string{"-f", "bestaudio", "-x", "--audio-format", "mp3", "--output", destTemplate}
	if y.cookies != "" {
		args = append(args, "--cookies", y.cookies)
	}
	args = append(args, url)

	return retry.Do(ctx, y.logger, y.policy, func(ctx context.Context, attempt int) error {
		y.logger.InfoContext(ctx, "downloading audio", slog.String("url", url), slog.Int("attempt", attempt))
		return y.run(ctx, y.ytdlp, args...)
	})
}

func (y *YtDlp) SplitToChunks(ctx context.Context, audioPath string, segmentSeconds int, outputTemplate string) error {
	return y.run(ctx, y.ffmpeg,
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", audioPath,
		"-f", "segment",
		"-segment_time", strconv.Itoa(segmentSeconds),
		"-ac", "1",
		"-b:a", "64k",
		"-ar", "16000",
		"-c:a", "libmp3lame",
		outputTemplate,
	)
}

func (y *YtDlp) run(ctx context.Context, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return &ExitError{
			Cmd:    name,
			Code:   exitErr.ExitCode(),
			Stderr: strings.TrimSpace(stderr.String()),
		}
	}

	return fmt.Errorf("failed to run %s: %w", name, err)
}
