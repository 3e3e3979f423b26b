package media

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYtDlp_ExitError(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}

	y := NewYtDlp(YtDlpInfo{YtDlpPath: "false", FfmpegPath: "false"}, testLogger())
	y.policy.Wait = func(int, error) time.Duration { return time.Millisecond }

	err := y.DownloadAudio(context.Background(), "https://www.youtube.com/watch?v=abc", "/tmp/abc.%(ext)s")
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, "false", exitErr.Cmd)
	assert.Equal(t, 1, exitErr.Code)

	err = y.SplitToChunks(context.Background(), "/tmp/abc.mp3", 900, "/tmp/abc_%03d.mp3")
	require.True(t, errors.As(err, &exitErr))
}

func TestYtDlp_Success(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true not available")
	}

	y := NewYtDlp(YtDlpInfo{YtDlpPath: "true", FfmpegPath: "true", CookiesPath: "cookies.txt"}, testLogger())
	assert.NoError(t, y.DownloadAudio(context.Background(), "https://www.youtube.com/watch?v=abc", "/tmp/abc.%(ext)s"))
	assert.NoError(t, y.SplitToChunks(context.Background(), "/tmp/abc.mp3", 900, "/tmp/abc_%03d.mp3"))
}

func TestYtDlp_MissingBinary(t *testing.T) {
	y := NewYtDlp(YtDlpInfo{YtDlpPath: "/nonexistent/yt-dlp", FfmpegPath: "/nonexistent/ffmpeg"}, testLogger())
	err := y.SplitToChunks(context.Background(), "in.mp3", 900, "out_%03d.mp3")
	require.Error(t, err)

	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr))
}

func TestNewYtDlp_Defaults(t *testing.T) {
	y := NewYtDlp(YtDlpInfo{}, testLogger())
	assert.Equal(t, "yt-dlp", y.ytdlp)
	assert.Equal(t, "ffmpeg", y.ffmpeg)
	assert.Equal(t, 3, y.policy.MaxAttempts)
}
