package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"ewintr.nl/hansard/model"
)

type fakeTool struct {
	mu           sync.Mutex
	downloads    []string
	splits       []string
	failOn       string
	skipArtifact bool
}

func (f *fakeTool) DownloadAudio(_ context.Context, url, destTemplate string) error {
	f.mu.Lock()
	f.downloads = append(f.downloads, url)
	f.mu.Unlock()
	if f.failOn != "" && strings.HasSuffix(url, f.failOn) {
		return &ExitError{Cmd: "yt-dlp", Code: 1, Stderr: "video unavailable"}
	}
	if f.skipArtifact {
		return nil
	}
	return os.WriteFile(strings.Replace(destTemplate, "%(ext)s", "mp3", 1), []byte("audio"), 0o644)
}

func (f *fakeTool) SplitToChunks(_ context.Context, audioPath string, segmentSeconds int, outputTemplate string) error {
	f.mu.Lock()
	f.splits = append(f.splits, audioPath)
	f.mu.Unlock()
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(fmt.Sprintf(outputTemplate, i), []byte("chunk"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCoordinator_AcquireAndChunk(t *testing.T) {
	layout := Layout{Root: t.TempDir()}
	tool := &fakeTool{}
	c := NewCoordinator(layout, tool, 0, 2, testLogger())
	s := model.Stream{ID: "abc"}

	require.NoError(t, c.AcquireAndChunk(context.Background(), s))
	assert.Equal(t, []string{"https://www.youtube.com/watch?v=abc"}, tool.downloads)
	assert.Equal(t, []string{layout.AudioPath("abc")}, tool.splits)

	chunks, err := layout.Chunks("abc")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(layout.ChunkDir("abc"), "abc_000.mp3"),
		filepath.Join(layout.ChunkDir("abc"), "abc_001.mp3"),
		filepath.Join(layout.ChunkDir("abc"), "abc_002.mp3"),
	}, chunks)

	// second call finds everything on disk
	require.NoError(t, c.AcquireAndChunk(context.Background(), s))
	assert.Len(t, tool.downloads, 1)
	assert.Len(t, tool.splits, 1)
}

func TestCoordinator_ResumesWithExistingAudio(t *testing.T) {
	layout := Layout{Root: t.TempDir()}
	require.NoError(t, os.MkdirAll(layout.ChunkDir("abc"), 0o755))
	require.NoError(t, os.WriteFile(layout.AudioPath("abc"), []byte("audio"), 0o644))

	tool := &fakeTool{}
	c := NewCoordinator(layout, tool, 900, 1, testLogger())
	require.NoError(t, c.AcquireAndChunk(context.Background(), model.Stream{ID: "abc"}))

	assert.Empty(t, tool.downloads)
	assert.Len(t, tool.splits, 1, "empty chunk dir is split again")
}

func TestCoordinator_MissingArtifact(t *testing.T) {
	c := NewCoordinator(Layout{Root: t.TempDir()}, &fakeTool{skipArtifact: true}, 900, 1, testLogger())
	err := c.AcquireAndChunk(context.Background(), model.Stream{ID: "abc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestCoordinator_Run(t *testing.T) {
	streams := []model.Stream{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	t.Run("all succeed", func(t *testing.T) {
		tool := &fakeTool{}
		c := NewCoordinator(Layout{Root: t.TempDir()}, tool, 900, 8, testLogger())
		require.NoError(t, c.Run(context.Background(), streams))
		assert.Len(t, tool.downloads, 3)
	})

	t.Run("fail fast", func(t *testing.T) {
		tool := &fakeTool{failOn: "=a"}
		c := NewCoordinator(Layout{Root: t.TempDir()}, tool, 900, 1, testLogger())
		err := c.Run(context.Background(), streams)
		require.Error(t, err)

		var exitErr *ExitError
		assert.True(t, errors.As(err, &exitErr))
		assert.Contains(t, err.Error(), "stream a")
		assert.Len(t, tool.downloads, 1, "later streams are not started")
	})

	t.Run("isolated", func(t *testing.T) {
		tool := &fakeTool{failOn: "=b"}
		c := NewCoordinator(Layout{Root: t.TempDir()}, tool, 900, 2, testLogger())
		failures := c.RunIsolated(context.Background(), streams)
		require.Len(t, failures, 1)
		assert.Error(t, failures["b"])
		assert.Len(t, tool.downloads, 3)
	})
}

func TestLayout_CleanupAudio(t *testing.T) {
	layout := Layout{Root: t.TempDir()}
	require.NoError(t, os.MkdirAll(layout.ChunkDir("abc"), 0o755))
	require.NoError(t, os.WriteFile(layout.TranscriptPath("abc"), []byte("text"), 0o644))

	require.NoError(t, layout.CleanupAudio())
	_, err := os.Stat(layout.AudioDir())
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(layout.TranscriptPath("abc"))
	assert.NoError(t, err)
}
