package media

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"

	"ewintr.nl/hansard/logger"
	"ewintr.nl/hansard/model"
)

const DefaultSegmentSeconds = 900

// Coordinator makes sure every selected stream has its audio downloaded and
// split into chunks. Every step is skipped when its artifact is already on
// disk, so an interrupted run can be resumed.
type Coordinator struct {
	layout         Layout
	tool           Tool
	segmentSeconds int
	parallelism    int
	logger         *slog.Logger
}

func NewCoordinator(layout Layout, tool Tool, segmentSeconds, parallelism int, logger *slog.Logger) *Coordinator {
	if segmentSeconds <= 0 {
		segmentSeconds = DefaultSegmentSeconds
	}
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	return &Coordinator{
		layout:         layout,
		tool:           tool,
		segmentSeconds: segmentSeconds,
		parallelism:    parallelism,
		logger:         logger,
	}
}

func (c *Coordinator) AcquireAndChunk(ctx context.Context, stream model.Stream) error {
	ctx = logger.Ctx(ctx, slog.String("stream_id", stream.ID))
	audio := c.layout.AudioPath(stream.ID)

	found, err := exists(audio)
	if err != nil {
		return fmt.Errorf("failed to check audio: %w", err)
	}
	if found {
		c.logger.DebugContext(ctx, "audio already downloaded", slog.String("path", audio))
	} else {
		if err := os.MkdirAll(c.layout.AudioDir(), 0o755); err != nil {
			return fmt.Errorf("failed to create audio dir: %w", err)
		}
		if err := c.tool.DownloadAudio(ctx, stream.URL(), c.layout.AudioTemplate(stream.ID)); err != nil {
			return fmt.Errorf("failed to download audio: %w", err)
		}
		found, err = exists(audio)
		if err != nil {
			return fmt.Errorf("failed to check audio: %w", err)
		}
		if !found {
			return fmt.Errorf("download finished but %s is missing", audio)
		}
	}

	chunked, err := hasFiles(c.layout.ChunkDir(stream.ID))
	if err != nil {
		return fmt.Errorf("failed to check chunks: %w", err)
	}
	if chunked {
		c.logger.DebugContext(ctx, "chunks already present", slog.String("dir", c.layout.ChunkDir(stream.ID)))
		return nil
	}
	if err := os.MkdirAll(c.layout.ChunkDir(stream.ID), 0o755); err != nil {
		return fmt.Errorf("failed to create chunk dir: %w", err)
	}
	if err := c.tool.SplitToChunks(ctx, audio, c.segmentSeconds, c.layout.ChunkTemplate(stream.ID)); err != nil {
		return fmt.Errorf("failed to split audio: %w", err)
	}
	c.logger.InfoContext(ctx, "audio ready")

	return nil
}

// Run prepares all streams with bounded parallelism and returns the first
// failure. Workers that are already running when a failure occurs are not
// interrupted; workers that have not started yet are skipped.
func (c *Coordinator) Run(ctx context.Context, streams []model.Stream) error {
	var (
		g      errgroup.Group
		failed atomic.Bool
	)
	g.SetLimit(c.limit(len(streams)))

	for _, s := range streams {
		s := s
		g.Go(func() error {
			if failed.Load() {
				return nil
			}
			if err := c.AcquireAndChunk(ctx, s); err != nil {
				failed.Store(true)
				return fmt.Errorf("stream %s: %w", s.ID, err)
			}
			return nil
		})
	}

	return g.Wait()
}

// RunIsolated prepares all streams and reports the failures per stream id
// instead of stopping at the first one.
func (c *Coordinator) RunIsolated(ctx context.Context, streams []model.Stream) map[string]error {
	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures = map[string]error{}
	)
	g.SetLimit(c.limit(len(streams)))

	for _, s := range streams {
		s := s
		g.Go(func() error {
			if err := c.AcquireAndChunk(ctx, s); err != nil {
				mu.Lock()
				failures[s.ID] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return failures
}

func (c *Coordinator) limit(n int) int {
	if n < 1 {
		return 1
	}
	return min(c.parallelism, n)
}
