package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slog"

	"ewintr.nl/hansard/logger"
	"ewintr.nl/hansard/media"
	"ewintr.nl/hansard/retry"
)

// ChunkDelimiter separates the text of consecutive audio chunks in a
// transcript.
const ChunkDelimiter = "----END_OF_CHUNK----"

// ErrJSONResponse is returned when the service answered with what looks like
// a JSON error body instead of plain text.
var ErrJSONResponse = errors.New("transcription returned a json payload")

// AudioTranscriber turns one audio file into text.
type AudioTranscriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Transcriber builds the transcript of a stream from its audio chunks, in
// chunk order.
type Transcriber struct {
	layout  media.Layout
	service AudioTranscriber
	policy  retry.Policy
	logger  *slog.Logger
}

func NewTranscriber(layout media.Layout, service AudioTranscriber, logger *slog.Logger) *Transcriber {
	return &Transcriber{
		layout:  layout,
		service: service,
		policy:  retry.Policy{MaxAttempts: 5, Wait: retry.Exponential},
		logger:  logger,
	}
}

// WithPolicy replaces the retry policy used for every chunk.
func (t *Transcriber) WithPolicy(p retry.Policy) *Transcriber {
	t.policy = p
	return t
}

// Transcribe returns the transcript of the stream. A finished transcript on
// disk is reused. Otherwise every chunk is transcribed into a partial file
// that only replaces the final transcript once all chunks succeeded.
func (t *Transcriber) Transcribe(ctx context.Context, streamID string) (string, error) {
	ctx = logger.Ctx(ctx, slog.String("stream_id", streamID))
	final := t.layout.TranscriptPath(streamID)

	if body, err := os.ReadFile(final); err == nil {
		t.logger.InfoContext(ctx, "transcript already present", slog.String("path", final))
		return string(body), nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to read transcript: %w", err)
	}

	chunks, err := t.layout.Chunks(streamID)
	if err != nil {
		return "", fmt.Errorf("failed to list chunks: %w", err)
	}
	if len(chunks) == 0 {
		return "", fmt.Errorf("no audio chunks for stream %s", streamID)
	}

	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return "", fmt.Errorf("failed to create transcript dir: %w", err)
	}
	partial := final + ".part"
	f, err := os.Create(partial)
	if err != nil {
		return "", fmt.Errorf("failed to create transcript: %w", err)
	}
	defer f.Close()

	var transcript strings.Builder
	for i, chunk := range chunks {
		text, err := t.chunk(ctx, chunk)
		if err != nil {
			return "", fmt.Errorf("failed to transcribe chunk %d of %d: %w", i+1, len(chunks), err)
		}
		part := text + "\n" + ChunkDelimiter + "\n"
		if _, err := f.WriteString(part); err != nil {
			return "", fmt.Errorf("failed to write transcript: %w", err)
		}
		transcript.WriteString(part)
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close transcript: %w", err)
	}
	if err := os.Rename(partial, final); err != nil {
		return "", fmt.Errorf("failed to finish transcript: %w", err)
	}
	t.logger.InfoContext(ctx, "transcript written", slog.Int("chunks", len(chunks)))

	return transcript.String(), nil
}

func (t *Transcriber) chunk(ctx context.Context, path string) (string, error) {
	var text string
	err := retry.Do(ctx, t.logger, t.policy, func(ctx context.Context, attempt int) error {
		t.logger.InfoContext(ctx, "transcribing chunk", slog.String("chunk", filepath.Base(path)), slog.Int("attempt", attempt))
		res, err := t.service.Transcribe(ctx, path)
		if err != nil {
			return err
		}
		if strings.HasPrefix(strings.TrimSpace(res), "{") {
			return fmt.Errorf("%w: %.200s", ErrJSONResponse, res)
		}
		text = res
		return nil
	})

	return text, err
}
