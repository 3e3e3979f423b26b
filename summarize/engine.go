package summarize

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/exp/slog"

	"ewintr.nl/hansard/logger"
	"ewintr.nl/hansard/model"
	"ewintr.nl/hansard/retry"
	"ewintr.nl/hansard/transcribe"
)

type Strategy string

const (
	StrategyLinear  Strategy = "linear"
	StrategySliding Strategy = "sliding"
)

const fullTranscriptPrefix = "The full transcript:\n\n"

type Config struct {
	// ContextTokens is the context window of the model and ReservedTokens
	// the part of it kept free for prompts and the answer.
	ContextTokens  int
	ReservedTokens int
	Strategy       Strategy
	Window         Window
}

// Engine summarizes transcripts in one request when they fit the token budget
// and with a chunked map-reduce when they do not.
type Engine struct {
	completer Completer
	tokens    TokenCounter
	prompts   Prompts
	budget    int
	strategy  Strategy
	window    Window
	policy    retry.Policy
	now       func() time.Time
	logger    *slog.Logger
}

func NewEngine(completer Completer, tokens TokenCounter, prompts Prompts, cfg Config, logger *slog.Logger) *Engine {
	if cfg.ContextTokens <= 0 {
		cfg.ContextTokens = 128000
	}
	if cfg.ReservedTokens < 0 {
		cfg.ReservedTokens = 0
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyLinear
	}

	return &Engine{
		completer: completer,
		tokens:    tokens,
		prompts:   prompts,
		budget:    cfg.ContextTokens - cfg.ReservedTokens,
		strategy:  cfg.Strategy,
		window:    cfg.Window,
		policy:    retry.Policy{MaxAttempts: 5, Wait: retry.HintOrExponential},
		now:       time.Now,
		logger:    logger,
	}
}

func (e *Engine) Summarize(ctx context.Context, transcript string, stream model.Stream) (string, error) {
	ctx = logger.Ctx(ctx, slog.String("stream_id", stream.ID))

	count, err := e.tokens.Count(transcript)
	if err != nil {
		return "", fmt.Errorf("failed to count tokens: %w", err)
	}
	now := e.now()

	if count <= e.budget {
		e.logger.InfoContext(ctx, "summarizing full transcript", slog.Int("tokens", count), slog.Int("budget", e.budget))
		return e.complete(ctx, "summarize", e.prompts.summarize(stream, now), fullTranscriptPrefix+transcript)
	}

	e.logger.InfoContext(ctx, "transcript exceeds budget, summarizing in chunks",
		slog.Int("tokens", count),
		slog.Int("budget", e.budget),
		slog.String("strategy", string(e.strategy)),
	)
	chunk := func(ctx context.Context, chunk, priorContext string) (string, error) {
		return e.complete(ctx, "summarize chunk", e.prompts.chunk(chunk, priorContext))
	}
	combine := func(ctx context.Context, summaries []string) (string, error) {
		e.logger.InfoContext(ctx, "combining summaries", slog.Int("summaries", len(summaries)))
		return e.complete(ctx, "combine", e.prompts.combine(stream, now, summaries))
	}

	switch e.strategy {
	case StrategySliding:
		return SummarizeSlidingWindow(ctx, transcript, e.window, chunk, combine)
	default:
		return SummarizeLinear(ctx, transcript, transcribe.ChunkDelimiter, chunk, combine)
	}
}

func (e *Engine) complete(ctx context.Context, step string, user ...string) (string, error) {
	var out string
	err := retry.Do(ctx, e.logger, e.policy, func(ctx context.Context, attempt int) error {
		e.logger.DebugContext(ctx, "sending request", slog.String("step", step), slog.Int("attempt", attempt))
		res, err := e.completer.Complete(ctx, e.prompts.System, user...)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to %s: %w", step, err)
	}

	return out, nil
}
