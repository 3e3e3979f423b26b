package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/joho/godotenv"
	"github.com/oklog/run"
	"github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/exp/slog"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"ewintr.nl/hansard/fetch"
	"ewintr.nl/hansard/handler"
	"ewintr.nl/hansard/logger"
	"ewintr.nl/hansard/media"
	"ewintr.nl/hansard/process"
	"ewintr.nl/hansard/storage"
	"ewintr.nl/hansard/summarize"
	"ewintr.nl/hansard/transcribe"
)

type config struct {
	DatabaseURL    string `env:"DATABASE_URL, required"`
	DatabaseDriver string `env:"DATABASE_DRIVER, default=postgres"`
	WorkDir        string `env:"WORK_DIR, default=/var/tmp/hansard"`

	MaxStreams      int           `env:"MAX_STREAMS_PER_RUN, default=3"`
	SegmentSeconds  int           `env:"SEGMENT_SECONDS, default=900"`
	Parallelism     int           `env:"PARALLELISM, default=0"`
	IsolateFailures bool          `env:"ISOLATE_STREAM_FAILURES, default=false"`
	RunInterval     time.Duration `env:"RUN_INTERVAL, default=4h"`

	Port        int      `env:"PORT, default=8001"`
	CorsOrigins []string `env:"CORS_ORIGINS, default=*"`

	ContextTokens   int    `env:"MODEL_CONTEXT_TOKENS, default=128000"`
	ReservedTokens  int    `env:"RESERVED_TOKENS, default=18000"`
	Strategy        string `env:"STRATEGY, default=linear"`
	SummaryProvider string `env:"SUMMARY_PROVIDER, default=openai"`
	SummaryModel    string `env:"SUMMARY_MODEL"`
	PromptsFile     string `env:"PROMPTS_FILE"`

	OpenAIApiKey       string `env:"OPENAI_API_KEY"`
	TranscriptionModel string `env:"TRANSCRIPTION_MODEL, default=whisper-1"`
	AnthropicApiKey    string `env:"ANTHROPIC_API_KEY"`

	Discovery        string `env:"DISCOVERY, default=youtube"`
	YoutubeApiKey    string `env:"YOUTUBE_API_KEY"`
	YoutubeChannelID string `env:"YOUTUBE_CHANNEL_ID"`
	MinifluxEndpoint string `env:"MINIFLUX_ENDPOINT"`
	MinifluxApiKey   string `env:"MINIFLUX_API_KEY"`
	MinifluxFeedID   int64  `env:"MINIFLUX_FEED_ID"`

	YtDlpPath   string `env:"YTDLP_PATH, default=yt-dlp"`
	FfmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg"`
	CookiesPath string `env:"YTDLP_COOKIES_PATH"`

	WeaviateHost        string `env:"WEAVIATE_HOST"`
	WeaviateApiKey      string `env:"WEAVIATE_API_KEY"`
	WeaviateResetSchema bool   `env:"WEAVIATE_RESET_SCHEMA, default=false"`

	LoggerFormat string `env:"LOGGER_FORMAT, default=text"`
	LogLevel     string `env:"LOG_LEVEL, default=info"`
}

func main() {
	ctx := context.Background()

	// a missing .env file is fine, the environment may already be complete
	_ = godotenv.Load()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing config: %s\n", err)
		os.Exit(1)
	}

	logger := logger.New(os.Stderr, cfg.LoggerFormat, cfg.LogLevel)
	if err := serve(ctx, cfg, logger); err != nil {
		var sigErr run.SignalError
		if errors.As(err, &sigErr) {
			logger.Info("service stopped", slog.String("signal", sigErr.Signal.String()))
			return
		}
		logger.Error("service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg config, logger *slog.Logger) error {
	db, err := storage.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("unable to open database: %w", err)
	}
	defer db.Close()
	streamRepo := storage.NewStreamRepository(db, logger)

	discovery, err := newDiscovery(ctx, cfg)
	if err != nil {
		return err
	}

	layout := media.Layout{Root: cfg.WorkDir}
	ytdlp := media.NewYtDlp(media.YtDlpInfo{
		YtDlpPath:   cfg.YtDlpPath,
		FfmpegPath:  cfg.FfmpegPath,
		CookiesPath: cfg.CookiesPath,
	}, logger)
	coordinator := media.NewCoordinator(layout, ytdlp, cfg.SegmentSeconds, cfg.Parallelism, logger)

	openAIClient := openai.NewClient(cfg.OpenAIApiKey)
	transcriber := transcribe.NewTranscriber(layout, transcribe.NewOpenAI(openAIClient, cfg.TranscriptionModel), logger)

	engine, err := newEngine(cfg, openAIClient, logger)
	if err != nil {
		return err
	}

	pipeline := process.NewPipeline(discovery, streamRepo, coordinator, transcriber, engine, layout, process.Config{
		MaxStreams:      cfg.MaxStreams,
		IsolateFailures: cfg.IsolateFailures,
	}, logger)

	if cfg.WeaviateHost != "" {
		wv, err := storage.NewWeaviate(storage.WeaviateInfo{
			Host:         cfg.WeaviateHost,
			ApiKey:       cfg.WeaviateApiKey,
			OpenAIApiKey: cfg.OpenAIApiKey,
		})
		if err != nil {
			return fmt.Errorf("unable to create weaviate client: %w", err)
		}
		if cfg.WeaviateResetSchema {
			if err := wv.ResetSchema(ctx); err != nil {
				return fmt.Errorf("unable to reset weaviate schema: %w", err)
			}
			logger.Info("weaviate schema reset")
		}
		pipeline = pipeline.WithIndexer(wv)
	}

	scheduler := process.NewScheduler(pipeline, cfg.RunInterval, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler.NewServer(scheduler, streamRepo, logger).Handler(cfg.CorsOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var g run.Group
	{
		runCtx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			logger.Info("scheduler started", slog.Duration("interval", cfg.RunInterval))
			return scheduler.Run(runCtx)
		}, func(error) {
			cancel()
		})
	}
	{
		g.Add(func() error {
			logger.Info("http server started", slog.Int("port", cfg.Port))
			return srv.ListenAndServe()
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		})
	}
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	return g.Run()
}

func newDiscovery(ctx context.Context, cfg config) (fetch.Discovery, error) {
	switch cfg.Discovery {
	case "youtube":
		if cfg.YoutubeChannelID == "" {
			return nil, errors.New("YOUTUBE_CHANNEL_ID is required for youtube discovery")
		}
		ytClient, err := youtube.NewService(ctx, option.WithAPIKey(cfg.YoutubeApiKey))
		if err != nil {
			return nil, fmt.Errorf("unable to create youtube service: %w", err)
		}
		return fetch.NewYoutube(ytClient, cfg.YoutubeChannelID), nil
	case "miniflux":
		return fetch.NewMiniflux(fetch.MinifluxInfo{
			Endpoint: cfg.MinifluxEndpoint,
			ApiKey:   cfg.MinifluxApiKey,
			FeedID:   cfg.MinifluxFeedID,
		}), nil
	default:
		return nil, fmt.Errorf("unknown discovery %q", cfg.Discovery)
	}
}

func newEngine(cfg config, openAIClient *openai.Client, logger *slog.Logger) (*summarize.Engine, error) {
	var completer summarize.Completer
	switch cfg.SummaryProvider {
	case "openai":
		completer = summarize.NewOpenAI(openAIClient, cfg.SummaryModel)
	case "anthropic":
		client := anthropic.NewClient(anthropicoption.WithAPIKey(cfg.AnthropicApiKey))
		completer = summarize.NewAnthropic(&client, cfg.SummaryModel)
	default:
		return nil, fmt.Errorf("unknown summary provider %q", cfg.SummaryProvider)
	}

	tokens, err := summarize.NewTiktoken("")
	if err != nil {
		return nil, fmt.Errorf("unable to load tokenizer: %w", err)
	}
	prompts, err := summarize.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}

	return summarize.NewEngine(completer, tokens, prompts, summarize.Config{
		ContextTokens:  cfg.ContextTokens,
		ReservedTokens: cfg.ReservedTokens,
		Strategy:       summarize.Strategy(cfg.Strategy),
		Window:         summarize.DefaultWindow,
	}, logger), nil
}
