package process

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"ewintr.nl/hansard/fetch"
	"ewintr.nl/hansard/logger"
	"ewintr.nl/hansard/model"
)

var ErrRunInProgress = errors.New("a run is already in progress")

type Stage string

const (
	StageDiscover   Stage = "discover"
	StageSelect     Stage = "select"
	StageMedia      Stage = "media"
	StageTranscribe Stage = "transcribe"
	StageSummarize  Stage = "summarize"
	StagePersist    Stage = "persist"
)

// StageError is returned when a stage fails for the whole run. StreamID is
// empty for failures that are not tied to a single stream.
type StageError struct {
	Stage    Stage
	StreamID string
	Err      error
}

func (e *StageError) Error() string {
	if e.StreamID == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.StreamID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

type StreamStore interface {
	ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
	BulkInsert(ctx context.Context, streams []model.Stream) (model.BatchResult, error)
}

type MediaPreparer interface {
	Run(ctx context.Context, streams []model.Stream) error
	RunIsolated(ctx context.Context, streams []model.Stream) map[string]error
}

type Transcriber interface {
	Transcribe(ctx context.Context, streamID string) (string, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, transcript string, stream model.Stream) (string, error)
}

// Indexer receives the streams that were stored in a run.
type Indexer interface {
	Index(ctx context.Context, streams []model.Stream) error
}

type AudioCleaner interface {
	CleanupAudio() error
}

type StreamFailure struct {
	ID    string `json:"id"`
	Stage Stage  `json:"stage"`
	Error string `json:"error"`
}

type RunReport struct {
	ID       string            `json:"id"`
	Started  time.Time         `json:"started"`
	Finished time.Time         `json:"finished"`
	Selected []string          `json:"selected"`
	Failed   []StreamFailure   `json:"failed,omitempty"`
	Result   model.BatchResult `json:"result"`
	Error    string            `json:"error,omitempty"`
}

type Config struct {
	MaxStreams int
	// IsolateFailures drops a failing stream from the run instead of
	// aborting the run.
	IsolateFailures bool
}

type Pipeline struct {
	discovery   fetch.Discovery
	store       StreamStore
	media       MediaPreparer
	transcriber Transcriber
	summarizer  Summarizer
	indexer     Indexer
	cleaner     AudioCleaner
	config      Config
	now         func() time.Time
	logger      *slog.Logger

	mu      sync.Mutex
	running atomic.Bool
	lastMu  sync.RWMutex
	last    *RunReport
}

func NewPipeline(discovery fetch.Discovery, store StreamStore, media MediaPreparer, transcriber Transcriber, summarizer Summarizer, cleaner AudioCleaner, config Config, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		discovery:   discovery,
		store:       store,
		media:       media,
		transcriber: transcriber,
		summarizer:  summarizer,
		cleaner:     cleaner,
		config:      config,
		now:         time.Now,
		logger:      logger,
	}
}

// WithIndexer makes the pipeline hand stored streams to idx.
func (p *Pipeline) WithIndexer(idx Indexer) *Pipeline {
	p.indexer = idx
	return p
}

func (p *Pipeline) Running() bool { return p.running.Load() }

func (p *Pipeline) LastReport() (RunReport, bool) {
	p.lastMu.RLock()
	defer p.lastMu.RUnlock()
	if p.last == nil {
		return RunReport{}, false
	}
	return *p.last, true
}

func (p *Pipeline) setLast(r RunReport) {
	p.lastMu.Lock()
	defer p.lastMu.Unlock()
	p.last = &r
}

// Run processes one batch of streams. It returns ErrRunInProgress without
// doing anything when another run is active.
func (p *Pipeline) Run(ctx context.Context) (RunReport, error) {
	if !p.mu.TryLock() {
		return RunReport{}, ErrRunInProgress
	}
	defer p.mu.Unlock()
	p.running.Store(true)
	defer p.running.Store(false)

	report := RunReport{
		ID:       uuid.NewString(),
		Started:  p.now(),
		Selected: []string{},
		Result:   model.BatchResult{Failures: []model.Failure{}},
	}
	ctx = logger.Ctx(ctx, slog.String("run_id", report.ID))
	p.logger.InfoContext(ctx, "run started")

	err := p.run(ctx, &report)
	report.Finished = p.now()
	if err != nil {
		report.Error = err.Error()
		p.logger.ErrorContext(ctx, "run failed", slog.String("error", err.Error()))
	} else {
		p.logger.InfoContext(ctx, "run finished",
			slog.Int("selected", len(report.Selected)),
			slog.Int("inserted", report.Result.Inserted),
			slog.Int("failed", len(report.Failed)+len(report.Result.Failures)),
			slog.Duration("took", report.Finished.Sub(report.Started)),
		)
	}
	p.setLast(report)

	return report, err
}

func (p *Pipeline) run(ctx context.Context, report *RunReport) error {
	candidates, err := p.discovery.Candidates(ctx)
	if err != nil {
		return &StageError{Stage: StageDiscover, Err: err}
	}
	existing, err := p.store.ExistingIDs(ctx, fetch.IDs(candidates))
	if err != nil {
		return &StageError{Stage: StageSelect, Err: err}
	}
	streams, unparseable := fetch.Select(candidates, existing, p.config.MaxStreams, p.now())
	for _, id := range unparseable {
		p.logger.WarnContext(ctx, "skipping stream without a usable publish time", slog.String("stream_id", id))
	}
	report.Selected = fetch.IDs(streams)
	p.logger.InfoContext(ctx, "streams selected",
		slog.Int("candidates", len(candidates)),
		slog.Int("known", len(existing)),
		slog.Any("selected", report.Selected),
	)
	if len(streams) == 0 {
		p.logger.InfoContext(ctx, "no streams to process")
		return nil
	}

	if streams, err = p.prepareMedia(ctx, streams, report); err != nil {
		return err
	}

	transcripts := make(map[string]string, len(streams))
	streams, err = p.eachStream(ctx, StageTranscribe, streams, report, func(ctx context.Context, s *model.Stream) error {
		t, err := p.transcriber.Transcribe(ctx, s.ID)
		transcripts[s.ID] = t
		return err
	})
	if err != nil {
		return err
	}

	streams, err = p.eachStream(ctx, StageSummarize, streams, report, func(ctx context.Context, s *model.Stream) error {
		summary, err := p.summarizer.Summarize(ctx, Clean(transcripts[s.ID]), *s)
		s.Summary = summary
		return err
	})
	if err != nil {
		return err
	}
	if len(streams) == 0 {
		return nil
	}

	result, err := p.store.BulkInsert(ctx, streams)
	if err != nil {
		return &StageError{Stage: StagePersist, Err: err}
	}
	report.Result = result
	for _, f := range result.Failures {
		p.logger.WarnContext(ctx, "stream not stored", slog.String("stream_id", f.ID), slog.String("reason", f.Reason.String()))
	}

	p.afterPersist(ctx, streams, result)
	if len(report.Failed) == 0 && p.cleaner != nil {
		if err := p.cleaner.CleanupAudio(); err != nil {
			p.logger.WarnContext(ctx, "could not clean up audio", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (p *Pipeline) prepareMedia(ctx context.Context, streams []model.Stream, report *RunReport) ([]model.Stream, error) {
	if !p.config.IsolateFailures {
		if err := p.media.Run(ctx, streams); err != nil {
			return nil, &StageError{Stage: StageMedia, Err: err}
		}
		return streams, nil
	}

	failures := p.media.RunIsolated(ctx, streams)
	kept := make([]model.Stream, 0, len(streams))
	for _, s := range streams {
		if err, failed := failures[s.ID]; failed {
			p.dropStream(ctx, report, StageMedia, s.ID, err)
			continue
		}
		kept = append(kept, s)
	}
	return kept, nil
}

// eachStream runs f for every stream in order. On failure the run is aborted,
// or the stream is dropped when failures are isolated.
func (p *Pipeline) eachStream(ctx context.Context, stage Stage, streams []model.Stream, report *RunReport, f func(context.Context, *model.Stream) error) ([]model.Stream, error) {
	kept := make([]model.Stream, 0, len(streams))
	for _, s := range streams {
		sctx := logger.Ctx(ctx, slog.String("stream_id", s.ID), slog.String("stage", string(stage)))
		if err := f(sctx, &s); err != nil {
			if !p.config.IsolateFailures || ctx.Err() != nil {
				return nil, &StageError{Stage: stage, StreamID: s.ID, Err: err}
			}
			p.dropStream(ctx, report, stage, s.ID, err)
			continue
		}
		kept = append(kept, s)
	}
	return kept, nil
}

func (p *Pipeline) dropStream(ctx context.Context, report *RunReport, stage Stage, id string, err error) {
	p.logger.ErrorContext(ctx, "stream dropped from run",
		slog.String("stream_id", id),
		slog.String("stage", string(stage)),
		slog.String("error", err.Error()),
	)
	report.Failed = append(report.Failed, StreamFailure{ID: id, Stage: stage, Error: err.Error()})
}

func (p *Pipeline) afterPersist(ctx context.Context, streams []model.Stream, result model.BatchResult) {
	notStored := make(map[string]bool, len(result.Failures))
	for _, f := range result.Failures {
		notStored[f.ID] = f.Reason.Kind != model.FailDuplicateEntry
	}
	var (
		stored []model.Stream
		done   []string
	)
	for _, s := range streams {
		invalid, failed := notStored[s.ID]
		if !failed {
			stored = append(stored, s)
		}
		if !invalid {
			done = append(done, s.ID)
		}
	}

	if p.indexer != nil && len(stored) > 0 {
		if err := p.indexer.Index(ctx, stored); err != nil {
			p.logger.WarnContext(ctx, "could not index summaries", slog.String("error", err.Error()))
		}
	}
	if ack, ok := p.discovery.(fetch.Acknowledger); ok && len(done) > 0 {
		if err := ack.Acknowledge(ctx, done); err != nil {
			p.logger.WarnContext(ctx, "could not acknowledge streams", slog.String("error", err.Error()))
		}
	}
}
