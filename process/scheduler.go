package process

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/exp/slog"
)

// Scheduler runs the pipeline right away and then at a fixed interval, and
// accepts manual triggers in between.
type Scheduler struct {
	pipeline *Pipeline
	interval time.Duration
	trigger  chan struct{}
	logger   *slog.Logger

	mu   sync.RWMutex
	next time.Time
}

func NewScheduler(pipeline *Pipeline, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		pipeline: pipeline,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		logger:   logger,
	}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.setNext(time.Now().Add(s.interval))
	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.setNext(time.Now().Add(s.interval))
			s.runOnce(ctx)
		case <-s.trigger:
			s.runOnce(ctx)
		}
	}
}

// Trigger asks for a run as soon as possible.
func (s *Scheduler) Trigger() error {
	if s.pipeline.Running() {
		return ErrRunInProgress
	}
	select {
	case s.trigger <- struct{}{}:
		return nil
	default:
		return ErrRunInProgress
	}
}

func (s *Scheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.next
}

func (s *Scheduler) Running() bool { return s.pipeline.Running() }

func (s *Scheduler) LastReport() (RunReport, bool) { return s.pipeline.LastReport() }

func (s *Scheduler) setNext(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = t
}

// runOnce is the only place where a failing run is absorbed, so that the
// process keeps serving.
func (s *Scheduler) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "run panicked",
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
			s.pipeline.setLast(RunReport{
				Started:  time.Now(),
				Finished: time.Now(),
				Error:    fmt.Sprintf("panic: %v", r),
			})
		}
	}()

	_, err := s.pipeline.Run(ctx)
	if errors.Is(err, ErrRunInProgress) {
		s.logger.InfoContext(ctx, "skipping run, previous run still active")
	}
}
