// Package retry runs calls against unreliable services with a fixed number of
// attempts and a wait that may depend on the error that was returned.
package retry

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	goretry "github.com/sethvargo/go-retry"
	"golang.org/x/exp/slog"
)

const hintPrefix = "Please try again in "

// WaitFunc returns the wait before the next attempt. attempt counts the
// failures so far, starting at 1.
type WaitFunc func(attempt int, err error) time.Duration

type Policy struct {
	MaxAttempts int
	Wait        WaitFunc
}

// Exponential waits 2^attempt seconds.
func Exponential(attempt int, _ error) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

// HintOrExponential waits as long as the provider asked for in the error
// text, and falls back to Exponential otherwise.
func HintOrExponential(attempt int, err error) time.Duration {
	if err != nil {
		if d, ok := SuggestedWait(err.Error()); ok {
			return d
		}
	}
	return Exponential(attempt, err)
}

// SuggestedWait extracts a wait like "Please try again in 1500ms" from an
// error message.
func SuggestedWait(text string) (time.Duration, bool) {
	i := strings.Index(text, hintPrefix)
	if i < 0 {
		return 0, false
	}
	rest := text[i+len(hintPrefix):]
	j := strings.Index(rest, "ms")
	if j < 0 {
		return 0, false
	}
	digits := strings.TrimSpace(rest[:j])
	if digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	ms, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}

	return time.Duration(ms) * time.Millisecond, true
}

// Do calls f until it succeeds, the attempts are used up or ctx is done. Every
// error returned by f is considered transient; wrap an error with Permanent
// to stop immediately. The last error is returned on exhaustion.
func Do(ctx context.Context, logger *slog.Logger, p Policy, f func(ctx context.Context, attempt int) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Wait == nil {
		p.Wait = Exponential
	}

	var (
		attempt int
		lastErr error
	)
	backoff := goretry.BackoffFunc(func() (time.Duration, bool) {
		if attempt >= p.MaxAttempts {
			return 0, true
		}
		wait := p.Wait(attempt, lastErr)
		if logger != nil {
			logger.WarnContext(ctx, "attempt failed, retrying",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", p.MaxAttempts),
				slog.Duration("wait", wait),
				slog.String("error", lastErr.Error()),
			)
		}
		return wait, false
	})

	return goretry.Do(ctx, backoff, func(ctx context.Context) error {
		err := f(ctx, attempt+1)
		if err == nil {
			return nil
		}
		attempt++
		lastErr = err
		if isPermanent(err) {
			return err
		}
		return goretry.RetryableError(err)
	})
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func isPermanent(err error) bool {
	_, ok := err.(permanentError)
	return ok
}
