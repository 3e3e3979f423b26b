package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggestedWait(t *testing.T) {
	for _, tc := range []struct {
		name string
		text string
		exp  time.Duration
		ok   bool
	}{
		{
			name: "openai rate limit",
			text: "error, status code: 429, message: Rate limit reached for gpt-4o. Please try again in 1500ms. Visit https://platform.openai.com",
			exp:  1500 * time.Millisecond,
			ok:   true,
		},
		{name: "padded", text: "Please try again in  20 ms", exp: 20 * time.Millisecond, ok: true},
		{name: "absent", text: "connection reset by peer"},
		{name: "seconds", text: "Please try again in 1.5s. Limit: 30000 tokens per 1ms"},
		{name: "no unit", text: "Please try again in 300"},
		{name: "empty", text: "Please try again in ms"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := SuggestedWait(tc.text)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.exp, got)
		})
	}
}

func TestHintOrExponential(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, HintOrExponential(1, errors.New("x Please try again in 1500ms y")))
	assert.Equal(t, 2000*time.Millisecond, HintOrExponential(1, errors.New("boom")))
	assert.Equal(t, 8000*time.Millisecond, HintOrExponential(3, errors.New("boom")))
	assert.Equal(t, 16*time.Second, Exponential(4, nil))
}

func TestDo(t *testing.T) {
	ctx := context.Background()
	noWait := func(int, error) time.Duration { return 0 }

	t.Run("succeeds after failures", func(t *testing.T) {
		var (
			calls    []int
			attempts []int
		)
		p := Policy{MaxAttempts: 5, Wait: func(attempt int, _ error) time.Duration {
			attempts = append(attempts, attempt)
			return 0
		}}
		err := Do(ctx, nil, p, func(_ context.Context, attempt int) error {
			calls = append(calls, attempt)
			if attempt < 3 {
				return fmt.Errorf("failure %d", attempt)
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, calls)
		assert.Equal(t, []int{1, 2}, attempts)
	})

	t.Run("exhausted", func(t *testing.T) {
		calls := 0
		err := Do(ctx, nil, Policy{MaxAttempts: 5, Wait: noWait}, func(context.Context, int) error {
			calls++
			return fmt.Errorf("failure %d", calls)
		})
		require.Error(t, err)
		assert.Equal(t, "failure 5", err.Error())
		assert.Equal(t, 5, calls)
	})

	t.Run("permanent", func(t *testing.T) {
		sentinel := errors.New("bad request")
		calls := 0
		err := Do(ctx, nil, Policy{MaxAttempts: 5, Wait: noWait}, func(context.Context, int) error {
			calls++
			return Permanent(sentinel)
		})
		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(ctx)
		calls := 0
		err := Do(ctx, nil, Policy{MaxAttempts: 5, Wait: func(int, error) time.Duration { return time.Hour }}, func(context.Context, int) error {
			calls++
			cancel()
			return errors.New("boom")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}
