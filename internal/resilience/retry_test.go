package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDoVal_FirstTrySucceeds(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), DefaultRetryConfig(), func(_ context.Context) (string, error) {
		calls++
		return "candidate", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "candidate", val)
	assert.Equal(t, 1, calls)
}

func TestDoVal_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), fastRetry(3), func(_ context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("overloaded"), 529)
		}
		return "candidate", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "candidate", val)
	assert.Equal(t, 3, calls)
}

func TestDoVal_ExhaustsAttempts(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), fastRetry(3), func(_ context.Context) (int, error) {
		calls++
		return 42, NewTransientError(errors.New("still down"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Zero(t, val, "failed calls must not leak a value")
}

func TestDoVal_PermanentErrorNotRetried(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), fastRetry(3), func(_ context.Context) (string, error) {
		calls++
		return "", errors.New("invalid request: missing document")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_CancelStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := fastRetry(5)
	cfg.InitialBackoff = 50 * time.Millisecond

	_, err := DoVal(ctx, cfg, func(_ context.Context) (string, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return "", NewTransientError(errors.New("down"), 503)
	})
	require.Error(t, err)
	assert.LessOrEqual(t, calls, 2)
}

func TestDoVal_CustomClassifier(t *testing.T) {
	calls := 0
	cfg := fastRetry(3)
	cfg.ShouldRetry = func(err error) bool { return err.Error() == "retry me" }

	_, err := DoVal(context.Background(), cfg, func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("retry me")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoVal_OnRetryHookSeesEachRetry(t *testing.T) {
	var retries []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, _ error) { retries = append(retries, attempt) }

	_, _ = DoVal(context.Background(), cfg, func(_ context.Context) (string, error) {
		return "", NewTransientError(errors.New("down"), 503)
	})

	// Two retries after the first try, numbered from 1.
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDo_WrapsDoVal(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(2), func(_ context.Context) error {
		calls++
		if calls == 1 {
			return NewTransientError(errors.New("down"), 502)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	err = Do(context.Background(), fastRetry(1), func(_ context.Context) error {
		return errors.New("permanent")
	})
	require.Error(t, err)
}

func TestBackoff_GrowsExponentially(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
	}.withDefaults()
	cfg.JitterFraction = 0

	assert.Equal(t, 100*time.Millisecond, cfg.backoff(0))
	assert.Equal(t, 200*time.Millisecond, cfg.backoff(1))
	assert.Equal(t, 400*time.Millisecond, cfg.backoff(2))
	assert.Equal(t, 800*time.Millisecond, cfg.backoff(3))
}

func TestBackoff_CappedAtMax(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Second,
		Multiplier:     10.0,
	}.withDefaults()
	cfg.JitterFraction = 0

	assert.Equal(t, 5*time.Second, cfg.backoff(5))
}

func TestBackoff_JitterSpreadsDelays(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.5,
	}.withDefaults()

	seen := map[time.Duration]bool{}
	for i := 0; i < 100; i++ {
		d := cfg.backoff(0)
		seen[d] = true
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
	assert.Greater(t, len(seen), 1, "jitter should vary the delay")
}

func TestFromRetryConfig(t *testing.T) {
	cfg := FromRetryConfig(5, 200, 10000)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 10*time.Second, cfg.MaxBackoff)

	// Zero values keep the defaults.
	def := FromRetryConfig(0, 0, 0)
	assert.Equal(t, DefaultRetryConfig().MaxAttempts, def.MaxAttempts)
	assert.Equal(t, DefaultRetryConfig().InitialBackoff, def.InitialBackoff)
}

func TestRetryLogger_DoesNotPanic(t *testing.T) {
	RetryLogger("anthropic", "propose")(1, errors.New("overloaded"))
}
