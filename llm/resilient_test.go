package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("model unavailable")

func newTestInvoker() (*Invoker, *[]time.Duration, *time.Time) {
	inv := NewInvoker(DefaultMaxRetries, time.Second)

	var slept []time.Duration
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	inv.sleep = func(d time.Duration) { slept = append(slept, d) }
	inv.now = func() time.Time { return now }

	return inv, &slept, &now
}

func failingCall(calls *int) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		*calls++
		return "", errUpstream
	}
}

func TestCallWithRetrySucceedsFirstAttempt(t *testing.T) {
	inv, slept, _ := newTestInvoker()

	got := inv.CallWithRetry(context.Background(), "test", func(context.Context) (string, error) {
		return "answer", nil
	}, "fallback")

	assert.Equal(t, "answer", got)
	assert.Empty(t, *slept, "no backoff on first-attempt success")
}

func TestCallWithRetryBacksOffExponentially(t *testing.T) {
	inv, slept, _ := newTestInvoker()

	calls := 0
	got := inv.CallWithRetry(context.Background(), "test", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errUpstream
		}
		return "recovered", nil
	}, "fallback")

	assert.Equal(t, "recovered", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
}

func TestCallWithRetryExhaustedReturnsFallback(t *testing.T) {
	inv, slept, _ := newTestInvoker()

	calls := 0
	got := inv.CallWithRetry(context.Background(), "test", failingCall(&calls), "fallback")

	assert.Equal(t, "fallback", got)
	assert.Equal(t, DefaultMaxRetries, calls)
	// no sleep after the final attempt
	assert.Len(t, *slept, DefaultMaxRetries-1)
}

func TestCallWithRetryOrThrowWrapsLastError(t *testing.T) {
	inv, _, _ := newTestInvoker()

	calls := 0
	_, err := inv.CallWithRetryOrThrow(context.Background(), "chat", failingCall(&calls))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, errUpstream)
	assert.Contains(t, err.Error(), "chat")
}

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	inv, _, _ := newTestInvoker()

	calls := 0
	for i := 0; i < DefaultCircuitThreshold; i++ {
		inv.CallWithRetry(context.Background(), "test", failingCall(&calls), "fallback")
	}
	assert.Equal(t, DefaultCircuitThreshold*DefaultMaxRetries, calls)

	// circuit is open now: fallback without touching the upstream
	got := inv.CallWithRetry(context.Background(), "test", failingCall(&calls), "fallback")
	assert.Equal(t, "fallback", got)
	assert.Equal(t, DefaultCircuitThreshold*DefaultMaxRetries, calls)

	_, err := inv.CallWithRetryOrThrow(context.Background(), "test", failingCall(&calls))
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, DefaultCircuitThreshold*DefaultMaxRetries, calls)
}

func TestCircuitClosesAfterCooldown(t *testing.T) {
	inv, _, now := newTestInvoker()

	calls := 0
	for i := 0; i < DefaultCircuitThreshold; i++ {
		inv.CallWithRetry(context.Background(), "test", failingCall(&calls), "fallback")
	}
	require.True(t, inv.isCircuitOpen())

	*now = now.Add(DefaultOpenDuration + time.Second)

	got := inv.CallWithRetry(context.Background(), "test", func(context.Context) (string, error) {
		return "back online", nil
	}, "fallback")
	assert.Equal(t, "back online", got)
	assert.False(t, inv.isCircuitOpen())
}

func TestCircuitStateUnderConcurrentCalls(t *testing.T) {
	inv, _, _ := newTestInvoker()
	inv.sleep = func(time.Duration) {}

	var wg sync.WaitGroup
	for i := 0; i < 4*DefaultCircuitThreshold; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv.CallWithRetry(context.Background(), "test", func(context.Context) (string, error) {
				return "", errUpstream
			}, "fallback")
		}()
	}
	wg.Wait()

	assert.True(t, inv.isCircuitOpen(),
		"breaker must open once concurrent failures pass the threshold")
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	inv, _, _ := newTestInvoker()

	calls := 0
	for i := 0; i < DefaultCircuitThreshold-1; i++ {
		inv.CallWithRetry(context.Background(), "test", failingCall(&calls), "fallback")
	}
	inv.CallWithRetry(context.Background(), "test", func(context.Context) (string, error) {
		return "ok", nil
	}, "fallback")
	inv.CallWithRetry(context.Background(), "test", failingCall(&calls), "fallback")

	assert.False(t, inv.isCircuitOpen(), "a success in between must reset the streak")
}
