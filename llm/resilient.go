package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Resilience defaults.
const (
	DefaultMaxRetries       = 3
	DefaultBaseDelay        = time.Second
	DefaultCircuitThreshold = 5
	DefaultOpenDuration     = 30 * time.Second
)

var (
	// ErrCircuitOpen is returned by CallWithRetryOrThrow while the circuit
	// is open; no attempt was made.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrRetriesExhausted wraps the last attempt error once every retry
	// has failed.
	ErrRetriesExhausted = errors.New("all retry attempts failed")
)

// Invoker wraps remote calls with retries, exponential backoff and a
// circuit breaker. One Invoker instance is shared by reference among all
// callers of the same remote-call category, so consecutive failures across
// callers accumulate into the same circuit state.
type Invoker struct {
	maxRetries       int
	baseDelay        time.Duration
	circuitThreshold int
	openDuration     time.Duration

	mu                  sync.Mutex
	consecutiveFailures int

	// unix nanos; zero means closed. Atomic so the fast-path read in
	// isCircuitOpen is well-defined without taking the mutex.
	openUntil atomic.Int64

	now    func() time.Time
	sleep  func(time.Duration)
	logger *slog.Logger
}

func NewInvoker(maxRetries int, baseDelay time.Duration) *Invoker {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Invoker{
		maxRetries:       maxRetries,
		baseDelay:        baseDelay,
		circuitThreshold: DefaultCircuitThreshold,
		openDuration:     DefaultOpenDuration,
		now:              time.Now,
		sleep:            time.Sleep,
		logger:           slog.Default(),
	}
}

// CallWithRetry attempts call up to maxRetries times, backing off between
// attempts, and returns fallback once every attempt has failed or while the
// circuit is open. The fallback path never returns an error.
func (inv *Invoker) CallWithRetry(ctx context.Context, op string, call func(context.Context) (string, error), fallback string) string {
	if inv.isCircuitOpen() {
		inv.logger.Warn("circuit breaker is open, returning fallback", "op", op)
		return fallback
	}

	result, err := inv.attempt(ctx, op, call)
	if err != nil {
		inv.onFailure()
		inv.logger.Error("all attempts failed, returning fallback",
			"op", op, "attempts", inv.maxRetries, "error", err)
		return fallback
	}

	inv.onSuccess()
	return result
}

// CallWithRetryOrThrow follows the same retry protocol but surfaces the
// failure instead of absorbing it: ErrCircuitOpen while open, or an error
// wrapping ErrRetriesExhausted after the final attempt.
func (inv *Invoker) CallWithRetryOrThrow(ctx context.Context, op string, call func(context.Context) (string, error)) (string, error) {
	if inv.isCircuitOpen() {
		return "", ErrCircuitOpen
	}

	result, err := inv.attempt(ctx, op, call)
	if err != nil {
		inv.onFailure()
		return "", fmt.Errorf("%w for %s: %w", ErrRetriesExhausted, op, err)
	}

	inv.onSuccess()
	return result, nil
}

// attempt runs the sequential retry loop. Every error is treated as
// retryable; the backoff sleep is not interruptible mid-wait.
func (inv *Invoker) attempt(ctx context.Context, op string, call func(context.Context) (string, error)) (string, error) {
	var lastErr error

	for a := 1; a <= inv.maxRetries; a++ {
		inv.logger.Debug("attempting call", "op", op, "attempt", a, "max", inv.maxRetries)

		result, err := call(ctx)
		if err == nil {
			return result, nil
		}

		lastErr = err
		inv.logger.Warn("attempt failed", "op", op, "attempt", a, "max", inv.maxRetries, "error", err)

		if a < inv.maxRetries {
			delay := inv.baseDelay * (1 << (a - 1))
			inv.logger.Debug("waiting before retry", "op", op, "delay", delay)
			inv.sleep(delay)
		}
	}

	return "", lastErr
}

// isCircuitOpen is the lock-free fast-path check. Staleness delays an
// open/close transition by at most one concurrent call.
func (inv *Invoker) isCircuitOpen() bool {
	openUntil := inv.openUntil.Load()
	if openUntil == 0 {
		return false
	}
	if inv.now().UnixNano() < openUntil {
		return true
	}

	inv.mu.Lock()
	if until := inv.openUntil.Load(); until != 0 && inv.now().UnixNano() >= until {
		inv.logger.Info("circuit breaker closed after cooldown")
		inv.openUntil.Store(0)
	}
	inv.mu.Unlock()
	return false
}

func (inv *Invoker) onSuccess() {
	inv.mu.Lock()
	inv.consecutiveFailures = 0
	inv.mu.Unlock()
}

func (inv *Invoker) onFailure() {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.consecutiveFailures++
	if inv.consecutiveFailures >= inv.circuitThreshold {
		inv.openUntil.Store(inv.now().Add(inv.openDuration).UnixNano())
		inv.logger.Error("circuit breaker opened",
			"consecutive_failures", inv.consecutiveFailures,
			"open_for", inv.openDuration)
	}
}
