package resilience

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"meetassist-backend/pkg/logger"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState string

const (
	CircuitBreakerClosed   CircuitBreakerState = "closed"
	CircuitBreakerHalfOpen CircuitBreakerState = "half_open"
	CircuitBreakerOpen     CircuitBreakerState = "open"
)

// Upstream wraps calls to an external dependency (generative provider,
// transcript store) with retry, timeout and a circuit breaker.
type Upstream struct {
	name string

	mu                  sync.RWMutex
	state               CircuitBreakerState
	consecutiveFailures int
	lastFailureTime     time.Time

	// Options
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
	callTimeout     time.Duration
	openThreshold   int
	cooldown        time.Duration
}

// NewUpstream creates a resilience wrapper for a named external dependency
func NewUpstream(name string) *Upstream {
	return &Upstream{
		name:            name,
		state:           CircuitBreakerClosed,
		maxAttempts:     3,
		initialInterval: 200 * time.Millisecond,
		maxInterval:     5 * time.Second,
		callTimeout:     30 * time.Second,
		openThreshold:   3,
		cooldown:        10 * time.Second,
	}
}

// Execute runs fn with retry, per-call timeout and circuit breaking.
// Permanent errors (wrapped via Permanent) are returned without retry.
func (u *Upstream) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= u.maxAttempts; attempt++ {
		if err := u.allow(); err != nil {
			return err
		}

		if attempt > 1 {
			logger.Warn("upstream retry",
				zap.String("upstream", u.name),
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
		}

		callCtx, cancel := context.WithTimeout(ctx, u.callTimeout)
		err := fn(callCtx)
		cancel()

		if err == nil {
			u.recordSuccess()
			return nil
		}

		lastErr = err
		u.recordFailure()

		if isPermanent(err) {
			return err
		}

		backoff := u.initialInterval * time.Duration(1<<(attempt-1))
		if backoff > u.maxInterval {
			backoff = u.maxInterval
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s %s aborted: %w", u.name, operation, ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%s %s failed after %d attempts: %w", u.name, operation, u.maxAttempts, lastErr)
}

// allow checks the breaker before a call, moving open -> half-open after the
// cooldown has passed.
func (u *Upstream) allow() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state == CircuitBreakerOpen {
		if time.Since(u.lastFailureTime) > u.cooldown {
			u.state = CircuitBreakerHalfOpen
			logger.Warn("circuit breaker half-open", zap.String("upstream", u.name))
		} else {
			return fmt.Errorf("%s temporarily unavailable (circuit breaker open)", u.name)
		}
	}
	return nil
}

func (u *Upstream) recordSuccess() {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state != CircuitBreakerClosed {
		logger.Info("circuit breaker closed", zap.String("upstream", u.name))
	}
	u.state = CircuitBreakerClosed
	u.consecutiveFailures = 0
}

func (u *Upstream) recordFailure() {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.consecutiveFailures++
	u.lastFailureTime = time.Now()

	if u.consecutiveFailures >= u.openThreshold {
		if u.state != CircuitBreakerOpen {
			logger.Error("circuit breaker open",
				zap.String("upstream", u.name),
				zap.Int("consecutive_failures", u.consecutiveFailures),
			)
		}
		u.state = CircuitBreakerOpen
	}
}

// permanentError marks an error as not worth retrying
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps an error so Execute fails fast instead of retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	for err != nil {
		if _, ok := err.(*permanentError); ok {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// ClassifyError buckets an error for metrics labels
func ClassifyError(err error) string {
	if err == nil {
		return "none"
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "network unreachable"):
		return "network"
	case strings.Contains(errMsg, "not found"):
		return "not_found"
	case strings.Contains(errMsg, "circuit breaker"):
		return "circuit_open"
	default:
		return "other"
	}
}
