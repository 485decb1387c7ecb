package readiness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrNotReady is returned when a dependency never became ready within the
// allowed attempts or time.
var ErrNotReady = errors.New("dependency not ready")

// Gate polls a readiness check with a bounded number of attempts and an
// overall timeout.
type Gate struct {
	Name        string
	Interval    time.Duration
	MaxInterval time.Duration
	MaxAttempts int
	Timeout     time.Duration
}

// DefaultGate polls every 100ms, backing off to 2s, for at most 50 attempts or 30s.
func DefaultGate(name string) Gate {
	return Gate{
		Name:        name,
		Interval:    100 * time.Millisecond,
		MaxInterval: 2 * time.Second,
		MaxAttempts: 50,
		Timeout:     30 * time.Second,
	}
}

// Wait blocks until check returns nil. It fails with an error wrapping
// ErrNotReady (and the last check error) once attempts or time run out.
func (g Gate) Wait(ctx context.Context, check func(context.Context) error) error {
	if g.MaxAttempts < 1 {
		g.MaxAttempts = 1
	}
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = g.Interval
	eb.MaxInterval = g.MaxInterval
	if eb.MaxInterval < eb.InitialInterval {
		eb.MaxInterval = eb.InitialInterval
	}
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0 // bounded by attempts and ctx instead

	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(g.MaxAttempts-1)), ctx)

	attempts := 0
	var lastErr error
	err := backoff.Retry(func() error {
		attempts++
		lastErr = check(ctx)
		return lastErr
	}, policy)
	if err == nil {
		return nil
	}
	if lastErr == nil {
		lastErr = err
	}
	return fmt.Errorf("%w: %s after %d attempt(s): %w", ErrNotReady, g.Name, attempts, lastErr)
}
