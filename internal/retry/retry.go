// Package retry runs fallible operations under a bounded attempt budget with
// a context-aware backoff wait between attempts.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/danmuck/minechat/internal/logging"
)

const (
	DefaultMaxAttempts = 3
	DefaultDelay       = 5 * time.Second
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy bounds retries. Multiplier 1 gives a fixed delay between attempts.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Sleep       SleepFunc
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultDelay,
		Multiplier:  1.0,
	}
}

func (p Policy) WithDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 1.0
	}
	if p.Sleep == nil {
		p.Sleep = TimerSleep
	}
	return p
}

// ExhaustedError is returned once every attempt failed with a retryable
// error. It unwraps to the last error seen.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do invokes op until it succeeds, fails with an error retryable rejects, or
// MaxAttempts is spent.
func Do[T any](
	ctx context.Context,
	p Policy,
	retryable func(error) bool,
	op func(context.Context) (T, error),
) (T, error) {
	p = p.WithDefaults()
	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if retryable == nil || !retryable(err) {
			return zero, err
		}
		lastErr = err
		if attempt == p.MaxAttempts {
			break
		}
		delay := NextDelay(p, attempt)
		logging.Warnf("retry.Do attempt=%d/%d delay=%s err=%v", attempt, p.MaxAttempts, delay, err)
		if err := p.Sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
	logging.Errf("retry.Do exhausted attempts=%d err=%v", p.MaxAttempts, lastErr)
	return zero, &ExhaustedError{Attempts: p.MaxAttempts, Err: lastErr}
}

// NextDelay returns the wait after attempt N (1-based).
func NextDelay(p Policy, attempt int) time.Duration {
	if attempt <= 1 || p.Delay <= 0 {
		return p.Delay
	}
	multiplier := p.Multiplier
	if multiplier < 1.0 {
		multiplier = 1.0
	}
	delay := float64(p.Delay) * math.Pow(multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

func TimerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
