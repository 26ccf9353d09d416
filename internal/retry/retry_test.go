package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/minechat/internal/testutil/testlog"
)

var errTransient = errors.New("transient")

func isTransient(err error) bool {
	return errors.Is(err, errTransient)
}

type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func TestDoSucceedsOnThirdAttempt(t *testing.T) {
	testlog.Start(t)
	rec := &recordingSleep{}
	p := DefaultPolicy()
	p.Sleep = rec.sleep

	calls := 0
	got, err := Do(context.Background(), p, isTransient, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errTransient
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != "ok" {
		t.Fatalf("unexpected value: %q", got)
	}
	if calls != 3 {
		t.Fatalf("unexpected calls=%d", calls)
	}
	if len(rec.delays) != 2 {
		t.Fatalf("expected 2 delays, got %d", len(rec.delays))
	}
	for i, d := range rec.delays {
		if d != DefaultDelay {
			t.Fatalf("delay[%d]=%v want %v", i, d, DefaultDelay)
		}
	}
}

func TestDoExhaustsAfterMaxAttempts(t *testing.T) {
	testlog.Start(t)
	rec := &recordingSleep{}
	p := DefaultPolicy()
	p.Sleep = rec.sleep

	calls := 0
	_, err := Do(context.Background(), p, isTransient, func(context.Context) (int, error) {
		calls++
		return 0, errTransient
	})
	if calls != DefaultMaxAttempts {
		t.Fatalf("unexpected calls=%d", calls)
	}
	if len(rec.delays) != DefaultMaxAttempts-1 {
		t.Fatalf("unexpected delays=%d", len(rec.delays))
	}
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if exhausted.Attempts != DefaultMaxAttempts {
		t.Fatalf("unexpected attempts=%d", exhausted.Attempts)
	}
	if !errors.Is(err, errTransient) {
		t.Fatalf("expected last error to be wrapped, got %v", err)
	}
}

func TestDoDoesNotRetryOtherErrors(t *testing.T) {
	testlog.Start(t)
	rec := &recordingSleep{}
	p := DefaultPolicy()
	p.Sleep = rec.sleep
	fatal := errors.New("fatal")

	calls := 0
	_, err := Do(context.Background(), p, isTransient, func(context.Context) (int, error) {
		calls++
		return 0, fatal
	})
	if err != fatal {
		t.Fatalf("expected fatal error unwrapped, got %v", err)
	}
	if calls != 1 || len(rec.delays) != 0 {
		t.Fatalf("unexpected calls=%d delays=%d", calls, len(rec.delays))
	}
}

func TestDoAbortsWaitOnCancel(t *testing.T) {
	testlog.Start(t)
	p := Policy{MaxAttempts: 5, Delay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	_, err := Do(ctx, p, isTransient, func(context.Context) (int, error) {
		return 0, errTransient
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("wait was not aborted")
	}
}

func TestNextDelayDeterministic(t *testing.T) {
	testlog.Start(t)
	p := Policy{
		Delay:      250 * time.Millisecond,
		Multiplier: 2.0,
		MaxDelay:   5 * time.Second,
	}
	if got := NextDelay(p, 1); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextDelay(p, 2); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextDelay(p, 3); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextDelay(p, 6); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextDelayFixedByDefault(t *testing.T) {
	testlog.Start(t)
	p := DefaultPolicy()
	for attempt := 1; attempt <= 4; attempt++ {
		if got := NextDelay(p, attempt); got != DefaultDelay {
			t.Fatalf("attempt%d got=%v", attempt, got)
		}
	}
}
