package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func fastRetry(attempts int) Config {
	return Config{
		Retry: RetryPolicy{
			Attempts:   attempts,
			Initial:    time.Millisecond,
			Max:        2 * time.Millisecond,
			Multiplier: 2,
		},
	}
}

func TestExecuteRetriesTransientFailure(t *testing.T) {
	exec := NewExecutor(fastRetry(3))

	attempts := 0
	errBusy := errors.New("busy")
	err := exec.Execute(context.Background(), "embed", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errBusy
		}
		return nil
	}, func(err error) ErrorClassification {
		if errors.Is(err, errBusy) {
			return Transient
		}
		return Permanent
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(fastRetry(3))

	attempts := 0
	errBad := errors.New("bad request")
	err := exec.Execute(context.Background(), "embed", func(context.Context) error {
		attempts++
		return errBad
	}, nil)
	if !errors.Is(err, errBad) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	cfg := fastRetry(1)
	cfg.Breaker = BreakerPolicy{
		Enabled:       true,
		MinRequests:   2,
		FailureRatio:  0.5,
		OpenTimeout:   50 * time.Millisecond,
		HalfOpenCalls: 1,
	}
	exec := NewExecutor(cfg)

	errDown := errors.New("model server down")
	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "embed", func(context.Context) error {
			return errDown
		}, nil)
		if !errors.Is(err, errDown) {
			t.Fatalf("expected failure on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "embed", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}

	// Breakers are per operation.
	if err := exec.Execute(context.Background(), "generate", func(context.Context) error { return nil }, nil); err != nil {
		t.Fatalf("generate should not share the embed breaker: %v", err)
	}
}

func TestExecuteRejectedCallsDoNotTripBreaker(t *testing.T) {
	cfg := fastRetry(1)
	cfg.Breaker = BreakerPolicy{Enabled: true, MinRequests: 1, FailureRatio: 0.1}
	exec := NewExecutor(cfg)

	bad := &StatusError{Code: 400, Body: "invalid model"}
	for i := 0; i < 3; i++ {
		err := exec.Execute(context.Background(), "embed", func(context.Context) error { return bad }, nil)
		if IsCircuitOpen(err) {
			t.Fatalf("client errors must not open the breaker (call %d)", i)
		}
	}
}

func TestExecuteAppliesAttemptTimeout(t *testing.T) {
	cfg := fastRetry(3)
	cfg.AttemptTimeout = 5 * time.Millisecond
	exec := NewExecutor(cfg)

	attempts := 0
	err := exec.Execute(context.Background(), "generate", func(ctx context.Context) error {
		attempts++
		<-ctx.Done()
		return ctx.Err()
	}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("deadline errors are not retried, got %d attempts", attempts)
	}
}

func TestExecuteRateLimitHonorsCancelledContext(t *testing.T) {
	cfg := fastRetry(1)
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1
	exec := NewExecutor(cfg)

	calls := 0
	call := func(context.Context) error {
		calls++
		return nil
	}
	if err := exec.Execute(context.Background(), "embed", call, nil); err != nil {
		t.Fatalf("first call should use the burst token, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := exec.Execute(ctx, "embed", call, nil); err == nil {
		t.Fatalf("expected rate limit wait to fail")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDoWithoutExecutorCallsDirectly(t *testing.T) {
	called := false
	err := Do(context.Background(), nil, "embed", func(context.Context) error {
		called = true
		return nil
	}, nil)
	if err != nil || !called {
		t.Fatalf("expected direct call, err=%v called=%v", err, called)
	}
}

func TestRetryDelay(t *testing.T) {
	p := RetryPolicy{Attempts: 5, Initial: 100 * time.Millisecond, Max: 300 * time.Millisecond, Multiplier: 2}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for i, w := range want {
		if got := p.delay(i+1, nil); got != w {
			t.Fatalf("delay(%d) = %v, want %v", i+1, got, w)
		}
	}

	p.Jitter = 0.5
	if got := p.delay(1, func() float64 { return 1 }); got != 50*time.Millisecond {
		t.Fatalf("full jitter draw should halve the delay, got %v", got)
	}
}

func TestWithDefaultsFillsZeroConfig(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.Retry.Attempts != 3 || cfg.Retry.Initial <= 0 || cfg.Retry.Max < cfg.Retry.Initial || cfg.Retry.Multiplier < 1 {
		t.Fatalf("retry policy not defaulted: %+v", cfg.Retry)
	}
	if cfg.Breaker.Enabled {
		t.Fatalf("breaker enablement must be taken as given")
	}
}
