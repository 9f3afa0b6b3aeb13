// Package resilience wraps calls to remote collaborators (embedding and
// generation backends, the job queue) with retry, rate limiting and a
// per-operation circuit breaker. The retrieval core never goes through it.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Executor is safe for concurrent use. Breakers are created lazily, one per
// operation name, so a failing embed endpoint does not trip generation.
type Executor struct {
	cfg     Config
	logger  *slog.Logger
	limiter *rate.Limiter
	jitter  func() float64

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config) *Executor {
	return NewExecutorWithLogger(cfg, nil)
}

func NewExecutorWithLogger(cfg Config, logger *slog.Logger) *Executor {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		cfg:      cfg,
		logger:   logger,
		jitter:   rand.Float64,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
	if cfg.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	return e
}

// Do runs fn through e when one is configured and calls it directly otherwise.
func Do(ctx context.Context, e *Executor, operation string, fn func(context.Context) error, classify ErrorClassifier) error {
	if e == nil {
		return fn(ctx)
	}
	return e.Execute(ctx, operation, fn, classify)
}

// Execute retries fn while classify reports the error as retryable. With the
// breaker enabled the whole retry sequence counts as one breaker call. A nil
// classify means Classify.
func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classify ErrorClassifier) error {
	if fn == nil {
		return errors.New("resilience: nil operation")
	}
	if classify == nil {
		classify = Classify
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}

	run := func() error { return e.retry(ctx, op, fn, classify) }
	if !e.cfg.Breaker.Enabled {
		return run()
	}
	_, err := e.breaker(op, classify).Execute(func() (struct{}, error) {
		return struct{}{}, run()
	})
	return err
}

func (e *Executor) retry(ctx context.Context, op string, fn func(context.Context) error, classify ErrorClassifier) error {
	policy := e.cfg.Retry
	for attempt := 1; ; attempt++ {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("%s: rate limit wait: %w", op, err)
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		err := e.once(ctx, fn)
		if err == nil || attempt >= policy.Attempts || !classify(err).Retryable {
			return err
		}

		wait := policy.delay(attempt, e.jitter)
		e.logger.Warn("retry_attempt",
			"operation", op,
			"attempt", attempt,
			"max_attempts", policy.Attempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err,
		)
		if !sleep(ctx, wait) {
			return err
		}
	}
}

func (e *Executor) once(ctx context.Context, fn func(context.Context) error) error {
	if e.cfg.AttemptTimeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
	defer cancel()
	return fn(callCtx)
}

func (e *Executor) breaker(op string, classify ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[op]; ok {
		return cb
	}

	policy := e.cfg.Breaker
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        op,
		MaxRequests: policy.HalfOpenCalls,
		Timeout:     policy.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= policy.MinRequests &&
				float64(counts.TotalFailures) >= policy.FailureRatio*float64(counts.Requests)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classify(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[op] = cb
	return cb
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
