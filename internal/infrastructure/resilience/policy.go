package resilience

import (
	"math"
	"time"
)

// RetryPolicy describes exponential backoff between attempts of one call.
type RetryPolicy struct {
	Attempts   int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter is the share of each delay drawn at random, within [0,1].
	Jitter float64
}

// delay is the wait before attempt+1. rnd returns a value in [0,1).
func (p RetryPolicy) delay(attempt int, rnd func() float64) time.Duration {
	d := float64(p.Initial) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.Max) {
		d = float64(p.Max)
	}
	if p.Jitter > 0 && rnd != nil {
		d -= d * p.Jitter * rnd()
	}
	return time.Duration(d)
}

// BreakerPolicy configures the per-operation circuit breaker.
type BreakerPolicy struct {
	Enabled       bool
	MinRequests   uint32
	FailureRatio  float64
	OpenTimeout   time.Duration
	HalfOpenCalls uint32
}

type Config struct {
	Retry   RetryPolicy
	Breaker BreakerPolicy

	// AttemptTimeout bounds a single call to the collaborator. Zero disables it.
	AttemptTimeout time.Duration

	// RateLimit is calls per second shared by all operations. Zero disables it.
	RateLimit float64
	RateBurst int
}

// DefaultConfig suits a local model server: a few quick retries and a
// breaker that opens once half of at least ten calls fail.
func DefaultConfig() Config {
	return Config{
		Retry: RetryPolicy{
			Attempts:   3,
			Initial:    100 * time.Millisecond,
			Max:        2 * time.Second,
			Multiplier: 2,
			Jitter:     0.2,
		},
		Breaker: BreakerPolicy{
			Enabled:       true,
			MinRequests:   10,
			FailureRatio:  0.5,
			OpenTimeout:   30 * time.Second,
			HalfOpenCalls: 2,
		},
		AttemptTimeout: 2 * time.Minute,
	}
}

// withDefaults fills zero or out-of-range fields from DefaultConfig. Breaker
// enablement and jitter are taken as given.
func (c Config) withDefaults() Config {
	def := DefaultConfig()

	r := &c.Retry
	if r.Attempts <= 0 {
		r.Attempts = def.Retry.Attempts
	}
	if r.Initial <= 0 {
		r.Initial = def.Retry.Initial
	}
	if r.Max < r.Initial {
		r.Max = max(r.Initial, min(def.Retry.Max, r.Initial*8))
	}
	if r.Multiplier < 1 {
		r.Multiplier = def.Retry.Multiplier
	}
	r.Jitter = min(max(r.Jitter, 0), 1)

	b := &c.Breaker
	if b.MinRequests == 0 {
		b.MinRequests = def.Breaker.MinRequests
	}
	if b.FailureRatio <= 0 || b.FailureRatio > 1 {
		b.FailureRatio = def.Breaker.FailureRatio
	}
	if b.OpenTimeout <= 0 {
		b.OpenTimeout = def.Breaker.OpenTimeout
	}
	if b.HalfOpenCalls == 0 {
		b.HalfOpenCalls = def.Breaker.HalfOpenCalls
	}

	c.AttemptTimeout = max(c.AttemptTimeout, 0)
	c.RateLimit = max(c.RateLimit, 0)
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	return c
}
