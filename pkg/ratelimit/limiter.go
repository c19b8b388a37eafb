// Package ratelimit controls the pace of outbound requests to the exchange.
//
// Two mechanisms live here:
//
//   - RateLimiter, a token-bucket limiter (backed by go.uber.org/ratelimit)
//     used for coarse client-wide pacing where smoothing is enough.
//
//   - Registry/WindowBucket, per-endpoint-category sliding-window admission
//     matching how exchanges document their limits ("N requests per rolling
//     window"). A bucket never admits more than its documented count inside
//     any window, which a token bucket cannot guarantee under bursts.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/ratelimit"
)

// Rate specifies a number of operations allowed within a time interval.
type Rate struct {
	// Limit is the maximum number of operations allowed within Interval.
	Limit int

	// Interval is the time window over which Limit applies.
	Interval time.Duration
}

// RateLimiter paces operations by forcing callers to wait when necessary.
type RateLimiter interface {
	// Wait blocks until an operation is permitted or the context is cancelled.
	Wait(ctx context.Context) error

	// SetLimit updates the rate limiting configuration.
	SetLimit(limit Rate) error
}

// uberLimiter implements RateLimiter using Uber's token-bucket limiter.
type uberLimiter struct {
	limiter ratelimit.Limiter
	rate    Rate
}

// NewTokenBucketLimiter creates a RateLimiter from the given rate, converted
// to operations per second as the underlying library requires. Rates below
// one per second are rounded up to one; sub-second granularity belongs to
// the sliding-window buckets.
func NewTokenBucketLimiter(rate Rate) RateLimiter {
	return &uberLimiter{
		limiter: ratelimit.New(tokenRPS(rate)),
		rate:    rate,
	}
}

func tokenRPS(rate Rate) int {
	if rate.Limit <= 0 || rate.Interval <= 0 {
		return 1
	}
	rps := int(float64(rate.Limit) / rate.Interval.Seconds())
	if rps < 1 {
		return 1
	}
	return rps
}

func (l *uberLimiter) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limit wait cancelled: %w", ctx.Err())
	default:
		l.limiter.Take()
		return nil
	}
}

func (l *uberLimiter) SetLimit(rate Rate) error {
	if rate.Limit <= 0 || rate.Interval <= 0 {
		return fmt.Errorf("invalid rate limit: %+v", rate)
	}
	l.limiter = ratelimit.New(tokenRPS(rate))
	l.rate = rate
	return nil
}
