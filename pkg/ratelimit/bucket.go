package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Category identifies a REST endpoint family sharing one documented limit,
// e.g. "get-orders", "place-order", "set-leverage".
type Category string

// WindowBucket admits requests under a sliding-window limit. It keeps the
// timestamps of admitted requests inside the current window; a request is
// admitted only when fewer than Rate.Limit admissions fall inside the window
// ending now. Admission is recorded regardless of whether the request later
// succeeds, since the exchange counts failed calls too.
type WindowBucket struct {
	mu     sync.Mutex
	rate   Rate
	stamps []time.Time

	// now is replaceable in tests
	now func() time.Time
}

// NewWindowBucket creates a bucket for the given documented rate.
func NewWindowBucket(rate Rate) *WindowBucket {
	return &WindowBucket{
		rate: rate,
		now:  time.Now,
	}
}

// tryAdmit records an admission if the window has capacity, otherwise
// returns the duration until the oldest in-window admission expires.
func (b *WindowBucket) tryAdmit() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	cutoff := now.Add(-b.rate.Interval)

	// Drop stamps that slid out of the window.
	kept := b.stamps[:0]
	for _, ts := range b.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.stamps = kept

	if len(b.stamps) < b.rate.Limit {
		b.stamps = append(b.stamps, now)
		return true, 0
	}

	return false, b.stamps[0].Add(b.rate.Interval).Sub(now)
}

// Wait blocks until the window has capacity or the context is cancelled.
// The wait is cooperative: the caller parks on a timer sized to the oldest
// in-window admission rather than polling.
func (b *WindowBucket) Wait(ctx context.Context) error {
	for {
		ok, wait := b.tryAdmit()
		if ok {
			return nil
		}
		if wait <= 0 {
			wait = time.Millisecond
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// InFlight reports how many admissions currently fall inside the window.
func (b *WindowBucket) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-b.rate.Interval)
	n := 0
	for _, ts := range b.stamps {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

// Registry holds the window buckets for one connection, keyed by endpoint
// category. It is constructed per connection and torn down with it; nothing
// here is process-global.
type Registry struct {
	mu      sync.RWMutex
	buckets map[Category]*WindowBucket
}

// NewRegistry creates an empty bucket registry.
func NewRegistry() *Registry {
	return &Registry{
		buckets: make(map[Category]*WindowBucket),
	}
}

// Configure installs or replaces the bucket for a category.
func (r *Registry) Configure(category Category, rate Rate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets[category] = NewWindowBucket(rate)
}

// Wait blocks until the category's bucket admits the request. Categories
// without a configured bucket are admitted immediately; exchanges do not
// document limits for every endpoint.
func (r *Registry) Wait(ctx context.Context, category Category) error {
	r.mu.RLock()
	bucket, ok := r.buckets[category]
	r.mu.RUnlock()

	if !ok {
		return ctx.Err()
	}
	return bucket.Wait(ctx)
}
