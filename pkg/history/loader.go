// Package history drives paginated REST history loads over a bounded time
// range. Exchanges expose newest-first pages behind an "until" cursor, so the
// loader walks the range backwards, stacks the pages, and re-emits them
// oldest first once the range is exhausted.
package history

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/veiloq/exchange-bridge/pkg/logging"
)

// FetchFunc returns one page of items inside [from, to), newest first, at
// most limit items. The loader owns cursor movement; implementations only
// translate the window into the exchange's query parameters.
type FetchFunc[T any] func(ctx context.Context, from, to time.Time, limit int) ([]T, error)

// Loader pages through a time range. The zero value is not usable; construct
// with NewLoader.
type Loader[T any] struct {
	pageLimit int
	tick      time.Duration
	timeOf    func(T) time.Time
	withTime  func(T, time.Time) T
	pace      *rate.Limiter
	log       logging.Logger

	// stale-page guard, same convention as a dead-loop counter: if the
	// exchange keeps returning pages that make no backwards progress the
	// load aborts instead of spinning.
	maxStalePages int
}

// Options configures a Loader.
type Options struct {
	// PageLimit is the exchange-documented maximum page size. A page smaller
	// than this signals exhaustion.
	PageLimit int

	// Tick is the smallest representable time step for the exchange's
	// timestamps; the cursor steps back by one tick per page and timestamp
	// collisions are bumped forward by one tick.
	Tick time.Duration

	// PageRate paces requests between pages. Zero value disables pacing.
	PageRate rate.Limit
	Burst    int

	Logger logging.Logger
}

// NewLoader creates a loader. timeOf extracts an item's timestamp, withTime
// returns a copy of the item with its timestamp replaced (used for collision
// bumping).
func NewLoader[T any](opts Options, timeOf func(T) time.Time, withTime func(T, time.Time) T) *Loader[T] {
	if opts.PageLimit <= 0 {
		opts.PageLimit = 1000
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger()
	}

	var pace *rate.Limiter
	if opts.PageRate > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		pace = rate.NewLimiter(opts.PageRate, burst)
	}

	return &Loader[T]{
		pageLimit:     opts.PageLimit,
		tick:          opts.Tick,
		timeOf:        timeOf,
		withTime:      withTime,
		pace:          pace,
		log:           opts.Logger,
		maxStalePages: 10,
	}
}

// LoadRange collects every item inside [from, to) and returns them oldest
// first with strictly increasing timestamps. Cancellation between pages is
// not an error: whatever was gathered so far is emitted.
func (l *Loader[T]) LoadRange(ctx context.Context, from, to time.Time, fetch FetchFunc[T]) ([]T, error) {
	var pages [][]T
	stale := 0
	cursor := to

	for from.Before(cursor) {
		if ctx.Err() != nil {
			return l.emit(pages, from, to), nil
		}
		if l.pace != nil {
			if err := l.pace.Wait(ctx); err != nil {
				return l.emit(pages, from, to), nil
			}
		}

		page, err := fetch(ctx, from, cursor, l.pageLimit)
		if err != nil {
			if ctx.Err() != nil {
				return l.emit(pages, from, to), nil
			}
			return l.emit(pages, from, to), fmt.Errorf("history page [%s, %s): %w",
				from.Format(time.RFC3339), cursor.Format(time.RFC3339), err)
		}
		if len(page) == 0 {
			break
		}

		oldest := l.timeOf(page[len(page)-1])
		next := oldest.Add(-l.tick)
		if !next.Before(cursor) {
			// page made no backwards progress; the fetch ignored the window
			stale++
			if stale >= l.maxStalePages {
				return l.emit(pages, from, to), fmt.Errorf("history load stalled at %s after %d overlapping pages",
					cursor.Format(time.RFC3339), stale)
			}
			continue
		}
		stale = 0

		pages = append(pages, page)
		l.log.Debug("history page loaded",
			logging.Int("items", len(page)),
			logging.Time("oldest", oldest),
		)

		cursor = next
		if len(page) < l.pageLimit {
			// short page: nothing older remains
			break
		}
	}

	return l.emit(pages, from, to), nil
}

// emit pops pages off the stack (oldest range last pushed), reverses each to
// ascending order, filters to [from, to), and bumps timestamp collisions
// forward by one tick so the result is strictly increasing.
func (l *Loader[T]) emit(pages [][]T, from, to time.Time) []T {
	var out []T
	var lastAssigned time.Time
	haveLast := false

	for i := len(pages) - 1; i >= 0; i-- {
		page := pages[i]
		for j := len(page) - 1; j >= 0; j-- {
			item := page[j]
			ts := l.timeOf(item)
			if ts.Before(from) || !ts.Before(to) {
				continue
			}
			if haveLast && !ts.After(lastAssigned) {
				ts = lastAssigned.Add(l.tick)
				if !ts.Before(to) {
					// the bump may not push an item outside [from, to)
					continue
				}
				item = l.withTime(item, ts)
			}
			lastAssigned = ts
			haveLast = true
			out = append(out, item)
		}
	}
	return out
}
