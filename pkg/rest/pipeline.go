package rest

import (
	"context"
	"time"

	"github.com/veiloq/exchange-bridge/pkg/logging"
	"github.com/veiloq/exchange-bridge/pkg/ratelimit"
)

// maxNonceRetries bounds the corrective retries after replay/nonce
// rejections; clock skew is corrected within a few bumps or not at all.
const maxNonceRetries = 10

// NonceRetrier corrects the connection's nonce state after the exchange
// rejects a request as a replay. Bump returns false when the offset can grow
// no further, at which point the pipeline gives up.
type NonceRetrier interface {
	Bump() bool
}

// Pipeline funnels every outbound REST call through per-category admission
// control and the retry policy for transient failures. One pipeline exists
// per connection and is torn down with it.
type Pipeline struct {
	buckets  *ratelimit.Registry
	notifier *Notifier
	nonce    NonceRetrier
	log      logging.Logger

	// sleep is replaceable in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPipeline creates a pipeline. nonce may be nil for exchanges without
// nonce-signed requests.
func NewPipeline(buckets *ratelimit.Registry, notifier *Notifier, nonce NonceRetrier, log logging.Logger) *Pipeline {
	if log == nil {
		log = logging.NewLogger()
	}
	return &Pipeline{
		buckets:  buckets,
		notifier: notifier,
		nonce:    nonce,
		log:      log,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute runs fn once the category's bucket admits it, applying the retry
// policy:
//
//   - 429 with a Retry-After hint: exactly one retry after the hinted delay;
//     429 without a hint, or a second 429, is terminal.
//   - nonce-too-small: the nonce offset is bumped and the call retried
//     immediately, at most maxNonceRetries times.
//   - cancellation: returned as the context's error with nothing notified;
//     callers treat it as silence, not failure.
//   - anything else: the flattened cause is pushed through the throttled
//     notifier and the error returned.
//
// Typed results are captured by the fn closure, matching how the retry
// helpers elsewhere in this module are used.
func (p *Pipeline) Execute(ctx context.Context, category ratelimit.Category, fn func(context.Context) error) error {
	retried429 := false
	nonceTries := 0

	for {
		if err := p.buckets.Wait(ctx, category); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			// cancellation is not a failure; nothing is notified
			return ctx.Err()
		}

		if reqErr, ok := asRequestError(err); ok {
			if reqErr.RateLimited() {
				if reqErr.RetryAfter > 0 && !retried429 {
					retried429 = true
					p.log.Warn("rate limited, retrying once",
						logging.String("category", string(category)),
						logging.Duration("retry_after", reqErr.RetryAfter),
					)
					if serr := p.sleep(ctx, reqErr.RetryAfter); serr != nil {
						return serr
					}
					continue
				}
				p.notify(err)
				return err
			}

			if reqErr.NonceTooSmall && p.nonce != nil {
				nonceTries++
				if nonceTries <= maxNonceRetries && p.nonce.Bump() {
					p.log.Debug("nonce rejected, retrying with bumped offset",
						logging.Int("attempt", nonceTries),
					)
					continue
				}
				p.log.Error("nonce retries exhausted",
					logging.String("category", string(category)),
					logging.Error(err),
				)
				return err
			}
		}

		p.notify(err)
		return err
	}
}

func (p *Pipeline) notify(err error) {
	if p.notifier != nil {
		p.notifier.Notify(Cause(err))
	}
}
