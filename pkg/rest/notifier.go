package rest

import (
	"sync"
	"time"

	"github.com/veiloq/exchange-bridge/pkg/logging"
	"github.com/veiloq/exchange-bridge/pkg/platform"
)

// Notifier pushes user-visible "refused" tickets onto the platform bus,
// throttled so a storm of failures during an outage does not flood the UI.
// Suppressed notices are still logged.
type Notifier struct {
	bus   platform.Bus
	quiet time.Duration
	log   logging.Logger

	mu       sync.Mutex
	lastSent time.Time
	now      func() time.Time
}

// NewNotifier creates a notifier that emits at most one ticket per quiet
// period. A nil bus disables tickets entirely (market-data-only mode).
func NewNotifier(bus platform.Bus, quiet time.Duration, log logging.Logger) *Notifier {
	if log == nil {
		log = logging.NewLogger()
	}
	return &Notifier{
		bus:   bus,
		quiet: quiet,
		log:   log,
		now:   time.Now,
	}
}

// Notify surfaces the text as a deal ticket unless one was already sent
// inside the quiet period.
func (n *Notifier) Notify(text string) {
	n.log.Warn("request refused", logging.String("reason", text))

	if n.bus == nil {
		return
	}

	n.mu.Lock()
	now := n.now()
	throttled := !n.lastSent.IsZero() && now.Sub(n.lastSent) < n.quiet
	if !throttled {
		n.lastSent = now
	}
	n.mu.Unlock()

	if throttled {
		return
	}
	n.bus.Push(platform.DealTicket{Text: text, Time: now})
}
