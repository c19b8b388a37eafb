// Package market infers trade aggressor sides from observed quotes.
//
// Some exchanges omit the taker side on public trade messages. The tracker
// keeps only the latest bid/ask per instrument and classifies each trade
// against it, falling back to midpoint distance and finally to the previous
// trade's classification.
package market

import (
	"sync"

	"github.com/veiloq/exchange-bridge/pkg/platform"
)

type lastQuote struct {
	bid, ask float64
	valid    bool
	lastSide platform.Side
}

// AggressorTracker classifies trades per instrument. Memory is bounded: one
// quote and one prior classification per instrument, no history window.
type AggressorTracker struct {
	mu     sync.Mutex
	quotes map[string]*lastQuote
}

// NewAggressorTracker creates an empty tracker.
func NewAggressorTracker() *AggressorTracker {
	return &AggressorTracker{
		quotes: make(map[string]*lastQuote),
	}
}

// CollectBidAsk records the most recent best bid/ask for the instrument.
func (t *AggressorTracker) CollectBidAsk(instrument string, bid, ask float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, ok := t.quotes[instrument]
	if !ok {
		q = &lastQuote{}
		t.quotes[instrument] = q
	}
	q.bid = bid
	q.ask = ask
	q.valid = true
}

// Aggressor classifies a trade price against the latest quote:
// at or above the ask it is a buy, at or below the bid a sell, otherwise the
// side whose quote is closer wins. An exact midpoint tie reuses the previous
// trade's classification when one exists.
func (t *AggressorTracker) Aggressor(instrument string, price float64) platform.Side {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, ok := t.quotes[instrument]
	if !ok || !q.valid {
		return platform.SideUnknown
	}

	side := classify(price, q.bid, q.ask, q.lastSide)
	if side != platform.SideUnknown {
		q.lastSide = side
	}
	return side
}

func classify(price, bid, ask float64, prev platform.Side) platform.Side {
	switch {
	case price >= ask:
		return platform.SideBuy
	case price <= bid:
		return platform.SideSell
	}

	mid := (bid + ask) / 2
	switch {
	case price > mid:
		return platform.SideBuy
	case price < mid:
		return platform.SideSell
	}

	// exact midpoint
	return prev
}

// Forget drops the instrument's quote, used when the quote channel closes.
func (t *AggressorTracker) Forget(instrument string) {
	t.mu.Lock()
	delete(t.quotes, instrument)
	t.mu.Unlock()
}
