// Package subscription tracks wanted market-data channels per instrument and
// emits the minimal set of subscribe/unsubscribe wire messages.
package subscription

import (
	"sync"

	"github.com/veiloq/exchange-bridge/pkg/logging"
)

// DataKind names a market-data channel family on one instrument.
type DataKind string

const (
	KindQuote  DataKind = "quote"
	KindLevel2 DataKind = "level2"
	KindTrade  DataKind = "trade"
	KindMark   DataKind = "mark"
)

// ChannelOp is one wire-level subscribe or unsubscribe.
type ChannelOp struct {
	Subscribe  bool
	Instrument string
	Kind       DataKind
}

// Sender transmits a batch of channel operations to the exchange. One call
// per multiplexer operation, regardless of how many channels changed.
type Sender interface {
	SendChannelOps(ops []ChannelOp) error
}

type record struct {
	counts map[DataKind]int
}

// Mux reference-counts channel subscriptions. Overlapping logical
// subscribers share one wire channel: the subscribe message goes out when
// the count rises from zero and the unsubscribe when it returns to zero.
//
// The quote channel doubles as the base channel: exchanges deliver no other
// data for an instrument without its ticker stream, so the mux holds the
// quote channel open while any other kind is active on the instrument.
// Index instruments carry only the quote channel.
type Mux struct {
	mu      sync.Mutex
	sender  Sender
	log     logging.Logger
	isIndex func(instrument string) bool
	subs    map[string]*record
}

// NewMux creates a multiplexer. isIndex reports whether the instrument is an
// index/derived symbol with no order book; nil means no instrument is.
func NewMux(sender Sender, isIndex func(string) bool, log logging.Logger) *Mux {
	if isIndex == nil {
		isIndex = func(string) bool { return false }
	}
	if log == nil {
		log = logging.NewLogger()
	}
	return &Mux{
		sender:  sender,
		log:     log,
		isIndex: isIndex,
		subs:    make(map[string]*record),
	}
}

// wireSet is the set of channels that should be open on the wire for the
// given refcounts.
func (m *Mux) wireSet(instrument string, rec *record) map[DataKind]bool {
	set := make(map[DataKind]bool)
	if rec == nil {
		return set
	}

	any := false
	for kind, n := range rec.counts {
		if n > 0 {
			set[kind] = true
			any = true
		}
	}
	if any {
		// base channel rule
		set[KindQuote] = true
	}
	return set
}

// Subscribe adds one logical subscriber for (instrument, kind).
func (m *Mux) Subscribe(instrument string, kind DataKind) error {
	return m.change(instrument, kind, +1)
}

// Unsubscribe releases one logical subscriber for (instrument, kind).
// Releasing a channel that is not active is a no-op.
func (m *Mux) Unsubscribe(instrument string, kind DataKind) error {
	return m.change(instrument, kind, -1)
}

func (m *Mux) change(instrument string, kind DataKind, delta int) error {
	m.mu.Lock()

	if m.isIndex(instrument) {
		kind = KindQuote
	}

	rec := m.subs[instrument]
	if rec == nil {
		if delta < 0 {
			m.mu.Unlock()
			return nil
		}
		rec = &record{counts: make(map[DataKind]int)}
		m.subs[instrument] = rec
	}

	before := m.wireSet(instrument, rec)

	next := rec.counts[kind] + delta
	if next < 0 {
		// refcount never goes negative
		next = 0
	}
	if next == 0 {
		delete(rec.counts, kind)
	} else {
		rec.counts[kind] = next
	}

	after := m.wireSet(instrument, rec)
	if len(rec.counts) == 0 {
		delete(m.subs, instrument)
	}

	ops := diffOps(instrument, before, after)
	m.mu.Unlock()

	if len(ops) == 0 {
		return nil
	}
	return m.sender.SendChannelOps(ops)
}

func diffOps(instrument string, before, after map[DataKind]bool) []ChannelOp {
	var ops []ChannelOp
	for _, kind := range []DataKind{KindQuote, KindLevel2, KindTrade, KindMark} {
		switch {
		case after[kind] && !before[kind]:
			ops = append(ops, ChannelOp{Subscribe: true, Instrument: instrument, Kind: kind})
		case before[kind] && !after[kind]:
			ops = append(ops, ChannelOp{Subscribe: false, Instrument: instrument, Kind: kind})
		}
	}
	return ops
}

// Active reports whether the wire channel for (instrument, kind) is open.
func (m *Mux) Active(instrument string, kind DataKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wireSet(instrument, m.subs[instrument])[kind]
}

// Count returns the reference count for (instrument, kind). The implicit
// base quote channel has count zero while held only on behalf of others.
func (m *Mux) Count(instrument string, kind DataKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.subs[instrument]
	if rec == nil {
		return 0
	}
	return rec.counts[kind]
}

// Resubscribe re-emits subscribe ops for every open wire channel, used after
// a socket reconnect. Reference counts are untouched.
func (m *Mux) Resubscribe() error {
	m.mu.Lock()
	var ops []ChannelOp
	for instrument, rec := range m.subs {
		for kind := range m.wireSet(instrument, rec) {
			ops = append(ops, ChannelOp{Subscribe: true, Instrument: instrument, Kind: kind})
		}
	}
	m.mu.Unlock()

	if len(ops) == 0 {
		return nil
	}
	return m.sender.SendChannelOps(ops)
}

// Reset drops all subscriptions without emitting wire messages, used at
// disconnect when the socket is already gone.
func (m *Mux) Reset() {
	m.mu.Lock()
	m.subs = make(map[string]*record)
	m.mu.Unlock()
}
