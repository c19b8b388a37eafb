// Package symbols holds the exchange's tradable-instrument catalog.
package symbols

import (
	"sync"
	"time"
)

// Kind classifies an instrument.
type Kind int

const (
	KindSpot Kind = iota
	KindDerivative
	KindIndex
	KindOption
)

func (k Kind) String() string {
	switch k {
	case KindSpot:
		return "spot"
	case KindDerivative:
		return "derivative"
	case KindIndex:
		return "index"
	case KindOption:
		return "option"
	default:
		return "unknown"
	}
}

// Instrument is one tradable unit. The identity fields are immutable after
// load; Meta is refreshed periodically while connected.
type Instrument struct {
	ID       string
	Name     string
	TickSize float64
	LotSize  float64
	Margin   bool
	Kind     Kind

	Meta Metadata
}

// Metadata carries the mutable per-instrument fields refreshed in the
// background (funding, leverage limits).
type Metadata struct {
	FundingRate float64
	MaxLeverage float64
	UpdatedAt   time.Time
}

// IsIndex reports whether the instrument has no direct order book.
func (i Instrument) IsIndex() bool {
	return i.Kind == KindIndex
}

// Cache is the instrument catalog for one connection. Instruments are looked
// up by exchange-native id, never held by reference across calls.
type Cache struct {
	mu          sync.RWMutex
	instruments map[string]Instrument
}

// NewCache creates an empty instrument cache.
func NewCache() *Cache {
	return &Cache{
		instruments: make(map[string]Instrument),
	}
}

// Replace swaps the whole catalog, used at connect time.
func (c *Cache) Replace(instruments []Instrument) {
	next := make(map[string]Instrument, len(instruments))
	for _, ins := range instruments {
		next[ins.ID] = ins
	}

	c.mu.Lock()
	c.instruments = next
	c.mu.Unlock()
}

// Get looks up an instrument by id.
func (c *Cache) Get(id string) (Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ins, ok := c.instruments[id]
	return ins, ok
}

// All returns a copy of the catalog.
func (c *Cache) All() []Instrument {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Instrument, 0, len(c.instruments))
	for _, ins := range c.instruments {
		out = append(out, ins)
	}
	return out
}

// Len reports the catalog size.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.instruments)
}

// UpdateMeta applies fn to the instrument's metadata under the cache lock.
// Unknown ids are ignored; the periodic refresh may race a catalog reload.
func (c *Cache) UpdateMeta(id string, fn func(*Metadata)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ins, ok := c.instruments[id]
	if !ok {
		return
	}
	fn(&ins.Meta)
	c.instruments[id] = ins
}

// Clear drops the catalog, used at disconnect.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.instruments = make(map[string]Instrument)
	c.mu.Unlock()
}
