// Package reconcile maintains the local view of orders, positions and
// balances and keeps it converged with the exchange. REST snapshots replace
// the caches wholesale at connect time; WebSocket deltas upsert or remove
// single entries in steady state. Normalized open/close/execution/history
// messages are pushed to the platform bus as entries transition.
//
// The caches always reflect the last state confirmed by the exchange. A
// locally issued command never updates them speculatively; the update
// arrives with the exchange's own delta.
package reconcile

import (
	"fmt"
	"sync"
	"time"

	"github.com/veiloq/exchange-bridge/pkg/logging"
	"github.com/veiloq/exchange-bridge/pkg/platform"
)

// StatusMapper translates one exchange's status vocabulary into the
// canonical enum. The bool is false for vocabulary the mapper does not know,
// which makes the event undecodable (logged and skipped, never fatal).
type StatusMapper func(raw string) (platform.OrderStatus, bool)

// OrderEvent is one order delta from the trading socket.
type OrderEvent struct {
	// Order carries the order's terms; Status is ignored in favor of
	// RawStatus mapping.
	Order platform.Order

	// RawStatus is the exchange's status word.
	RawStatus string

	// Exec is set when the event represents an execution.
	Exec *platform.Execution

	Time time.Time
}

// AlgoLeg is one leg of a conditional/OCO order.
type AlgoLeg struct {
	Side      platform.Side
	Price     float64
	StopPrice float64
	Quantity  float64
}

// AlgoEvent is a delta for an exchange-side composite order. The host
// platform tracks one leg per order id, so the machine decomposes the
// composite into a take-profit leg and a stop-loss leg sharing a group id.
type AlgoEvent struct {
	AlgoID     string
	Instrument string
	RawStatus  string
	TakeProfit AlgoLeg
	StopLoss   AlgoLeg
	Time       time.Time
}

// Leg id suffixes follow the documented mapping convention for composite
// orders; the platform treats them as opaque order ids.
const (
	takeProfitSuffix = "_tp"
	stopLossSuffix   = "_sl"
)

// Machine is the reconciliation state machine for one connection.
type Machine struct {
	mu sync.Mutex

	orders    map[string]platform.Order
	positions map[string]platform.Position

	// lastBalances is the last balance pushed per asset, used to suppress
	// re-broadcasting identical balances.
	lastBalances map[string]platform.Balance

	bus    platform.Bus
	status StatusMapper
	log    logging.Logger
}

// NewMachine creates a reconciliation machine pushing to bus.
func NewMachine(bus platform.Bus, status StatusMapper, log logging.Logger) *Machine {
	if log == nil {
		log = logging.NewLogger()
	}
	return &Machine{
		orders:       make(map[string]platform.Order),
		positions:    make(map[string]platform.Position),
		lastBalances: make(map[string]platform.Balance),
		bus:          bus,
		status:       status,
		log:          log,
	}
}

// ApplySnapshot replaces the order and position caches with the REST
// snapshot taken at connect time and announces every open entry. No diffing
// happens against the prior cache; it may be stale from a previous session.
func (m *Machine) ApplySnapshot(orders []platform.Order, positions []platform.Position) {
	m.mu.Lock()
	m.orders = make(map[string]platform.Order, len(orders))
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	m.positions = make(map[string]platform.Position, len(positions))
	for _, p := range positions {
		m.positions[p.ID] = p
	}
	m.mu.Unlock()

	for _, o := range orders {
		m.bus.Push(platform.OpenOrder{Order: o})
	}
	for _, p := range positions {
		m.bus.Push(platform.PositionUpdate{Position: p})
	}

	m.log.Info("snapshot applied",
		logging.Int("orders", len(orders)),
		logging.Int("positions", len(positions)),
	)
}

// ApplyOrderEvent processes one order delta. The emission order per event
// is: open-order while the order is live, close-order when it reached a
// terminal status, the execution if the event carries one, and the history
// record last.
func (m *Machine) ApplyOrderEvent(ev OrderEvent) error {
	status, ok := m.status(ev.RawStatus)
	if !ok {
		return fmt.Errorf("unknown order status %q for order %s", ev.RawStatus, ev.Order.ID)
	}

	order := ev.Order
	order.Status = status
	if !ev.Time.IsZero() {
		order.UpdatedAt = ev.Time
	}

	m.mu.Lock()
	if status.Terminal() {
		delete(m.orders, order.ID)
	} else {
		m.orders[order.ID] = order
	}
	m.mu.Unlock()

	if !status.Terminal() {
		m.bus.Push(platform.OpenOrder{Order: order})
	} else {
		m.bus.Push(platform.CloseOrder{OrderID: order.ID, Status: status, Time: order.UpdatedAt})
	}
	if ev.Exec != nil {
		m.bus.Push(*ev.Exec)
	}
	m.bus.Push(platform.OrderHistory{Order: order})

	return nil
}

// ApplyAlgoEvent processes a composite-order delta by opening or closing
// both decomposed legs as a unit.
func (m *Machine) ApplyAlgoEvent(ev AlgoEvent) error {
	status, ok := m.status(ev.RawStatus)
	if !ok {
		return fmt.Errorf("unknown algo status %q for %s", ev.RawStatus, ev.AlgoID)
	}

	legs := []platform.Order{
		algoLegOrder(ev, ev.TakeProfit, ev.AlgoID+takeProfitSuffix, platform.OrderTypeLimit, status),
		algoLegOrder(ev, ev.StopLoss, ev.AlgoID+stopLossSuffix, platform.OrderTypeStopLimit, status),
	}

	m.mu.Lock()
	for _, leg := range legs {
		if status.Terminal() {
			delete(m.orders, leg.ID)
		} else {
			m.orders[leg.ID] = leg
		}
	}
	m.mu.Unlock()

	for _, leg := range legs {
		if !status.Terminal() {
			m.bus.Push(platform.OpenOrder{Order: leg})
		} else {
			m.bus.Push(platform.CloseOrder{OrderID: leg.ID, Status: status, Time: leg.UpdatedAt})
		}
	}
	for _, leg := range legs {
		m.bus.Push(platform.OrderHistory{Order: leg})
	}

	return nil
}

func algoLegOrder(ev AlgoEvent, leg AlgoLeg, id string, typ platform.OrderType, status platform.OrderStatus) platform.Order {
	return platform.Order{
		ID:         id,
		GroupID:    ev.AlgoID,
		Instrument: ev.Instrument,
		Side:       leg.Side,
		Type:       typ,
		Price:      leg.Price,
		StopPrice:  leg.StopPrice,
		Quantity:   leg.Quantity,
		Status:     status,
		UpdatedAt:  ev.Time,
	}
}

// ApplyPositionEvent upserts or removes one position.
func (m *Machine) ApplyPositionEvent(pos platform.Position, closed bool) {
	m.mu.Lock()
	if closed {
		delete(m.positions, pos.ID)
	} else {
		m.positions[pos.ID] = pos
	}
	m.mu.Unlock()

	if closed {
		m.bus.Push(platform.ClosePosition{PositionID: pos.ID, Time: pos.UpdatedAt})
	} else {
		m.bus.Push(platform.PositionUpdate{Position: pos})
	}
}

// ApplyBalances pushes only the balances that differ from the last one sent
// for each asset, keeping UI churn down during the periodic refresh.
func (m *Machine) ApplyBalances(balances []platform.Balance) {
	var changed []platform.Balance

	m.mu.Lock()
	for _, b := range balances {
		last, seen := m.lastBalances[b.Asset]
		if seen && last == b {
			continue
		}
		m.lastBalances[b.Asset] = b
		changed = append(changed, b)
	}
	m.mu.Unlock()

	for _, b := range changed {
		m.bus.Push(platform.BalanceUpdate{Balance: b})
	}
}

// Order looks up a working order by id.
func (m *Machine) Order(id string) (platform.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	return o, ok
}

// OpenOrders returns the working orders.
func (m *Machine) OpenOrders() []platform.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]platform.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	return out
}

// Positions returns the open positions.
func (m *Machine) Positions() []platform.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]platform.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out
}

// Balances returns the last pushed balance per asset.
func (m *Machine) Balances() []platform.Balance {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]platform.Balance, 0, len(m.lastBalances))
	for _, b := range m.lastBalances {
		out = append(out, b)
	}
	return out
}

// Clear drops all caches, used at disconnect.
func (m *Machine) Clear() {
	m.mu.Lock()
	m.orders = make(map[string]platform.Order)
	m.positions = make(map[string]platform.Position)
	m.lastBalances = make(map[string]platform.Balance)
	m.mu.Unlock()
}
