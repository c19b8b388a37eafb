// Package platform defines the host trading platform's side of the bridge:
// the normalized message vocabulary pushed onto the platform's message bus
// and the request/result types for trading operations. The platform itself
// is an external collaborator; only its contract lives here.
package platform

import "time"

// Side is the direction of an order, position or trade.
type Side int

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// OrderStatus is the canonical status vocabulary every exchange's wire
// statuses are mapped onto.
type OrderStatus int

const (
	OrderOpened OrderStatus = iota
	OrderPartiallyFilled
	OrderFilled
	OrderCancelled
	OrderModified
)

func (s OrderStatus) String() string {
	switch s {
	case OrderOpened:
		return "opened"
	case OrderPartiallyFilled:
		return "partially_filled"
	case OrderFilled:
		return "filled"
	case OrderCancelled:
		return "cancelled"
	case OrderModified:
		return "modified"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status ends the order's lifecycle.
func (s OrderStatus) Terminal() bool {
	return s == OrderFilled || s == OrderCancelled
}

// OrderType covers the order shapes the bridge can place. OCO decomposes
// into two legs on the exchange side; the platform only ever sees the legs.
type OrderType int

const (
	OrderTypeLimit OrderType = iota
	OrderTypeMarket
	OrderTypeStopLimit
	OrderTypeTriggerMarket
	OrderTypeOCO
)

// Order is the platform's view of a single-leg order.
type Order struct {
	ID         string
	GroupID    string // shared by legs of one algo/conditional order, empty otherwise
	Instrument string
	Side       Side
	Type       OrderType
	Price      float64
	StopPrice  float64
	Quantity   float64
	Filled     float64
	Status     OrderStatus
	UpdatedAt  time.Time
}

// Position is the platform's view of an open position.
type Position struct {
	ID          string
	Instrument  string
	Side        Side
	Quantity    float64
	EntryPrice  float64
	MarkPrice   float64
	Liquidation float64
	UpdatedAt   time.Time
}

// Balance is a per-asset wallet balance.
type Balance struct {
	Asset     string
	Total     float64
	Available float64
}

// Account identifies a trading account surfaced to the platform.
type Account struct {
	ID       string
	Name     string
	Currency string
}

// Bar is one OHLCV period returned by history loads.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// BookLevel is one price level of a depth update.
type BookLevel struct {
	Price float64
	Size  float64
}

// HistoryPeriod selects the aggregation of a history load.
type HistoryPeriod string

const (
	PeriodTick HistoryPeriod = "tick"
	Period1m   HistoryPeriod = "1m"
	Period1h   HistoryPeriod = "1h"
	Period1d   HistoryPeriod = "1d"
)

// HistoryRequest asks for history over [From, To).
type HistoryRequest struct {
	Instrument string
	Period     HistoryPeriod
	From       time.Time
	To         time.Time
}

// PlaceOrderRequest is a platform-issued order placement.
type PlaceOrderRequest struct {
	Instrument string
	Side       Side
	Type       OrderType
	Price      float64
	StopPrice  float64
	Quantity   float64

	// TakeProfit/StopLoss are set for OCO placements and ignored otherwise.
	TakeProfit float64
	StopLoss   float64
}

// ModifyOrderRequest changes the terms of a working order.
type ModifyOrderRequest struct {
	OrderID   string
	Price     float64
	StopPrice float64
	Quantity  float64
}

// CancelOrderRequest cancels a working order.
type CancelOrderRequest struct {
	OrderID string
}

// ClosePositionRequest flattens a position, fully when Quantity is zero.
type ClosePositionRequest struct {
	PositionID string
	Quantity   float64
}

// TradingResult is the tagged outcome of a trading operation. Failures carry
// the exchange's error text; successes carry the assigned order id.
type TradingResult struct {
	OK      bool
	OrderID string
	Err     string
}

// Success builds a successful result with the assigned order id.
func Success(orderID string) TradingResult {
	return TradingResult{OK: true, OrderID: orderID}
}

// Refused builds a failed result with the error text.
func Refused(err string) TradingResult {
	return TradingResult{Err: err}
}
