package platform

import "time"

// MessageKind tags every message pushed onto the bus.
type MessageKind string

const (
	KindSymbolDefinition MessageKind = "symbol_definition"
	KindQuote            MessageKind = "quote"
	KindLevel2           MessageKind = "level2"
	KindTrade            MessageKind = "trade"
	KindDayBar           MessageKind = "day_bar"
	KindOpenOrder        MessageKind = "open_order"
	KindCloseOrder       MessageKind = "close_order"
	KindOrderHistory     MessageKind = "order_history"
	KindExecution        MessageKind = "execution"
	KindAccount          MessageKind = "account"
	KindPosition         MessageKind = "position"
	KindClosePosition    MessageKind = "close_position"
	KindBalance          MessageKind = "balance"
	KindDealTicket       MessageKind = "deal_ticket"
)

// Message is anything the bridge pushes to the platform's message bus.
type Message interface {
	Kind() MessageKind
}

// Bus is the platform's inbound message sink. Push must be safe for
// concurrent use; the bridge calls it from socket and timer goroutines.
type Bus interface {
	Push(msg Message)
}

// SymbolDefinition announces one tradable instrument.
type SymbolDefinition struct {
	ID         string
	Name       string
	TickSize   float64
	LotSize    float64
	Margin     bool
	Underlying string
	IsIndex    bool
}

func (SymbolDefinition) Kind() MessageKind { return KindSymbolDefinition }

// QuoteTick is a best bid/ask update.
type QuoteTick struct {
	Instrument string
	Bid        float64
	BidSize    float64
	Ask        float64
	AskSize    float64
	Time       time.Time
}

func (QuoteTick) Kind() MessageKind { return KindQuote }

// Level2Update is a depth snapshot or incremental update.
type Level2Update struct {
	Instrument string
	Bids       []BookLevel
	Asks       []BookLevel
	Snapshot   bool
	Time       time.Time
}

func (Level2Update) Kind() MessageKind { return KindLevel2 }

// TradeTick is a public trade print.
type TradeTick struct {
	Instrument string
	Price      float64
	Size       float64
	Aggressor  Side
	Time       time.Time
}

func (TradeTick) Kind() MessageKind { return KindTrade }

// DayBar is a daily statistics snapshot derived from ticker data.
type DayBar struct {
	Instrument string
	Open       float64
	High       float64
	Low        float64
	Last       float64
	Volume     float64
	Time       time.Time
}

func (DayBar) Kind() MessageKind { return KindDayBar }

// OpenOrder reports a live (working) order.
type OpenOrder struct {
	Order Order
}

func (OpenOrder) Kind() MessageKind { return KindOpenOrder }

// CloseOrder reports an order leaving the working set.
type CloseOrder struct {
	OrderID string
	Status  OrderStatus
	Time    time.Time
}

func (CloseOrder) Kind() MessageKind { return KindCloseOrder }

// OrderHistory is the audit record emitted for every order transition.
type OrderHistory struct {
	Order Order
}

func (OrderHistory) Kind() MessageKind { return KindOrderHistory }

// Execution reports a fill belonging to one of the account's orders.
type Execution struct {
	OrderID    string
	TradeID    string
	Instrument string
	Side       Side
	Price      float64
	Quantity   float64
	Fee        float64
	FeeAsset   string
	Time       time.Time
}

func (Execution) Kind() MessageKind { return KindExecution }

// AccountUpdate announces or refreshes a trading account.
type AccountUpdate struct {
	Account Account
}

func (AccountUpdate) Kind() MessageKind { return KindAccount }

// PositionUpdate reports an open position's current state.
type PositionUpdate struct {
	Position Position
}

func (PositionUpdate) Kind() MessageKind { return KindPosition }

// ClosePosition reports a position leaving the open set.
type ClosePosition struct {
	PositionID string
	Time       time.Time
}

func (ClosePosition) Kind() MessageKind { return KindClosePosition }

// BalanceUpdate reports one asset balance. Only pushed when the balance
// differs from the last one sent for that asset.
type BalanceUpdate struct {
	Balance Balance
}

func (BalanceUpdate) Kind() MessageKind { return KindBalance }

// DealTicket is a user-visible notice, typically a refused trading
// operation or a throttled background failure.
type DealTicket struct {
	Text string
	Time time.Time
}

func (DealTicket) Kind() MessageKind { return KindDealTicket }
