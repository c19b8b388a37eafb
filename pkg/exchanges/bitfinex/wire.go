package bitfinex

import (
	"encoding/json"
	"time"

	"github.com/veiloq/exchange-bridge/pkg/platform"
	"github.com/veiloq/exchange-bridge/pkg/subscription"
)

// Channel names on the wire, one per data kind plus the private channels.
var channelNames = map[subscription.DataKind]string{
	subscription.KindQuote:  "ticker",
	subscription.KindLevel2: "book",
	subscription.KindTrade:  "trades",
	subscription.KindMark:   "status",
}

// wsRequest is the batched subscribe/unsubscribe envelope. One request
// carries every channel change of a multiplexer operation.
type wsRequest struct {
	Op   string      `json:"op"`
	Args []wsChannel `json:"args"`
}

type wsChannel struct {
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
}

// wsAuth is the login frame required before private channels deliver data.
type wsAuth struct {
	Event       string `json:"event"`
	APIKey      string `json:"apiKey"`
	AuthSig     string `json:"authSig"`
	AuthNonce   string `json:"authNonce"`
	AuthPayload string `json:"authPayload"`
}

// wsEnvelope wraps every inbound frame; Data stays raw until the type is
// known.
type wsEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type wireTicker struct {
	Symbol  string  `json:"symbol"`
	Bid     float64 `json:"bid"`
	BidSize float64 `json:"bidSize"`
	Ask     float64 `json:"ask"`
	AskSize float64 `json:"askSize"`
	Last    float64 `json:"last"`
	Open    float64 `json:"open"`
	High    float64 `json:"high"`
	Low     float64 `json:"low"`
	Volume  float64 `json:"volume"`
	TS      int64   `json:"ts"`
}

type wireTrade struct {
	Symbol string  `json:"symbol"`
	ID     string  `json:"id"`
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
	Side   string  `json:"side"` // "", "buy" or "sell"
	TS     int64   `json:"ts"`
}

type wireBook struct {
	Symbol   string       `json:"symbol"`
	Bids     [][2]float64 `json:"bids"` // price, size
	Asks     [][2]float64 `json:"asks"`
	Snapshot bool         `json:"snapshot"`
	TS       int64        `json:"ts"`
}

type wireOrder struct {
	ID        string  `json:"id"`
	GroupID   string  `json:"gid"`
	ClientID  string  `json:"cid"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Type      string  `json:"type"`
	Price     float64 `json:"price"`
	StopPrice float64 `json:"stopPrice"`
	Amount    float64 `json:"amount"`
	Filled    float64 `json:"filled"`
	Status    string  `json:"status"`
	TS        int64   `json:"ts"`

	// Fill fields are set when the update represents an execution.
	TradeID    string  `json:"tradeId"`
	FillPrice  float64 `json:"fillPrice"`
	FillAmount float64 `json:"fillAmount"`
	Fee        float64 `json:"fee"`
	FeeAsset   string  `json:"feeAsset"`
}

type wireAlgoLeg struct {
	Side      string  `json:"side"`
	Price     float64 `json:"price"`
	StopPrice float64 `json:"stopPrice"`
	Amount    float64 `json:"amount"`
}

type wireAlgo struct {
	AlgoID     string      `json:"algoId"`
	Symbol     string      `json:"symbol"`
	Status     string      `json:"status"`
	TakeProfit wireAlgoLeg `json:"takeProfit"`
	StopLoss   wireAlgoLeg `json:"stopLoss"`
	TS         int64       `json:"ts"`
}

type wirePosition struct {
	ID        string  `json:"id"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Amount    float64 `json:"amount"`
	BasePrice float64 `json:"basePrice"`
	MarkPrice float64 `json:"markPrice"`
	LiqPrice  float64 `json:"liqPrice"`
	Status    string  `json:"status"` // ACTIVE or CLOSED
	TS        int64   `json:"ts"`
}

type wireWallet struct {
	Currency  string  `json:"currency"`
	Total     float64 `json:"total"`
	Available float64 `json:"available"`
}

// mapOrderStatus translates the exchange status vocabulary to the canonical
// enum. Partial executions arrive as PARTIALLY FILLED on the order channel.
func mapOrderStatus(raw string) (platform.OrderStatus, bool) {
	switch raw {
	case "ACTIVE":
		return platform.OrderOpened, true
	case "PARTIALLY FILLED":
		return platform.OrderPartiallyFilled, true
	case "EXECUTED":
		return platform.OrderFilled, true
	case "CANCELED":
		return platform.OrderCancelled, true
	case "UPDATED":
		return platform.OrderModified, true
	default:
		return 0, false
	}
}

func mapSide(raw string) platform.Side {
	switch raw {
	case "buy":
		return platform.SideBuy
	case "sell":
		return platform.SideSell
	default:
		return platform.SideUnknown
	}
}

func mapOrderType(raw string) platform.OrderType {
	switch raw {
	case "MARKET":
		return platform.OrderTypeMarket
	case "STOP LIMIT":
		return platform.OrderTypeStopLimit
	case "TRIGGER MARKET":
		return platform.OrderTypeTriggerMarket
	default:
		return platform.OrderTypeLimit
	}
}

func orderTypeName(t platform.OrderType) string {
	switch t {
	case platform.OrderTypeMarket:
		return "MARKET"
	case platform.OrderTypeStopLimit:
		return "STOP LIMIT"
	case platform.OrderTypeTriggerMarket:
		return "TRIGGER MARKET"
	case platform.OrderTypeOCO:
		return "OCO"
	default:
		return "LIMIT"
	}
}

func msTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
