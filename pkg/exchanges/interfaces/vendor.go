// Package interfaces defines the contracts a per-exchange vendor facade
// implements for the host trading platform. Capabilities are split into
// market data and trading so an adapter can offer one without the other;
// the platform probes for TradingVendor with a type assertion.
package interfaces

import (
	"context"
	"time"

	"github.com/veiloq/exchange-bridge/pkg/platform"
	"github.com/veiloq/exchange-bridge/pkg/subscription"
)

// ConnectionMode selects how much of the API surface the connection uses.
type ConnectionMode int

const (
	// ModeMarketData restricts the connection to public market data.
	ModeMarketData ConnectionMode = iota

	// ModeTrading includes private trading channels and endpoints.
	ModeTrading
)

// Settings are the connection parameters supplied by the platform. API
// credentials are required only in trading mode.
type Settings struct {
	APIKey    string
	APISecret string
	Mode      ConnectionMode

	// HTTPTimeout bounds each REST call; zero means the transport default.
	HTTPTimeout time.Duration

	// WSReconnectInterval is the wait between reconnection attempts.
	WSReconnectInterval time.Duration

	// WSHeartbeatInterval is the keep-alive ping frequency.
	WSHeartbeatInterval time.Duration
}

// NewSettings returns settings with reasonable defaults.
func NewSettings() Settings {
	return Settings{
		Mode:                ModeMarketData,
		HTTPTimeout:         15 * time.Second,
		WSReconnectInterval: 5 * time.Second,
		WSHeartbeatInterval: 20 * time.Second,
	}
}

// WithCredentials returns a copy with the API key pair set and trading mode
// enabled.
func (s Settings) WithCredentials(key, secret string) Settings {
	s.APIKey = key
	s.APISecret = secret
	s.Mode = ModeTrading
	return s
}

// MarketDataVendor is the capability every vendor facade implements.
type MarketDataVendor interface {
	// Connect loads the instrument catalog, takes the account snapshots in
	// trading mode, and opens the market-data socket. A failing catalog or
	// snapshot load is fatal to the attempt.
	Connect(ctx context.Context, settings Settings) error

	// Disconnect cancels background work, closes sockets and clears caches.
	Disconnect() error

	// SubscribeSymbol requests a market-data channel for the instrument.
	SubscribeSymbol(instrument string, kind subscription.DataKind) error

	// UnsubscribeSymbol releases a previously requested channel.
	UnsubscribeSymbol(instrument string, kind subscription.DataKind) error

	// LoadHistory loads bars over the request range, oldest first.
	LoadHistory(ctx context.Context, req platform.HistoryRequest) ([]platform.Bar, error)
}

// TradingVendor is the optional trading capability.
type TradingVendor interface {
	PlaceOrder(ctx context.Context, req platform.PlaceOrderRequest) platform.TradingResult
	ModifyOrder(ctx context.Context, req platform.ModifyOrderRequest) platform.TradingResult
	CancelOrder(ctx context.Context, req platform.CancelOrderRequest) platform.TradingResult
	ClosePosition(ctx context.Context, req platform.ClosePositionRequest) platform.TradingResult

	GetAccounts(ctx context.Context) ([]platform.Account, error)
	GetPositions(ctx context.Context) ([]platform.Position, error)
	GetPendingOrders(ctx context.Context) ([]platform.Order, error)
	GetCryptoAssetBalances(ctx context.Context) ([]platform.Balance, error)
}
