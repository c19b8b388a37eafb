// Package bitfinex is the vendor facade wiring the connectivity core into
// the platform's vendor contract for one exchange: the rate-limited REST
// pipeline, the subscription multiplexer, the reconciliation machine and the
// WebSocket event loop, composed per connection.
package bitfinex

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/veiloq/exchange-bridge/pkg/exchanges/interfaces"
	"github.com/veiloq/exchange-bridge/pkg/history"
	"github.com/veiloq/exchange-bridge/pkg/logging"
	"github.com/veiloq/exchange-bridge/pkg/market"
	"github.com/veiloq/exchange-bridge/pkg/platform"
	"github.com/veiloq/exchange-bridge/pkg/ratelimit"
	"github.com/veiloq/exchange-bridge/pkg/reconcile"
	"github.com/veiloq/exchange-bridge/pkg/rest"
	"github.com/veiloq/exchange-bridge/pkg/subscription"
	"github.com/veiloq/exchange-bridge/pkg/symbols"
	"github.com/veiloq/exchange-bridge/pkg/tasks"
	"github.com/veiloq/exchange-bridge/pkg/websocket"
)

const (
	defaultRestURL = "https://api.bitfinex.com"
	defaultWSURL   = "wss://api-pub.bitfinex.com/ws/2"

	// refreshInterval drives the background balance/metadata refresh.
	refreshInterval = 5 * time.Second

	// notifyQuiet throttles user-visible failure tickets.
	notifyQuiet = 10 * time.Second

	// tradingOpTimeout bounds how long a pending operation may stay
	// unresolved before it is refused.
	tradingOpTimeout = 30 * time.Second

	candlePageLimit = 500
)

var (
	_ interfaces.MarketDataVendor = (*Vendor)(nil)
	_ interfaces.TradingVendor    = (*Vendor)(nil)
)

// Vendor implements interfaces.MarketDataVendor and interfaces.TradingVendor.
type Vendor struct {
	bus platform.Bus
	log logging.Logger

	restURL   string
	wsURL     string
	transport http.RoundTripper

	mu        sync.Mutex
	connected bool
	settings  interfaces.Settings
	cancel    context.CancelFunc

	signer   rest.Signer
	nonce    *nonceCounter
	client   rest.HTTPClient
	pipeline *rest.Pipeline
	notifier *rest.Notifier

	catalog   *symbols.Cache
	machine   *reconcile.Machine
	pending   *reconcile.PendingOps
	mux       *subscription.Mux
	aggressor *market.AggressorTracker
	refresh   *tasks.Supervisor

	ws         websocket.Connector
	injectedWS bool
}

// Option customizes the vendor construction.
type Option func(*Vendor)

// WithEndpoints overrides the REST and WebSocket URLs.
func WithEndpoints(restURL, wsURL string) Option {
	return func(v *Vendor) {
		v.restURL = restURL
		v.wsURL = wsURL
	}
}

// WithTransport overrides the HTTP round tripper, used in tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(v *Vendor) {
		v.transport = rt
	}
}

// WithWebSocket injects a pre-built socket connector, used in tests.
func WithWebSocket(ws websocket.Connector) Option {
	return func(v *Vendor) {
		v.ws = ws
		v.injectedWS = true
	}
}

// NewVendor creates a facade pushing normalized messages to bus.
func NewVendor(bus platform.Bus, log logging.Logger, opts ...Option) *Vendor {
	if log == nil {
		log = logging.NewLogger()
	}

	v := &Vendor{
		bus:     bus,
		log:     log.WithFields(logging.String("vendor", "bitfinex")),
		restURL: defaultRestURL,
		wsURL:   defaultWSURL,
	}
	for _, opt := range opts {
		opt(v)
	}

	v.catalog = symbols.NewCache()
	v.machine = reconcile.NewMachine(bus, mapOrderStatus, v.log)
	v.pending = reconcile.NewPendingOps()
	v.aggressor = market.NewAggressorTracker()
	v.mux = subscription.NewMux(v, func(id string) bool {
		ins, ok := v.catalog.Get(id)
		return ok && ins.IsIndex()
	}, v.log)

	return v
}

// Connect implements interfaces.MarketDataVendor. A failing instrument load
// or account snapshot aborts the attempt; nothing keeps running afterwards.
func (v *Vendor) Connect(ctx context.Context, settings interfaces.Settings) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.connected {
		return nil
	}

	v.settings = settings
	v.signer = rest.NewSigner(settings.APISecret)
	v.nonce = &nonceCounter{}
	v.notifier = rest.NewNotifier(v.bus, notifyQuiet, v.log)

	registry := ratelimit.NewRegistry()
	for category, rate := range bucketRates {
		registry.Configure(category, rate)
	}
	v.pipeline = rest.NewPipeline(registry, v.notifier, v.nonce, v.log)

	timeout := settings.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	v.client = rest.NewHTTPClient(&rest.ClientConfig{
		Timeout:    timeout,
		RateLimit:  ratelimit.Rate{Limit: 10, Interval: time.Second},
		MaxRetries: 3,
		RetryDelay: time.Second,
		Logger:     v.log,
		Transport:  v.transport,
	})

	instruments, err := v.fetchInstruments(ctx)
	if err != nil {
		return fmt.Errorf("loading instruments: %w", classifyError(err))
	}
	v.catalog.Replace(instruments)
	for _, ins := range instruments {
		v.bus.Push(platform.SymbolDefinition{
			ID:       ins.ID,
			Name:     ins.Name,
			TickSize: ins.TickSize,
			LotSize:  ins.LotSize,
			Margin:   ins.Margin,
			IsIndex:  ins.IsIndex(),
		})
	}

	if settings.Mode == interfaces.ModeTrading {
		orders, err := v.fetchOpenOrders(ctx)
		if err != nil {
			return fmt.Errorf("loading open orders: %w", classifyError(err))
		}
		positions, err := v.fetchPositions(ctx)
		if err != nil {
			return fmt.Errorf("loading positions: %w", classifyError(err))
		}
		balances, err := v.fetchBalances(ctx)
		if err != nil {
			return fmt.Errorf("loading balances: %w", classifyError(err))
		}

		v.machine.ApplySnapshot(orders, positions)
		v.machine.ApplyBalances(balances)
		v.bus.Push(platform.AccountUpdate{Account: platform.Account{
			ID:       "bitfinex-main",
			Name:     "Bitfinex",
			Currency: "USD",
		}})
	}

	// The socket lives for the whole connection, not the connect attempt:
	// only Disconnect's cancel tears it down. Dialing with the caller's
	// token would let a post-connect timeout kill the steady-state feed.
	connCtx, cancel := context.WithCancel(context.Background())

	if v.ws == nil {
		reconnect := settings.WSReconnectInterval
		if reconnect <= 0 {
			reconnect = 5 * time.Second
		}
		heartbeat := settings.WSHeartbeatInterval
		if heartbeat <= 0 {
			heartbeat = 20 * time.Second
		}
		v.ws = websocket.NewConnector(websocket.Config{
			URL:               v.wsURL,
			HeartbeatInterval: heartbeat,
			ReconnectInterval: reconnect,
			MaxRetries:        5,
			Logger:            v.log,
			OnEstablished:     v.onSocketEstablished,
		})
	}

	if err := v.ws.Connect(connCtx); err != nil {
		cancel()
		return fmt.Errorf("connecting socket: %w", err)
	}
	if v.injectedWS {
		v.onSocketEstablished()
	}

	go v.eventLoop(connCtx)

	if settings.Mode == interfaces.ModeTrading {
		v.refresh = tasks.NewSupervisor("account-refresh", refreshInterval, v.log)
		v.refresh.Start(connCtx, v.refreshTick)
	}

	v.cancel = cancel
	v.connected = true
	v.log.Info("connected",
		logging.Int("instruments", len(instruments)),
		logging.Bool("trading", settings.Mode == interfaces.ModeTrading),
	)
	return nil
}

// onSocketEstablished runs after every successful socket connect, including
// reconnects: authenticate first, then replay the wanted channels.
func (v *Vendor) onSocketEstablished() {
	if v.settings.Mode == interfaces.ModeTrading {
		nonce := v.nonce.Next()
		payload := "AUTH" + nonce
		frame := wsAuth{
			Event:       "auth",
			APIKey:      v.settings.APIKey,
			AuthSig:     v.signer.SHA384(payload),
			AuthNonce:   nonce,
			AuthPayload: payload,
		}
		if err := v.ws.Send(frame); err != nil {
			v.log.Error("auth frame send failed", logging.Error(err))
		}
	}

	if err := v.mux.Resubscribe(); err != nil {
		v.log.Warn("channel replay failed", logging.Error(err))
	}
}

// Disconnect implements interfaces.MarketDataVendor.
func (v *Vendor) Disconnect() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.connected {
		return interfaces.ErrNotConnected
	}

	v.cancel()
	err := v.ws.Close()
	if !v.injectedWS {
		// Close is terminal for the connector; the next Connect builds a
		// fresh one.
		v.ws = nil
	}

	v.mux.Reset()
	v.machine.Clear()
	v.catalog.Clear()
	v.connected = false

	v.log.Info("disconnected")
	return err
}

// SendChannelOps implements subscription.Sender: one batched frame per
// direction present in the op set.
func (v *Vendor) SendChannelOps(ops []subscription.ChannelOp) error {
	var sub, unsub []wsChannel
	for _, op := range ops {
		ch := wsChannel{Channel: channelNames[op.Kind], Symbol: op.Instrument}
		if op.Subscribe {
			sub = append(sub, ch)
		} else {
			unsub = append(unsub, ch)
		}
	}

	if len(sub) > 0 {
		if err := v.ws.Send(wsRequest{Op: "subscribe", Args: sub}); err != nil {
			return fmt.Errorf("%w: %s", interfaces.ErrSubscriptionFailed, err)
		}
	}
	if len(unsub) > 0 {
		if err := v.ws.Send(wsRequest{Op: "unsubscribe", Args: unsub}); err != nil {
			return fmt.Errorf("%w: %s", interfaces.ErrSubscriptionFailed, err)
		}
	}
	return nil
}

// SubscribeSymbol implements interfaces.MarketDataVendor.
func (v *Vendor) SubscribeSymbol(instrument string, kind subscription.DataKind) error {
	if !v.isConnected() {
		return interfaces.ErrNotConnected
	}
	if _, ok := v.catalog.Get(instrument); !ok {
		return fmt.Errorf("%w: %s", interfaces.ErrInvalidSymbol, instrument)
	}
	return v.mux.Subscribe(instrument, kind)
}

// UnsubscribeSymbol implements interfaces.MarketDataVendor.
func (v *Vendor) UnsubscribeSymbol(instrument string, kind subscription.DataKind) error {
	if !v.isConnected() {
		return interfaces.ErrNotConnected
	}
	return v.mux.Unsubscribe(instrument, kind)
}

// LoadHistory implements interfaces.MarketDataVendor.
func (v *Vendor) LoadHistory(ctx context.Context, req platform.HistoryRequest) ([]platform.Bar, error) {
	if !v.isConnected() {
		return nil, interfaces.ErrNotConnected
	}
	if !req.From.Before(req.To) {
		return nil, interfaces.ErrInvalidTimeRange
	}

	loader := history.NewLoader[restCandle](history.Options{
		PageLimit: candlePageLimit,
		Tick:      time.Millisecond,
		PageRate:  2,
		Burst:     2,
		Logger:    v.log,
	},
		func(c restCandle) time.Time { return msTime(c.TS) },
		func(c restCandle, t time.Time) restCandle {
			c.TS = t.UnixMilli()
			return c
		},
	)

	candles, err := loader.LoadRange(ctx, req.From, req.To,
		func(ctx context.Context, from, to time.Time, limit int) ([]restCandle, error) {
			return v.fetchCandles(ctx, req.Instrument, req.Period, from, to, limit)
		})
	if err != nil {
		return nil, interfaces.NewMarketError(req.Instrument, "history load failed", classifyError(err))
	}

	bars := make([]platform.Bar, 0, len(candles))
	for _, c := range candles {
		bars = append(bars, platform.Bar{
			Time:   msTime(c.TS),
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		})
	}
	return bars, nil
}

type submitBody struct {
	ClientID   string  `json:"cid"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Type       string  `json:"type"`
	Price      float64 `json:"price,omitempty"`
	StopPrice  float64 `json:"stopPrice,omitempty"`
	Amount     float64 `json:"amount"`
	TakeProfit float64 `json:"takeProfit,omitempty"`
	StopLoss   float64 `json:"stopLoss,omitempty"`
}

// PlaceOrder implements interfaces.TradingVendor.
func (v *Vendor) PlaceOrder(ctx context.Context, req platform.PlaceOrderRequest) platform.TradingResult {
	if res, ok := v.tradingReady(); !ok {
		return res
	}
	if _, ok := v.catalog.Get(req.Instrument); !ok {
		return platform.Refused(interfaces.ErrInvalidSymbol.Error() + ": " + req.Instrument)
	}

	op := v.pending.Begin(reconcile.OpPlace)
	ack, err := v.submitOrder(ctx, submitBody{
		ClientID:   op.ID,
		Symbol:     req.Instrument,
		Side:       req.Side.String(),
		Type:       orderTypeName(req.Type),
		Price:      req.Price,
		StopPrice:  req.StopPrice,
		Amount:     req.Quantity,
		TakeProfit: req.TakeProfit,
		StopLoss:   req.StopLoss,
	})
	return v.resolveOp(ctx, op, ack, err)
}

// ModifyOrder implements interfaces.TradingVendor.
func (v *Vendor) ModifyOrder(ctx context.Context, req platform.ModifyOrderRequest) platform.TradingResult {
	if res, ok := v.tradingReady(); !ok {
		return res
	}

	op := v.pending.Begin(reconcile.OpModify)
	ack, err := v.updateOrder(ctx, map[string]interface{}{
		"cid":       op.ID,
		"id":        req.OrderID,
		"price":     req.Price,
		"stopPrice": req.StopPrice,
		"amount":    req.Quantity,
	})
	return v.resolveOp(ctx, op, ack, err)
}

// CancelOrder implements interfaces.TradingVendor.
func (v *Vendor) CancelOrder(ctx context.Context, req platform.CancelOrderRequest) platform.TradingResult {
	if res, ok := v.tradingReady(); !ok {
		return res
	}

	op := v.pending.Begin(reconcile.OpCancel)
	ack, err := v.cancelOrder(ctx, map[string]interface{}{
		"cid": op.ID,
		"id":  req.OrderID,
	})
	return v.resolveOp(ctx, op, ack, err)
}

// ClosePosition implements interfaces.TradingVendor.
func (v *Vendor) ClosePosition(ctx context.Context, req platform.ClosePositionRequest) platform.TradingResult {
	if res, ok := v.tradingReady(); !ok {
		return res
	}

	op := v.pending.Begin(reconcile.OpClose)
	ack, err := v.closePosition(ctx, map[string]interface{}{
		"cid":    op.ID,
		"id":     req.PositionID,
		"amount": req.Quantity,
	})
	return v.resolveOp(ctx, op, ack, err)
}

// resolveOp feeds the REST acknowledgement into the pending registry, then
// waits for the operation's terminal result. The socket's order event can
// resolve the operation first via the correlation id; the later resolve is a
// no-op. Cancellation resolves quietly; the pipeline has already skipped the
// failure ticket for it.
func (v *Vendor) resolveOp(ctx context.Context, op *reconcile.PendingOp, ack restOrderAck, err error) platform.TradingResult {
	switch {
	case err != nil && ctx.Err() != nil:
		v.pending.Resolve(op.ID, platform.Refused("operation cancelled"))
	case err != nil:
		v.pending.Resolve(op.ID, platform.Refused(rest.Cause(err)))
	default:
		v.pending.Resolve(op.ID, platform.Success(ack.ID))
	}

	return v.pending.Wait(ctx, op, tradingOpTimeout)
}

func (v *Vendor) tradingReady() (platform.TradingResult, bool) {
	if !v.isConnected() {
		return platform.Refused(interfaces.ErrNotConnected.Error()), false
	}
	if v.settings.Mode != interfaces.ModeTrading {
		return platform.Refused(interfaces.ErrAuthenticationRequired.Error()), false
	}
	return platform.TradingResult{}, true
}

// GetAccounts implements interfaces.TradingVendor.
func (v *Vendor) GetAccounts(ctx context.Context) ([]platform.Account, error) {
	if !v.isConnected() {
		return nil, interfaces.ErrNotConnected
	}
	return []platform.Account{{
		ID:       "bitfinex-main",
		Name:     "Bitfinex",
		Currency: "USD",
	}}, nil
}

// GetPositions implements interfaces.TradingVendor. Served from the
// reconciled cache, which reflects the last state confirmed by the exchange.
func (v *Vendor) GetPositions(ctx context.Context) ([]platform.Position, error) {
	if !v.isConnected() {
		return nil, interfaces.ErrNotConnected
	}
	return v.machine.Positions(), nil
}

// GetPendingOrders implements interfaces.TradingVendor.
func (v *Vendor) GetPendingOrders(ctx context.Context) ([]platform.Order, error) {
	if !v.isConnected() {
		return nil, interfaces.ErrNotConnected
	}
	return v.machine.OpenOrders(), nil
}

// GetCryptoAssetBalances implements interfaces.TradingVendor.
func (v *Vendor) GetCryptoAssetBalances(ctx context.Context) ([]platform.Balance, error) {
	if !v.isConnected() {
		return nil, interfaces.ErrNotConnected
	}
	return v.machine.Balances(), nil
}

// refreshTick is the 5-second background refresh: balances and instrument
// metadata. Failures are logged by the supervisor and never fatal.
func (v *Vendor) refreshTick(ctx context.Context) error {
	balances, err := v.fetchBalances(ctx)
	if err != nil {
		return err
	}
	v.machine.ApplyBalances(balances)

	instruments, err := v.fetchInstruments(ctx)
	if err != nil {
		return err
	}
	for _, ins := range instruments {
		meta := ins.Meta
		v.catalog.UpdateMeta(ins.ID, func(m *symbols.Metadata) {
			*m = meta
		})
	}
	return nil
}

func (v *Vendor) isConnected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connected
}
