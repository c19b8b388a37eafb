package bitfinex

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veiloq/exchange-bridge/pkg/exchanges/interfaces"
	"github.com/veiloq/exchange-bridge/pkg/platform"
	"github.com/veiloq/exchange-bridge/pkg/subscription"
	"github.com/veiloq/exchange-bridge/pkg/websocket"
)

type recordBus struct {
	mu       sync.Mutex
	messages []platform.Message
}

func (b *recordBus) Push(msg platform.Message) {
	b.mu.Lock()
	b.messages = append(b.messages, msg)
	b.mu.Unlock()
}

func (b *recordBus) ofKind(kind platform.MessageKind) []platform.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []platform.Message
	for _, msg := range b.messages {
		if msg.Kind() == kind {
			out = append(out, msg)
		}
	}
	return out
}

func (b *recordBus) waitFor(t *testing.T, kind platform.MessageKind, n int) []platform.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if got := b.ofKind(kind); len(got) >= n {
			return got
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d %s messages, have %d", n, kind, len(b.ofKind(kind)))
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// exchangeHandler is a scripted REST side of the exchange.
type exchangeHandler struct {
	mu        sync.Mutex
	orders    []wireOrder
	positions []wirePosition
	wallets   []wireWallet
	candles   []restCandle
	ackID     string

	failInstruments  bool
	rejectAuth       bool
	rateLimitCandles bool
	requests         []*http.Request
}

func (h *exchangeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.requests = append(h.requests, r)
	fail := h.failInstruments
	rejectAuth := h.rejectAuth
	rateLimitCandles := h.rateLimitCandles
	h.mu.Unlock()

	if rejectAuth && strings.HasPrefix(r.URL.Path, "/v2/auth/") {
		writeStatus(w, http.StatusUnauthorized, `{"code":"10100","message":"apikey: invalid"}`)
		return
	}

	switch r.URL.Path {
	case "/v2/instruments":
		if fail {
			http.Error(w, "exchange down", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, []restInstrument{
			{ID: "tBTCUSD", Name: "BTC/USD", TickSize: 0.5, LotSize: 0.0001, Kind: "spot"},
			{ID: "tETHUSD", Name: "ETH/USD", TickSize: 0.05, LotSize: 0.001, Kind: "spot"},
			{ID: "tBTCIDX", Name: "BTC Index", Kind: "index"},
		})
	case "/v2/auth/orders":
		writeJSON(w, h.orders)
	case "/v2/auth/positions":
		writeJSON(w, h.positions)
	case "/v2/auth/wallets":
		writeJSON(w, h.wallets)
	case "/v2/candles":
		if rateLimitCandles {
			writeStatus(w, http.StatusTooManyRequests, "rate limit")
			return
		}
		writeJSON(w, h.candles)
	case "/v2/auth/order/submit", "/v2/auth/order/update",
		"/v2/auth/order/cancel", "/v2/auth/position/close":
		writeJSON(w, restOrderAck{ID: h.ackID, Status: "SUCCESS"})
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, status int, body string) {
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func setupVendor(t *testing.T, handler *exchangeHandler, mode interfaces.ConnectionMode) (*Vendor, *recordBus, *websocket.MockConnector) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	bus := &recordBus{}
	ws := websocket.NewMockConnector()
	vendor := NewVendor(bus, nil,
		WithEndpoints(server.URL, "ws://unused"),
		WithWebSocket(ws),
	)

	settings := interfaces.NewSettings()
	if mode == interfaces.ModeTrading {
		settings = settings.WithCredentials("test-key", "test-secret")
	}

	require.NoError(t, vendor.Connect(context.Background(), settings))
	t.Cleanup(func() { _ = vendor.Disconnect() })

	return vendor, bus, ws
}

func TestConnect_LoadsCatalogAndAnnouncesSymbols(t *testing.T) {
	_, bus, _ := setupVendor(t, &exchangeHandler{}, interfaces.ModeMarketData)

	defs := bus.ofKind(platform.KindSymbolDefinition)
	require.Len(t, defs, 3)

	var index platform.SymbolDefinition
	for _, msg := range defs {
		def := msg.(platform.SymbolDefinition)
		if def.ID == "tBTCIDX" {
			index = def
		}
	}
	assert.True(t, index.IsIndex)
}

func TestConnect_InstrumentLoadFailureIsFatal(t *testing.T) {
	handler := &exchangeHandler{failInstruments: true}
	server := httptest.NewServer(handler)
	defer server.Close()

	vendor := NewVendor(&recordBus{}, nil,
		WithEndpoints(server.URL, "ws://unused"),
		WithWebSocket(websocket.NewMockConnector()),
	)

	err := vendor.Connect(context.Background(), interfaces.NewSettings())
	require.Error(t, err, "nothing keeps running after a failed connect")
	assert.ErrorIs(t, err, interfaces.ErrExchangeUnavailable)
	assert.Error(t, vendor.Disconnect(), "never reached the connected state")
}

func TestConnect_BadCredentialsClassified(t *testing.T) {
	handler := &exchangeHandler{rejectAuth: true}
	server := httptest.NewServer(handler)
	defer server.Close()

	vendor := NewVendor(&recordBus{}, nil,
		WithEndpoints(server.URL, "ws://unused"),
		WithWebSocket(websocket.NewMockConnector()),
	)

	err := vendor.Connect(context.Background(),
		interfaces.NewSettings().WithCredentials("bad-key", "bad-secret"))
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrInvalidCredentials)
}

func TestConnect_TradingModeAppliesSnapshots(t *testing.T) {
	handler := &exchangeHandler{
		orders: []wireOrder{
			{ID: "o1", Symbol: "tBTCUSD", Side: "buy", Type: "LIMIT", Price: 50000, Amount: 1, Status: "ACTIVE"},
		},
		positions: []wirePosition{
			{ID: "p1", Symbol: "tETHUSD", Side: "buy", Amount: 2, BasePrice: 3000, Status: "ACTIVE"},
		},
		wallets: []wireWallet{{Currency: "USD", Total: 10000, Available: 9000}},
	}
	vendor, bus, ws := setupVendor(t, handler, interfaces.ModeTrading)

	orders, err := vendor.GetPendingOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "o1", orders[0].ID)

	positions, err := vendor.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)

	balances, err := vendor.GetCryptoAssetBalances(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, "USD", balances[0].Asset)

	assert.Len(t, bus.ofKind(platform.KindOpenOrder), 1)
	assert.Len(t, bus.ofKind(platform.KindBalance), 1)

	// The injected socket received the auth frame on establish.
	sent := ws.Sent()
	require.NotEmpty(t, sent)
	auth, ok := sent[0].(wsAuth)
	require.True(t, ok, "first frame after connect is the login")
	assert.Equal(t, "test-key", auth.APIKey)
	assert.NotEmpty(t, auth.AuthSig)
}

func TestSubscribe_SendsBatchedWireRequest(t *testing.T) {
	vendor, _, ws := setupVendor(t, &exchangeHandler{}, interfaces.ModeMarketData)

	require.NoError(t, vendor.SubscribeSymbol("tBTCUSD", subscription.KindTrade))

	sent := ws.Sent()
	require.Len(t, sent, 1, "trades and the base ticker channel share one frame")
	req, ok := sent[0].(wsRequest)
	require.True(t, ok)
	assert.Equal(t, "subscribe", req.Op)
	assert.ElementsMatch(t, []wsChannel{
		{Channel: "ticker", Symbol: "tBTCUSD"},
		{Channel: "trades", Symbol: "tBTCUSD"},
	}, req.Args)
}

func TestSubscribe_IndexCollapsesToTicker(t *testing.T) {
	vendor, _, ws := setupVendor(t, &exchangeHandler{}, interfaces.ModeMarketData)

	require.NoError(t, vendor.SubscribeSymbol("tBTCIDX", subscription.KindLevel2))

	sent := ws.Sent()
	require.Len(t, sent, 1)
	req := sent[0].(wsRequest)
	assert.Equal(t, []wsChannel{{Channel: "ticker", Symbol: "tBTCIDX"}}, req.Args)
}

func TestSubscribe_UnknownSymbolRejected(t *testing.T) {
	vendor, _, _ := setupVendor(t, &exchangeHandler{}, interfaces.ModeMarketData)

	err := vendor.SubscribeSymbol("tDOGEUSD", subscription.KindQuote)
	assert.ErrorIs(t, err, interfaces.ErrInvalidSymbol)
}

func TestEventLoop_TickerDrivesQuoteAndDayBar(t *testing.T) {
	_, bus, ws := setupVendor(t, &exchangeHandler{}, interfaces.ModeMarketData)

	ws.Deliver(frame(t, "ticker", wireTicker{
		Symbol: "tBTCUSD", Bid: 50000, BidSize: 2, Ask: 50001, AskSize: 3,
		Last: 50000.5, Open: 49000, High: 50500, Low: 48500, Volume: 120,
		TS: 1717000000000,
	}))

	quotes := bus.waitFor(t, platform.KindQuote, 1)
	quote := quotes[0].(platform.QuoteTick)
	assert.Equal(t, 50000.0, quote.Bid)
	assert.Equal(t, 50001.0, quote.Ask)

	bars := bus.waitFor(t, platform.KindDayBar, 1)
	bar := bars[0].(platform.DayBar)
	assert.Equal(t, 49000.0, bar.Open)
	assert.Equal(t, 120.0, bar.Volume)
}

func TestEventLoop_TradeAggressorInferredFromQuote(t *testing.T) {
	_, bus, ws := setupVendor(t, &exchangeHandler{}, interfaces.ModeMarketData)

	ws.Deliver(frame(t, "ticker", wireTicker{Symbol: "tBTCUSD", Bid: 100, Ask: 101}))
	bus.waitFor(t, platform.KindQuote, 1)

	// The exchange omits the taker side; classification falls back to the
	// tracked quote.
	ws.Deliver(frame(t, "trades", []wireTrade{
		{Symbol: "tBTCUSD", ID: "t1", Price: 101, Amount: 0.5},
		{Symbol: "tBTCUSD", ID: "t2", Price: 100, Amount: 0.2},
		{Symbol: "tBTCUSD", ID: "t3", Price: 100.4, Amount: 0.1},
	}))

	trades := bus.waitFor(t, platform.KindTrade, 3)
	assert.Equal(t, platform.SideBuy, trades[0].(platform.TradeTick).Aggressor)
	assert.Equal(t, platform.SideSell, trades[1].(platform.TradeTick).Aggressor)
	assert.Equal(t, platform.SideSell, trades[2].(platform.TradeTick).Aggressor,
		"inside the spread the closer quote wins")
}

func TestEventLoop_ExplicitTradeSideWins(t *testing.T) {
	_, bus, ws := setupVendor(t, &exchangeHandler{}, interfaces.ModeMarketData)

	ws.Deliver(frame(t, "trades", []wireTrade{
		{Symbol: "tBTCUSD", ID: "t1", Price: 100, Amount: 1, Side: "buy"},
	}))

	trades := bus.waitFor(t, platform.KindTrade, 1)
	assert.Equal(t, platform.SideBuy, trades[0].(platform.TradeTick).Aggressor,
		"a wire-provided side is never second-guessed")
}

func TestEventLoop_BookUpdate(t *testing.T) {
	_, bus, ws := setupVendor(t, &exchangeHandler{}, interfaces.ModeMarketData)

	ws.Deliver(frame(t, "book", wireBook{
		Symbol:   "tBTCUSD",
		Bids:     [][2]float64{{100, 5}, {99.5, 10}},
		Asks:     [][2]float64{{100.5, 4}},
		Snapshot: true,
	}))

	updates := bus.waitFor(t, platform.KindLevel2, 1)
	book := updates[0].(platform.Level2Update)
	assert.True(t, book.Snapshot)
	require.Len(t, book.Bids, 2)
	assert.Equal(t, 100.0, book.Bids[0].Price)
	assert.Equal(t, 5.0, book.Bids[0].Size)
	require.Len(t, book.Asks, 1)
}

func TestEventLoop_MalformedFrameDoesNotKillLoop(t *testing.T) {
	_, bus, ws := setupVendor(t, &exchangeHandler{}, interfaces.ModeMarketData)

	ws.Deliver([]byte(`{not json`))
	ws.Deliver(frame(t, "ticker", wireTicker{Symbol: "tBTCUSD", Bid: 1, Ask: 2}))

	bus.waitFor(t, platform.KindQuote, 1)
}

func TestEventLoop_OrderFillConvergesState(t *testing.T) {
	handler := &exchangeHandler{
		orders: []wireOrder{
			{ID: "A", Symbol: "tBTCUSD", Side: "buy", Type: "LIMIT", Price: 50000, Amount: 1, Status: "ACTIVE"},
			{ID: "B", Symbol: "tETHUSD", Side: "sell", Type: "LIMIT", Price: 3000, Amount: 2, Status: "ACTIVE"},
		},
	}
	vendor, bus, ws := setupVendor(t, handler, interfaces.ModeTrading)

	ws.Deliver(frame(t, "order", wireOrder{
		ID: "A", Symbol: "tBTCUSD", Side: "buy", Type: "LIMIT",
		Price: 50000, Amount: 1, Filled: 1, Status: "EXECUTED",
		TradeID: "t77", FillPrice: 50000, FillAmount: 1, Fee: 0.1, FeeAsset: "USD",
		TS: 1717000000000,
	}))

	closes := bus.waitFor(t, platform.KindCloseOrder, 1)
	assert.Equal(t, "A", closes[0].(platform.CloseOrder).OrderID)

	execs := bus.waitFor(t, platform.KindExecution, 1)
	exec := execs[0].(platform.Execution)
	assert.Equal(t, "t77", exec.TradeID)
	assert.Equal(t, 0.1, exec.Fee)

	bus.waitFor(t, platform.KindOrderHistory, 1)

	orders, err := vendor.GetPendingOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1, "only the untouched order remains")
	assert.Equal(t, "B", orders[0].ID)
}

func TestEventLoop_AlgoDecomposition(t *testing.T) {
	vendor, bus, ws := setupVendor(t, &exchangeHandler{}, interfaces.ModeTrading)

	ws.Deliver(frame(t, "algo", wireAlgo{
		AlgoID: "algo1", Symbol: "tBTCUSD", Status: "ACTIVE",
		TakeProfit: wireAlgoLeg{Side: "sell", Price: 55000, Amount: 1},
		StopLoss:   wireAlgoLeg{Side: "sell", StopPrice: 45000, Amount: 1},
	}))

	bus.waitFor(t, platform.KindOpenOrder, 2)

	orders, err := vendor.GetPendingOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)

	byID := map[string]platform.Order{}
	for _, o := range orders {
		byID[o.ID] = o
	}
	require.Contains(t, byID, "algo1_tp")
	require.Contains(t, byID, "algo1_sl")
	assert.Equal(t, "algo1", byID["algo1_tp"].GroupID)
	assert.Equal(t, "algo1", byID["algo1_sl"].GroupID)
}

func TestEventLoop_WalletDeltasDeduplicated(t *testing.T) {
	handler := &exchangeHandler{
		wallets: []wireWallet{{Currency: "USD", Total: 1000, Available: 1000}},
	}
	_, bus, ws := setupVendor(t, handler, interfaces.ModeTrading)

	bus.waitFor(t, platform.KindBalance, 1)

	// The same balance again is suppressed; a changed one goes out.
	ws.Deliver(frame(t, "wallet", []wireWallet{{Currency: "USD", Total: 1000, Available: 1000}}))
	ws.Deliver(frame(t, "wallet", []wireWallet{{Currency: "USD", Total: 1000, Available: 800}}))

	updates := bus.waitFor(t, platform.KindBalance, 2)
	assert.Len(t, updates, 2)
	last := updates[len(updates)-1].(platform.BalanceUpdate)
	assert.Equal(t, 800.0, last.Balance.Available)
}

func TestPlaceOrder_Succeeds(t *testing.T) {
	handler := &exchangeHandler{ackID: "new-order-9"}
	vendor, _, _ := setupVendor(t, handler, interfaces.ModeTrading)

	res := vendor.PlaceOrder(context.Background(), platform.PlaceOrderRequest{
		Instrument: "tBTCUSD",
		Side:       platform.SideBuy,
		Type:       platform.OrderTypeLimit,
		Price:      50000,
		Quantity:   1,
	})

	require.True(t, res.OK, "refused: %s", res.Err)
	assert.Equal(t, "new-order-9", res.OrderID)
}

func TestPlaceOrder_UnknownInstrumentRefused(t *testing.T) {
	vendor, _, _ := setupVendor(t, &exchangeHandler{ackID: "x"}, interfaces.ModeTrading)

	res := vendor.PlaceOrder(context.Background(), platform.PlaceOrderRequest{
		Instrument: "tDOGEUSD",
	})
	assert.False(t, res.OK)
	assert.Contains(t, res.Err, "invalid symbol")
}

func TestTradingOps_RefusedInMarketDataMode(t *testing.T) {
	vendor, _, _ := setupVendor(t, &exchangeHandler{}, interfaces.ModeMarketData)

	res := vendor.PlaceOrder(context.Background(), platform.PlaceOrderRequest{Instrument: "tBTCUSD"})
	assert.False(t, res.OK)

	res = vendor.CancelOrder(context.Background(), platform.CancelOrderRequest{OrderID: "o1"})
	assert.False(t, res.OK)
}

func TestLoadHistory_AscendingBars(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	handler := &exchangeHandler{
		// Newest first, the way the wire delivers pages.
		candles: []restCandle{
			{TS: base.Add(2 * time.Hour).UnixMilli(), Open: 3, Close: 3.5},
			{TS: base.Add(time.Hour).UnixMilli(), Open: 2, Close: 2.5},
			{TS: base.UnixMilli(), Open: 1, Close: 1.5},
		},
	}
	vendor, _, _ := setupVendor(t, handler, interfaces.ModeMarketData)

	bars, err := vendor.LoadHistory(context.Background(), platform.HistoryRequest{
		Instrument: "tBTCUSD",
		Period:     platform.Period1h,
		From:       base,
		To:         base.Add(3 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, 1.0, bars[0].Open, "oldest bar first")
	assert.Equal(t, 3.0, bars[2].Open)
	assert.True(t, bars[0].Time.Before(bars[1].Time))
}

func TestLoadHistory_RateLimitClassified(t *testing.T) {
	handler := &exchangeHandler{rateLimitCandles: true}
	vendor, _, _ := setupVendor(t, handler, interfaces.ModeMarketData)

	now := time.Now().UTC().Truncate(time.Hour)
	_, err := vendor.LoadHistory(context.Background(), platform.HistoryRequest{
		Instrument: "tBTCUSD",
		Period:     platform.Period1h,
		From:       now.Add(-time.Hour),
		To:         now,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrRateLimitExceeded)

	var marketErr *interfaces.MarketError
	require.True(t, errors.As(err, &marketErr))
	assert.Equal(t, "tBTCUSD", marketErr.Symbol)
}

func TestLoadHistory_InvalidRange(t *testing.T) {
	vendor, _, _ := setupVendor(t, &exchangeHandler{}, interfaces.ModeMarketData)

	now := time.Now()
	_, err := vendor.LoadHistory(context.Background(), platform.HistoryRequest{
		Instrument: "tBTCUSD",
		From:       now,
		To:         now.Add(-time.Hour),
	})
	assert.ErrorIs(t, err, interfaces.ErrInvalidTimeRange)
}

func TestDisconnect_TearsDownState(t *testing.T) {
	handler := &exchangeHandler{}
	server := httptest.NewServer(handler)
	defer server.Close()

	bus := &recordBus{}
	ws := websocket.NewMockConnector()
	vendor := NewVendor(bus, nil, WithEndpoints(server.URL, "ws://unused"), WithWebSocket(ws))

	require.NoError(t, vendor.Connect(context.Background(), interfaces.NewSettings()))
	require.NoError(t, vendor.SubscribeSymbol("tBTCUSD", subscription.KindQuote))

	require.NoError(t, vendor.Disconnect())
	assert.Equal(t, 1, ws.CloseCalls())

	err := vendor.SubscribeSymbol("tBTCUSD", subscription.KindQuote)
	assert.ErrorIs(t, err, interfaces.ErrNotConnected)

	_, err = vendor.GetPendingOrders(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrNotConnected)
}

// setupLiveVendor wires the vendor to a real connector talking to the mock
// WebSocket server, for tests that exercise the socket lifecycle itself.
func setupLiveVendor(t *testing.T) (*Vendor, *recordBus, *websocket.MockServer) {
	t.Helper()

	server := httptest.NewServer(&exchangeHandler{})
	t.Cleanup(server.Close)

	wsServer := websocket.NewMockServer()
	t.Cleanup(wsServer.Close)

	bus := &recordBus{}
	vendor := NewVendor(bus, nil, WithEndpoints(server.URL, wsServer.URL()))
	return vendor, bus, wsServer
}

func waitForConnections(t *testing.T, wsServer *websocket.MockServer, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for wsServer.ConnectionCount() != n {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d connections, have %d", n, wsServer.ConnectionCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestConnect_SocketOutlivesConnectToken(t *testing.T) {
	vendor, bus, wsServer := setupLiveVendor(t)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, vendor.Connect(ctx, interfaces.NewSettings()))
	t.Cleanup(func() { _ = vendor.Disconnect() })
	waitForConnections(t, wsServer, 1)

	wsServer.Broadcast(frame(t, "ticker", wireTicker{Symbol: "tBTCUSD", Bid: 100, Ask: 101}))
	bus.waitFor(t, platform.KindQuote, 1)

	// Hosts drop their connect token once Connect returns; the live feed
	// must not go with it.
	cancel()
	time.Sleep(50 * time.Millisecond)

	wsServer.Broadcast(frame(t, "ticker", wireTicker{Symbol: "tBTCUSD", Bid: 102, Ask: 103}))
	bus.waitFor(t, platform.KindQuote, 2)
	assert.Equal(t, 1, wsServer.ConnectionCount(), "socket still up after the token fired")
}

func TestConnect_AfterDisconnectDeliversFrames(t *testing.T) {
	vendor, bus, wsServer := setupLiveVendor(t)
	settings := interfaces.NewSettings()

	require.NoError(t, vendor.Connect(context.Background(), settings))
	require.NoError(t, vendor.Disconnect())
	waitForConnections(t, wsServer, 0)

	require.NoError(t, vendor.Connect(context.Background(), settings))
	t.Cleanup(func() { _ = vendor.Disconnect() })
	waitForConnections(t, wsServer, 1)

	require.NoError(t, vendor.SubscribeSymbol("tBTCUSD", subscription.KindQuote))

	wsServer.Broadcast(frame(t, "ticker", wireTicker{Symbol: "tBTCUSD", Bid: 100, Ask: 101}))
	bus.waitFor(t, platform.KindQuote, 1)
}

// frame wraps a payload in the inbound envelope.
func frame(t *testing.T, typ string, payload interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	raw, err := json.Marshal(wsEnvelope{Type: typ, Data: data})
	require.NoError(t, err)
	return raw
}
