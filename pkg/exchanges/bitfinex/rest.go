package bitfinex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/veiloq/exchange-bridge/pkg/exchanges/interfaces"
	"github.com/veiloq/exchange-bridge/pkg/platform"
	"github.com/veiloq/exchange-bridge/pkg/ratelimit"
	"github.com/veiloq/exchange-bridge/pkg/rest"
	"github.com/veiloq/exchange-bridge/pkg/symbols"
)

// Endpoint categories, one rate bucket each.
const (
	catInstruments ratelimit.Category = "instruments"
	catGetOrders   ratelimit.Category = "get-orders"
	catWallet      ratelimit.Category = "wallet"
	catPlaceOrder  ratelimit.Category = "place-order"
	catCancelOrder ratelimit.Category = "cancel-order"
	catHistory     ratelimit.Category = "history"
)

// bucketRates are the documented requests-per-window limits per category.
var bucketRates = map[ratelimit.Category]ratelimit.Rate{
	catInstruments: {Limit: 10, Interval: time.Minute},
	catGetOrders:   {Limit: 90, Interval: time.Minute},
	catWallet:      {Limit: 45, Interval: time.Minute},
	catPlaceOrder:  {Limit: 45, Interval: time.Minute},
	catCancelOrder: {Limit: 90, Interval: time.Minute},
	catHistory:     {Limit: 30, Interval: time.Minute},
}

// nonceTooSmallCode is the exchange's replay rejection code.
const nonceTooSmallCode = "10114"

// classifyError maps a classified REST failure onto the vendor error
// sentinels so hosts can branch with errors.Is. Errors that carry no
// HTTP classification pass through untouched.
func classifyError(err error) error {
	var reqErr *rest.RequestError
	if !errors.As(err, &reqErr) {
		return err
	}
	switch {
	case reqErr.RateLimited():
		return fmt.Errorf("%w: %s", interfaces.ErrRateLimitExceeded, rest.Cause(err))
	case reqErr.Status == http.StatusUnauthorized || reqErr.Status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", interfaces.ErrInvalidCredentials, rest.Cause(err))
	case reqErr.Status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", interfaces.ErrExchangeUnavailable, rest.Cause(err))
	default:
		return err
	}
}

type restInstrument struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	TickSize    float64 `json:"tickSize"`
	LotSize     float64 `json:"lotSize"`
	Margin      bool    `json:"margin"`
	Kind        string  `json:"kind"`
	FundingRate float64 `json:"fundingRate"`
	MaxLeverage float64 `json:"maxLeverage"`
}

type restCandle struct {
	TS     int64   `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type restOrderAck struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type restError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// signedRequest builds a private request with the nonce and HMAC headers.
func (v *Vendor) signedRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("error marshaling request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, v.restURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	nonce := v.nonce.Next()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("bfx-apikey", v.settings.APIKey)
	req.Header.Set("bfx-nonce", nonce)
	req.Header.Set("bfx-signature", v.signer.SHA384("/api"+path+nonce+string(payload)))
	return req, nil
}

// decodeAuth reads a private-endpoint response, converting wire errors into
// classified *rest.RequestError values the pipeline understands.
func decodeAuth(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var wireErr restError
		_ = json.Unmarshal(raw, &wireErr)

		reqErr := &rest.RequestError{
			Status:        resp.StatusCode,
			Code:          wireErr.Code,
			Message:       wireErr.Message,
			NonceTooSmall: wireErr.Code == nonceTooSmallCode,
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			if secs, perr := strconv.Atoi(resp.Header.Get("Retry-After")); perr == nil && secs > 0 {
				reqErr.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return reqErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

func (v *Vendor) fetchInstruments(ctx context.Context) ([]symbols.Instrument, error) {
	var wire []restInstrument
	err := v.pipeline.Execute(ctx, catInstruments, func(ctx context.Context) error {
		resp, err := v.client.Get(ctx, v.restURL+"/v2/instruments")
		if err != nil {
			return err
		}
		return rest.DecodeResponse(resp, &wire)
	})
	if err != nil {
		return nil, err
	}

	out := make([]symbols.Instrument, 0, len(wire))
	for _, w := range wire {
		out = append(out, symbols.Instrument{
			ID:       w.ID,
			Name:     w.Name,
			TickSize: w.TickSize,
			LotSize:  w.LotSize,
			Margin:   w.Margin,
			Kind:     instrumentKind(w.Kind),
			Meta: symbols.Metadata{
				FundingRate: w.FundingRate,
				MaxLeverage: w.MaxLeverage,
				UpdatedAt:   time.Now().UTC(),
			},
		})
	}
	return out, nil
}

func instrumentKind(raw string) symbols.Kind {
	switch raw {
	case "derivative":
		return symbols.KindDerivative
	case "index":
		return symbols.KindIndex
	case "option":
		return symbols.KindOption
	default:
		return symbols.KindSpot
	}
}

func (v *Vendor) fetchOpenOrders(ctx context.Context) ([]platform.Order, error) {
	var wire []wireOrder
	err := v.pipeline.Execute(ctx, catGetOrders, func(ctx context.Context) error {
		req, err := v.signedRequest(ctx, http.MethodGet, "/v2/auth/orders", nil)
		if err != nil {
			return err
		}
		resp, err := v.client.Do(ctx, req)
		if err != nil {
			return err
		}
		return decodeAuth(resp, &wire)
	})
	if err != nil {
		return nil, err
	}

	out := make([]platform.Order, 0, len(wire))
	for _, w := range wire {
		out = append(out, orderFromWire(w))
	}
	return out, nil
}

func orderFromWire(w wireOrder) platform.Order {
	status, ok := mapOrderStatus(w.Status)
	if !ok {
		status = platform.OrderOpened
	}
	return platform.Order{
		ID:         w.ID,
		GroupID:    w.GroupID,
		Instrument: w.Symbol,
		Side:       mapSide(w.Side),
		Type:       mapOrderType(w.Type),
		Price:      w.Price,
		StopPrice:  w.StopPrice,
		Quantity:   w.Amount,
		Filled:     w.Filled,
		Status:     status,
		UpdatedAt:  msTime(w.TS),
	}
}

func (v *Vendor) fetchPositions(ctx context.Context) ([]platform.Position, error) {
	var wire []wirePosition
	err := v.pipeline.Execute(ctx, catGetOrders, func(ctx context.Context) error {
		req, err := v.signedRequest(ctx, http.MethodGet, "/v2/auth/positions", nil)
		if err != nil {
			return err
		}
		resp, err := v.client.Do(ctx, req)
		if err != nil {
			return err
		}
		return decodeAuth(resp, &wire)
	})
	if err != nil {
		return nil, err
	}

	out := make([]platform.Position, 0, len(wire))
	for _, w := range wire {
		out = append(out, positionFromWire(w))
	}
	return out, nil
}

func positionFromWire(w wirePosition) platform.Position {
	return platform.Position{
		ID:          w.ID,
		Instrument:  w.Symbol,
		Side:        mapSide(w.Side),
		Quantity:    w.Amount,
		EntryPrice:  w.BasePrice,
		MarkPrice:   w.MarkPrice,
		Liquidation: w.LiqPrice,
		UpdatedAt:   msTime(w.TS),
	}
}

func (v *Vendor) fetchBalances(ctx context.Context) ([]platform.Balance, error) {
	var wire []wireWallet
	err := v.pipeline.Execute(ctx, catWallet, func(ctx context.Context) error {
		req, err := v.signedRequest(ctx, http.MethodGet, "/v2/auth/wallets", nil)
		if err != nil {
			return err
		}
		resp, err := v.client.Do(ctx, req)
		if err != nil {
			return err
		}
		return decodeAuth(resp, &wire)
	})
	if err != nil {
		return nil, err
	}

	out := make([]platform.Balance, 0, len(wire))
	for _, w := range wire {
		out = append(out, platform.Balance{
			Asset:     w.Currency,
			Total:     w.Total,
			Available: w.Available,
		})
	}
	return out, nil
}

// fetchCandles loads one history page, newest first, inside [from, to).
func (v *Vendor) fetchCandles(ctx context.Context, instrument string, period platform.HistoryPeriod, from, to time.Time, limit int) ([]restCandle, error) {
	q := url.Values{}
	q.Set("symbol", instrument)
	q.Set("period", string(period))
	q.Set("start", strconv.FormatInt(from.UnixMilli(), 10))
	q.Set("end", strconv.FormatInt(to.UnixMilli(), 10))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("sort", "-1")

	var wire []restCandle
	err := v.pipeline.Execute(ctx, catHistory, func(ctx context.Context) error {
		resp, err := v.client.Get(ctx, v.restURL+"/v2/candles?"+q.Encode())
		if err != nil {
			return err
		}
		return rest.DecodeResponse(resp, &wire)
	})
	if err != nil {
		return nil, err
	}
	return wire, nil
}

func (v *Vendor) submitOrder(ctx context.Context, body interface{}) (restOrderAck, error) {
	return v.tradingPost(ctx, catPlaceOrder, "/v2/auth/order/submit", body)
}

func (v *Vendor) updateOrder(ctx context.Context, body interface{}) (restOrderAck, error) {
	return v.tradingPost(ctx, catPlaceOrder, "/v2/auth/order/update", body)
}

func (v *Vendor) cancelOrder(ctx context.Context, body interface{}) (restOrderAck, error) {
	return v.tradingPost(ctx, catCancelOrder, "/v2/auth/order/cancel", body)
}

func (v *Vendor) closePosition(ctx context.Context, body interface{}) (restOrderAck, error) {
	return v.tradingPost(ctx, catCancelOrder, "/v2/auth/position/close", body)
}

func (v *Vendor) tradingPost(ctx context.Context, category ratelimit.Category, path string, body interface{}) (restOrderAck, error) {
	var ack restOrderAck
	err := v.pipeline.Execute(ctx, category, func(ctx context.Context) error {
		req, err := v.signedRequest(ctx, http.MethodPost, path, body)
		if err != nil {
			return err
		}
		resp, err := v.client.Do(ctx, req)
		if err != nil {
			return err
		}
		return decodeAuth(resp, &ack)
	})
	return ack, err
}
