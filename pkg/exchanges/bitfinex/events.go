package bitfinex

import (
	"context"
	"encoding/json"

	"github.com/veiloq/exchange-bridge/pkg/logging"
	"github.com/veiloq/exchange-bridge/pkg/platform"
	"github.com/veiloq/exchange-bridge/pkg/reconcile"
	"github.com/veiloq/exchange-bridge/pkg/symbols"
)

// wireStatus is a derivative status frame on the mark channel.
type wireStatus struct {
	Symbol      string  `json:"symbol"`
	MarkPrice   float64 `json:"markPrice"`
	FundingRate float64 `json:"fundingRate"`
	TS          int64   `json:"ts"`
}

// eventLoop is the only consumer of the socket's frame channel. Every frame
// is dispatched inline; handlers must not block on the bus.
func (v *Vendor) eventLoop(ctx context.Context) {
	events := v.ws.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-events:
			v.handleFrame(frame)
		}
	}
}

// handleFrame decodes one inbound frame. Undecodable frames and unknown
// types are logged and dropped; the loop itself never dies on bad input.
func (v *Vendor) handleFrame(frame []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		v.log.Warn("dropping undecodable frame", logging.Error(err))
		return
	}

	switch env.Type {
	case "ticker":
		v.handleTicker(env.Data)
	case "trades":
		v.handleTrades(env.Data)
	case "book":
		v.handleBook(env.Data)
	case "status":
		v.handleStatus(env.Data)
	case "order":
		v.handleOrder(env.Data)
	case "algo":
		v.handleAlgo(env.Data)
	case "position":
		v.handlePosition(env.Data)
	case "wallet":
		v.handleWallet(env.Data)
	case "auth", "subscribed", "unsubscribed", "info":
		// Protocol acknowledgements carry no data to forward.
	default:
		v.log.Debug("ignoring unknown frame type", logging.String("type", env.Type))
	}
}

func (v *Vendor) handleTicker(data json.RawMessage) {
	var w wireTicker
	if err := json.Unmarshal(data, &w); err != nil {
		v.log.Warn("dropping ticker frame", logging.Error(err))
		return
	}

	v.aggressor.CollectBidAsk(w.Symbol, w.Bid, w.Ask)

	at := msTime(w.TS)
	v.bus.Push(platform.QuoteTick{
		Instrument: w.Symbol,
		Bid:        w.Bid,
		BidSize:    w.BidSize,
		Ask:        w.Ask,
		AskSize:    w.AskSize,
		Time:       at,
	})
	v.bus.Push(platform.DayBar{
		Instrument: w.Symbol,
		Open:       w.Open,
		High:       w.High,
		Low:        w.Low,
		Last:       w.Last,
		Volume:     w.Volume,
		Time:       at,
	})
}

func (v *Vendor) handleTrades(data json.RawMessage) {
	var ws []wireTrade
	if err := json.Unmarshal(data, &ws); err != nil {
		v.log.Warn("dropping trades frame", logging.Error(err))
		return
	}

	for _, w := range ws {
		side := mapSide(w.Side)
		if side == platform.SideUnknown {
			side = v.aggressor.Aggressor(w.Symbol, w.Price)
		}
		v.bus.Push(platform.TradeTick{
			Instrument: w.Symbol,
			Price:      w.Price,
			Size:       w.Amount,
			Aggressor:  side,
			Time:       msTime(w.TS),
		})
	}
}

func (v *Vendor) handleBook(data json.RawMessage) {
	var w wireBook
	if err := json.Unmarshal(data, &w); err != nil {
		v.log.Warn("dropping book frame", logging.Error(err))
		return
	}

	update := platform.Level2Update{
		Instrument: w.Symbol,
		Bids:       make([]platform.BookLevel, 0, len(w.Bids)),
		Asks:       make([]platform.BookLevel, 0, len(w.Asks)),
		Snapshot:   w.Snapshot,
		Time:       msTime(w.TS),
	}
	for _, lvl := range w.Bids {
		update.Bids = append(update.Bids, platform.BookLevel{Price: lvl[0], Size: lvl[1]})
	}
	for _, lvl := range w.Asks {
		update.Asks = append(update.Asks, platform.BookLevel{Price: lvl[0], Size: lvl[1]})
	}
	v.bus.Push(update)
}

func (v *Vendor) handleStatus(data json.RawMessage) {
	var w wireStatus
	if err := json.Unmarshal(data, &w); err != nil {
		v.log.Warn("dropping status frame", logging.Error(err))
		return
	}

	at := msTime(w.TS)
	v.catalog.UpdateMeta(w.Symbol, func(m *symbols.Metadata) {
		m.FundingRate = w.FundingRate
		m.UpdatedAt = at
	})
	v.bus.Push(platform.QuoteTick{
		Instrument: w.Symbol,
		Bid:        w.MarkPrice,
		Ask:        w.MarkPrice,
		Time:       at,
	})
}

func (v *Vendor) handleOrder(data json.RawMessage) {
	var w wireOrder
	if err := json.Unmarshal(data, &w); err != nil {
		v.log.Warn("dropping order frame", logging.Error(err))
		return
	}

	if w.ClientID != "" {
		v.pending.Resolve(w.ClientID, platform.Success(w.ID))
	}

	ev := reconcile.OrderEvent{
		Order:     orderFromWire(w),
		RawStatus: w.Status,
		Time:      msTime(w.TS),
	}
	if w.TradeID != "" {
		ev.Exec = &platform.Execution{
			OrderID:    w.ID,
			TradeID:    w.TradeID,
			Instrument: w.Symbol,
			Side:       mapSide(w.Side),
			Price:      w.FillPrice,
			Quantity:   w.FillAmount,
			Fee:        w.Fee,
			FeeAsset:   w.FeeAsset,
			Time:       msTime(w.TS),
		}
	}

	if err := v.machine.ApplyOrderEvent(ev); err != nil {
		v.log.Warn("skipping order event",
			logging.String("order", w.ID),
			logging.Error(err),
		)
	}
}

func (v *Vendor) handleAlgo(data json.RawMessage) {
	var w wireAlgo
	if err := json.Unmarshal(data, &w); err != nil {
		v.log.Warn("dropping algo frame", logging.Error(err))
		return
	}

	ev := reconcile.AlgoEvent{
		AlgoID:     w.AlgoID,
		Instrument: w.Symbol,
		RawStatus:  w.Status,
		TakeProfit: algoLegFromWire(w.TakeProfit),
		StopLoss:   algoLegFromWire(w.StopLoss),
		Time:       msTime(w.TS),
	}
	if err := v.machine.ApplyAlgoEvent(ev); err != nil {
		v.log.Warn("skipping algo event",
			logging.String("algo", w.AlgoID),
			logging.Error(err),
		)
	}
}

func algoLegFromWire(w wireAlgoLeg) reconcile.AlgoLeg {
	return reconcile.AlgoLeg{
		Side:      mapSide(w.Side),
		Price:     w.Price,
		StopPrice: w.StopPrice,
		Quantity:  w.Amount,
	}
}

func (v *Vendor) handlePosition(data json.RawMessage) {
	var w wirePosition
	if err := json.Unmarshal(data, &w); err != nil {
		v.log.Warn("dropping position frame", logging.Error(err))
		return
	}

	v.machine.ApplyPositionEvent(positionFromWire(w), w.Status == "CLOSED")
}

func (v *Vendor) handleWallet(data json.RawMessage) {
	var ws []wireWallet
	if err := json.Unmarshal(data, &ws); err != nil {
		v.log.Warn("dropping wallet frame", logging.Error(err))
		return
	}

	balances := make([]platform.Balance, 0, len(ws))
	for _, w := range ws {
		balances = append(balances, platform.Balance{
			Asset:     w.Currency,
			Total:     w.Total,
			Available: w.Available,
		})
	}
	v.machine.ApplyBalances(balances)
}
