// Package bridge connects crypto exchanges to a host trading platform.
//
// The module is organized as a connectivity core shared by every exchange
// plus one facade package per venue:
//
//   - pkg/rest: rate-limited request pipeline with classified retries
//   - pkg/websocket: reconnecting socket delivering frames on one channel
//   - pkg/subscription: refcounting channel multiplexer
//   - pkg/history: descending-page history loader with ascending re-emit
//   - pkg/reconcile: order/position/balance reconciliation state machine
//   - pkg/market: trade aggressor inference from tracked quotes
//   - pkg/symbols: per-connection instrument catalog
//   - pkg/exchanges/bitfinex: the vendor facade wiring the core together
//
// All state is per connection. Two connections to the same venue share
// nothing, including rate-limit buckets.
package bridge
