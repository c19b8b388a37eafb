package subscription

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSender records every batch of channel ops.
type fakeSender struct {
	mu      sync.Mutex
	batches [][]ChannelOp
	err     error
}

func (s *fakeSender) SendChannelOps(ops []ChannelOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, ops)
	return nil
}

func (s *fakeSender) all() []ChannelOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ChannelOp
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

func (s *fakeSender) reset() {
	s.mu.Lock()
	s.batches = nil
	s.mu.Unlock()
}

func newTestMux(isIndex func(string) bool) (*Mux, *fakeSender) {
	sender := &fakeSender{}
	return NewMux(sender, isIndex, nil), sender
}

func TestMux_FirstSubscribeOpensWireChannel(t *testing.T) {
	mux, sender := newTestMux(nil)

	require.NoError(t, mux.Subscribe("tBTCUSD", KindQuote))

	require.Len(t, sender.batches, 1)
	assert.Equal(t, []ChannelOp{
		{Subscribe: true, Instrument: "tBTCUSD", Kind: KindQuote},
	}, sender.batches[0])
	assert.True(t, mux.Active("tBTCUSD", KindQuote))
}

func TestMux_OverlappingSubscribersShareOneChannel(t *testing.T) {
	mux, sender := newTestMux(nil)

	require.NoError(t, mux.Subscribe("tBTCUSD", KindTrade))
	require.NoError(t, mux.Subscribe("tBTCUSD", KindTrade))
	require.NoError(t, mux.Subscribe("tBTCUSD", KindTrade))

	// One subscribe batch for the first subscriber only.
	assert.Len(t, sender.batches, 1)
	assert.Equal(t, 3, mux.Count("tBTCUSD", KindTrade))

	sender.reset()
	require.NoError(t, mux.Unsubscribe("tBTCUSD", KindTrade))
	require.NoError(t, mux.Unsubscribe("tBTCUSD", KindTrade))
	assert.Empty(t, sender.batches, "channel stays open while subscribers remain")

	require.NoError(t, mux.Unsubscribe("tBTCUSD", KindTrade))
	require.Len(t, sender.batches, 1)
	for _, op := range sender.batches[0] {
		assert.False(t, op.Subscribe)
	}
	assert.False(t, mux.Active("tBTCUSD", KindTrade))
}

func TestMux_BaseQuoteChannelHeldForOtherKinds(t *testing.T) {
	mux, sender := newTestMux(nil)

	// Subscribing to trades opens both trades and the base quote channel,
	// batched in a single send.
	require.NoError(t, mux.Subscribe("tBTCUSD", KindTrade))
	require.Len(t, sender.batches, 1)
	assert.ElementsMatch(t, []ChannelOp{
		{Subscribe: true, Instrument: "tBTCUSD", Kind: KindQuote},
		{Subscribe: true, Instrument: "tBTCUSD", Kind: KindTrade},
	}, sender.batches[0])

	// An explicit quote subscriber arriving later causes no wire traffic.
	sender.reset()
	require.NoError(t, mux.Subscribe("tBTCUSD", KindQuote))
	assert.Empty(t, sender.batches)

	// Dropping trades keeps quote open for its explicit subscriber.
	require.NoError(t, mux.Unsubscribe("tBTCUSD", KindTrade))
	require.Len(t, sender.batches, 1)
	assert.Equal(t, []ChannelOp{
		{Subscribe: false, Instrument: "tBTCUSD", Kind: KindTrade},
	}, sender.batches[0])
	assert.True(t, mux.Active("tBTCUSD", KindQuote))

	// Dropping the last explicit quote subscriber closes the wire channel.
	sender.reset()
	require.NoError(t, mux.Unsubscribe("tBTCUSD", KindQuote))
	require.Len(t, sender.batches, 1)
	assert.Equal(t, []ChannelOp{
		{Subscribe: false, Instrument: "tBTCUSD", Kind: KindQuote},
	}, sender.batches[0])
}

func TestMux_BaseChannelSurvivesUntilLastKindGone(t *testing.T) {
	mux, sender := newTestMux(nil)

	require.NoError(t, mux.Subscribe("tBTCUSD", KindTrade))
	require.NoError(t, mux.Subscribe("tBTCUSD", KindLevel2))

	sender.reset()
	require.NoError(t, mux.Unsubscribe("tBTCUSD", KindTrade))
	assert.True(t, mux.Active("tBTCUSD", KindQuote),
		"quote stays open while level2 is active")

	require.NoError(t, mux.Unsubscribe("tBTCUSD", KindLevel2))
	assert.False(t, mux.Active("tBTCUSD", KindQuote))

	// The final batch closes level2 and quote together.
	last := sender.batches[len(sender.batches)-1]
	assert.ElementsMatch(t, []ChannelOp{
		{Subscribe: false, Instrument: "tBTCUSD", Kind: KindQuote},
		{Subscribe: false, Instrument: "tBTCUSD", Kind: KindLevel2},
	}, last)
}

func TestMux_IndexInstrumentsCollapseToQuote(t *testing.T) {
	mux, sender := newTestMux(func(ins string) bool { return ins == "tBTCUSD-INDEX" })

	require.NoError(t, mux.Subscribe("tBTCUSD-INDEX", KindLevel2))

	require.Len(t, sender.batches, 1)
	assert.Equal(t, []ChannelOp{
		{Subscribe: true, Instrument: "tBTCUSD-INDEX", Kind: KindQuote},
	}, sender.batches[0], "index instruments carry only the quote channel")

	// The matching unsubscribe releases the same quote refcount.
	sender.reset()
	require.NoError(t, mux.Unsubscribe("tBTCUSD-INDEX", KindLevel2))
	require.Len(t, sender.batches, 1)
	assert.Equal(t, []ChannelOp{
		{Subscribe: false, Instrument: "tBTCUSD-INDEX", Kind: KindQuote},
	}, sender.batches[0])
}

func TestMux_UnsubscribeWithoutSubscribeIsNoop(t *testing.T) {
	mux, sender := newTestMux(nil)

	require.NoError(t, mux.Unsubscribe("tBTCUSD", KindTrade))
	assert.Empty(t, sender.batches)
	assert.Equal(t, 0, mux.Count("tBTCUSD", KindTrade))

	// An extra release never drives the count negative: the next subscribe
	// still opens the channel.
	require.NoError(t, mux.Subscribe("tBTCUSD", KindTrade))
	require.NoError(t, mux.Unsubscribe("tBTCUSD", KindTrade))
	require.NoError(t, mux.Unsubscribe("tBTCUSD", KindTrade))
	sender.reset()
	require.NoError(t, mux.Subscribe("tBTCUSD", KindTrade))
	assert.Len(t, sender.batches, 1)
}

func TestMux_Resubscribe(t *testing.T) {
	mux, sender := newTestMux(nil)

	require.NoError(t, mux.Subscribe("tBTCUSD", KindTrade))
	require.NoError(t, mux.Subscribe("tETHUSD", KindQuote))

	sender.reset()
	require.NoError(t, mux.Resubscribe())

	require.Len(t, sender.batches, 1, "replay is one batch")
	assert.ElementsMatch(t, []ChannelOp{
		{Subscribe: true, Instrument: "tBTCUSD", Kind: KindQuote},
		{Subscribe: true, Instrument: "tBTCUSD", Kind: KindTrade},
		{Subscribe: true, Instrument: "tETHUSD", Kind: KindQuote},
	}, sender.batches[0])

	// Counts are untouched by the replay.
	assert.Equal(t, 1, mux.Count("tBTCUSD", KindTrade))
}

func TestMux_ResetDropsStateSilently(t *testing.T) {
	mux, sender := newTestMux(nil)

	require.NoError(t, mux.Subscribe("tBTCUSD", KindTrade))
	sender.reset()

	mux.Reset()
	assert.Empty(t, sender.batches)
	assert.False(t, mux.Active("tBTCUSD", KindTrade))
	require.NoError(t, mux.Resubscribe())
	assert.Empty(t, sender.batches)
}

func TestMux_SenderErrorPropagates(t *testing.T) {
	sender := &fakeSender{err: errors.New("socket closed")}
	mux := NewMux(sender, nil, nil)

	err := mux.Subscribe("tBTCUSD", KindQuote)
	assert.Error(t, err)
}
