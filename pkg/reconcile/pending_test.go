package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veiloq/exchange-bridge/pkg/platform"
)

func TestPendingOps_ResolveBeforeWait(t *testing.T) {
	p := NewPendingOps()
	op := p.Begin(OpPlace)

	require.True(t, p.Resolve(op.ID, platform.Success("o1")))
	assert.Equal(t, 0, p.Len())

	res := p.Wait(context.Background(), op, time.Second)
	assert.True(t, res.OK)
	assert.Equal(t, "o1", res.OrderID)
}

func TestPendingOps_ResolveWhileWaiting(t *testing.T) {
	p := NewPendingOps()
	op := p.Begin(OpCancel)

	go func() {
		time.Sleep(20 * time.Millisecond)
		p.Resolve(op.ID, platform.Refused("order not found"))
	}()

	res := p.Wait(context.Background(), op, time.Second)
	assert.False(t, res.OK)
	assert.Equal(t, "order not found", res.Err)
}

func TestPendingOps_Timeout(t *testing.T) {
	p := NewPendingOps()
	op := p.Begin(OpPlace)

	res := p.Wait(context.Background(), op, 20*time.Millisecond)
	assert.False(t, res.OK)
	assert.Equal(t, "operation timed out", res.Err)
	assert.Equal(t, 0, p.Len(), "timed-out entries are removed")

	// A late resolve for the removed entry is a no-op.
	assert.False(t, p.Resolve(op.ID, platform.Success("late")))
}

func TestPendingOps_Cancellation(t *testing.T) {
	p := NewPendingOps()
	op := p.Begin(OpModify)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := p.Wait(ctx, op, time.Second)
	assert.False(t, res.OK)
	assert.Equal(t, "operation cancelled", res.Err)
	assert.Equal(t, 0, p.Len())
}

func TestPendingOps_UnknownIDResolveIgnored(t *testing.T) {
	p := NewPendingOps()
	assert.False(t, p.Resolve("nope", platform.Success("x")))
}

func TestPendingOps_DistinctIDs(t *testing.T) {
	p := NewPendingOps()
	a := p.Begin(OpPlace)
	b := p.Begin(OpPlace)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, p.Len())

	p.Resolve(a.ID, platform.Success("oa"))
	assert.Equal(t, 1, p.Len())

	res := p.Wait(context.Background(), a, time.Second)
	assert.Equal(t, "oa", res.OrderID)
}
