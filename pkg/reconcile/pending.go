package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veiloq/exchange-bridge/pkg/platform"
)

// OpKind names a pending trading operation.
type OpKind string

const (
	OpPlace  OpKind = "place"
	OpModify OpKind = "modify"
	OpCancel OpKind = "cancel"
	OpClose  OpKind = "close"
)

// PendingOp tracks one in-flight trading command until the exchange confirms
// or refuses it. The correlation id ties the WS acknowledgement back to the
// waiting caller.
type PendingOp struct {
	ID   string
	Kind OpKind

	done chan platform.TradingResult
}

// PendingOps is the registry of unresolved trading operations for one
// connection. Entries are removed as they resolve or time out.
type PendingOps struct {
	mu  sync.Mutex
	ops map[string]*PendingOp
}

// NewPendingOps creates an empty registry.
func NewPendingOps() *PendingOps {
	return &PendingOps{
		ops: make(map[string]*PendingOp),
	}
}

// Begin registers a new operation and returns it with a fresh correlation id.
func (p *PendingOps) Begin(kind OpKind) *PendingOp {
	op := &PendingOp{
		ID:   uuid.NewString(),
		Kind: kind,
		done: make(chan platform.TradingResult, 1),
	}

	p.mu.Lock()
	p.ops[op.ID] = op
	p.mu.Unlock()

	return op
}

// Resolve delivers the terminal result for the operation and removes it.
// Unknown ids (already resolved or timed out) are ignored.
func (p *PendingOps) Resolve(id string, result platform.TradingResult) bool {
	p.mu.Lock()
	op, ok := p.ops[id]
	if ok {
		delete(p.ops, id)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	op.done <- result
	return true
}

// Len reports how many operations are unresolved.
func (p *PendingOps) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ops)
}

// Wait blocks until the operation resolves, the timeout elapses, or ctx is
// cancelled. Timeout and cancellation both remove the entry; a late Resolve
// for it is then a no-op.
func (p *PendingOps) Wait(ctx context.Context, op *PendingOp, timeout time.Duration) platform.TradingResult {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-op.done:
		return result
	case <-timer.C:
		p.remove(op.ID)
		return platform.Refused("operation timed out")
	case <-ctx.Done():
		p.remove(op.ID)
		return platform.Refused("operation cancelled")
	}
}

func (p *PendingOps) remove(id string) {
	p.mu.Lock()
	delete(p.ops, id)
	p.mu.Unlock()
}
