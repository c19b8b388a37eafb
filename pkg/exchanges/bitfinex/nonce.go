package bitfinex

import (
	"strconv"
	"sync"
	"time"
)

// offsetStep is one second in microseconds, enough to jump past another
// client of the same key.
const offsetStep int64 = 1_000_000

// maxOffset caps the corrective offset; beyond this the clock skew is not
// something a nonce bump can fix.
const maxOffset int64 = 1_000 * offsetStep

// nonceCounter issues strictly increasing request nonces for one connection.
// The exchange rejects a nonce at or below the last one it saw ("nonce too
// small", typically after another session used the same key); Bump grows a
// per-connection offset so subsequent nonces leapfrog the collision.
type nonceCounter struct {
	mu     sync.Mutex
	last   int64
	offset int64
}

// Next returns the next nonce as a decimal string of microseconds.
func (n *nonceCounter) Next() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now().UnixMicro()
	if now <= n.last {
		now = n.last + 1
	}
	n.last = now
	return strconv.FormatInt(now+n.offset, 10)
}

// Bump implements rest.NonceRetrier. It returns false once the offset cap is
// reached, at which point the pipeline surfaces the error instead of looping.
func (n *nonceCounter) Bump() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.offset >= maxOffset {
		return false
	}
	n.offset += offsetStep
	return true
}
