package merchant

import (
	"strconv"
	"sync/atomic"
	"time"
)

// NonceSource hands out request nonces for the merchant API. A nonce is the
// current Unix time in microseconds, bumped when needed so that every value is
// strictly greater than the previous one, even if the wall clock stalls or
// steps backwards.
type NonceSource struct {
	last atomic.Int64
	now  func() time.Time
}

func NewNonceSource() *NonceSource {
	return &NonceSource{now: time.Now}
}

func (n *NonceSource) Next() string {
	current := n.now().UnixMicro()
	for {
		last := n.last.Load()
		next := current
		if next <= last {
			next = last + 1
		}
		if n.last.CompareAndSwap(last, next) {
			return strconv.FormatInt(next, 10)
		}
	}
}
