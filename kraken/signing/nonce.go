package signing

import (
	"sync/atomic"

	"github.com/betbot/tradegate/pkg/clock"
)

// NonceSource 生成严格递增的 nonce（微秒级墙钟）。
// 同一微秒内或时钟回拨时返回 last+1，保证同一凭证下不会重复。
type NonceSource struct {
	clock clock.Clock
	last  atomic.Int64
}

func NewNonceSource(c clock.Clock) *NonceSource {
	if c == nil {
		c = clock.System{}
	}
	return &NonceSource{clock: c}
}

// Next 返回下一个 nonce，可并发调用
func (n *NonceSource) Next() int64 {
	for {
		prev := n.last.Load()
		next := n.clock.Now().UnixMicro()
		if next <= prev {
			next = prev + 1
		}
		if n.last.CompareAndSwap(prev, next) {
			return next
		}
	}
}
