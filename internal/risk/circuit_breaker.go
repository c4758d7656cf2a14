package risk

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrCircuitBreakerOpen 表示断路器已打开，禁止继续交易。
var ErrCircuitBreakerOpen = fmt.Errorf("circuit breaker open")

// CircuitBreakerConfig 断路器配置。
// 约定：阈值 <= 0 表示关闭对应限制；零值配置即完全不干预。
type CircuitBreakerConfig struct {
	// MaxConsecutiveErrors 连续下单失败（交易所拒绝/网络失败）上限。
	MaxConsecutiveErrors int64

	// HaltOnIndeterminate 下单结果未知（网络失败）时立即熔断，
	// 等人工对账后 Resume，避免调用方在不知情时重复下单。
	HaltOnIndeterminate bool
}

// CircuitBreaker 快路径只读原子变量；熔断原因低频写，用锁保护。
type CircuitBreaker struct {
	halted            atomic.Bool
	consecutiveErrors atomic.Int64

	maxConsecutiveErrors atomic.Int64
	haltOnIndeterminate  atomic.Bool

	mu     sync.Mutex
	reason string
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{}
	cb.SetConfig(cfg)
	return cb
}

func (cb *CircuitBreaker) SetConfig(cfg CircuitBreakerConfig) {
	if cb == nil {
		return
	}
	cb.maxConsecutiveErrors.Store(cfg.MaxConsecutiveErrors)
	cb.haltOnIndeterminate.Store(cfg.HaltOnIndeterminate)
}

// Halt 手动熔断（如人工介入或检测到严重异常）。
func (cb *CircuitBreaker) Halt(reason string) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	cb.reason = reason
	cb.mu.Unlock()
	cb.halted.Store(true)
}

// Resume 手动恢复（会同时清空连续错误计数）。
func (cb *CircuitBreaker) Resume() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	cb.reason = ""
	cb.mu.Unlock()
	cb.consecutiveErrors.Store(0)
	cb.halted.Store(false)
}

// Halted 返回是否熔断以及原因
func (cb *CircuitBreaker) Halted() (bool, string) {
	if cb == nil {
		return false, ""
	}
	if !cb.halted.Load() {
		return false, ""
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return true, cb.reason
}

// AllowTrading 快路径检查是否允许交易。
func (cb *CircuitBreaker) AllowTrading() error {
	if cb == nil {
		return nil
	}
	if cb.halted.Load() {
		return ErrCircuitBreakerOpen
	}
	return nil
}

// OnSuccess 在一次下单成功后调用，用于清空连续错误计数。
func (cb *CircuitBreaker) OnSuccess() {
	if cb == nil {
		return
	}
	cb.consecutiveErrors.Store(0)
}

// OnError 在一次下单失败后调用，达到上限即熔断。
func (cb *CircuitBreaker) OnError() {
	if cb == nil {
		return
	}
	n := cb.consecutiveErrors.Add(1)
	if maxErr := cb.maxConsecutiveErrors.Load(); maxErr > 0 && n >= maxErr {
		cb.Halt(fmt.Sprintf("%d consecutive order failures", n))
	}
}

// OnIndeterminate 下单结果未知时调用。
func (cb *CircuitBreaker) OnIndeterminate(detail string) {
	if cb == nil {
		return
	}
	if cb.haltOnIndeterminate.Load() {
		cb.Halt("order outcome unknown: " + detail)
		return
	}
	cb.OnError()
}
