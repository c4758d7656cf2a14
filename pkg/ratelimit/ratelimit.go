package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 速率限制器接口
type RateLimiter interface {
	Wait(ctx context.Context) error
	Allow() bool
	GetRemaining() int
}

// DecayCounter 衰减计数器限流（Kraken 私有 REST 的计数规则）：
// 每次调用计数 +cost，计数按 decayPerSecond 线性衰减，超过 max 时拒绝。
type DecayCounter struct {
	max            float64
	cost           float64
	decayPerSecond float64
	counter        float64
	lastDecay      time.Time
	now            func() time.Time
	mu             sync.Mutex
}

// NewDecayCounter 创建衰减计数器
func NewDecayCounter(max, cost, decayPerSecond float64) *DecayCounter {
	if cost <= 0 {
		cost = 1
	}
	return &DecayCounter{
		max:            max,
		cost:           cost,
		decayPerSecond: decayPerSecond,
		lastDecay:      time.Now(),
		now:            time.Now,
	}
}

// decay 按流逝时间衰减计数
func (dc *DecayCounter) decay() {
	now := dc.now()
	elapsed := now.Sub(dc.lastDecay).Seconds()
	if elapsed <= 0 {
		return
	}
	dc.counter -= elapsed * dc.decayPerSecond
	if dc.counter < 0 {
		dc.counter = 0
	}
	dc.lastDecay = now
}

// Allow 检查是否允许请求（允许时计数）
func (dc *DecayCounter) Allow() bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	dc.decay()
	if dc.counter+dc.cost > dc.max {
		return false
	}
	dc.counter += dc.cost
	return true
}

// Wait 等待直到允许请求
func (dc *DecayCounter) Wait(ctx context.Context) error {
	for {
		if dc.Allow() {
			return nil
		}

		dc.mu.Lock()
		waitTime := 100 * time.Millisecond
		if dc.decayPerSecond > 0 {
			over := dc.counter + dc.cost - dc.max
			waitTime = time.Duration(over / dc.decayPerSecond * float64(time.Second))
		}
		dc.mu.Unlock()
		if waitTime <= 0 {
			waitTime = 10 * time.Millisecond
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// GetRemaining 获取剩余可用调用次数
func (dc *DecayCounter) GetRemaining() int {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.decay()
	return int((dc.max - dc.counter) / dc.cost)
}

// SlidingWindow 滑动窗口速率限制器
type SlidingWindow struct {
	limit      int           // 限制数量
	windowSize time.Duration // 窗口大小
	requests   []time.Time   // 请求时间戳
	now        func() time.Time
	mu         sync.Mutex
}

// NewSlidingWindow 创建新的滑动窗口速率限制器
func NewSlidingWindow(limit int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:      limit,
		windowSize: windowSize,
		now:        time.Now,
	}
}

func (sw *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-sw.windowSize)
	kept := sw.requests[:0]
	for _, req := range sw.requests {
		if req.After(cutoff) {
			kept = append(kept, req)
		}
	}
	sw.requests = kept
}

// Allow 检查是否允许请求
func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now()
	sw.prune(now)
	if len(sw.requests) >= sw.limit {
		return false
	}
	sw.requests = append(sw.requests, now)
	return true
}

// Wait 等待直到允许请求
func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for {
		if sw.Allow() {
			return nil
		}

		sw.mu.Lock()
		waitTime := 100 * time.Millisecond
		if len(sw.requests) > 0 {
			waitTime = sw.windowSize - sw.now().Sub(sw.requests[0])
		}
		sw.mu.Unlock()
		if waitTime <= 0 {
			waitTime = 10 * time.Millisecond
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// GetRemaining 获取剩余请求数
func (sw *SlidingWindow) GetRemaining() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.prune(sw.now())
	if n := sw.limit - len(sw.requests); n > 0 {
		return n
	}
	return 0
}

// 端点限流 key
const (
	KrakenBalance  = "kraken:private:balance"
	KrakenAddOrder = "kraken:private:addorder"
)

// RateLimitManager 速率限制管理器
type RateLimitManager struct {
	limiters map[string]RateLimiter
	mu       sync.RWMutex
}

// NewRateLimitManager 创建带 Kraken 默认限额的管理器
func NewRateLimitManager() *RateLimitManager {
	rlm := &RateLimitManager{
		limiters: make(map[string]RateLimiter),
	}
	// Starter 档：计数上限 15，每秒衰减 0.33；查询类调用计 1
	rlm.limiters[KrakenBalance] = NewDecayCounter(15, 1, 0.33)
	// 下单走撮合引擎限额，这里保守地限制为每分钟 60 次
	rlm.limiters[KrakenAddOrder] = NewSlidingWindow(60, time.Minute)
	return rlm
}

// SetLimiter 覆盖指定端点的限流器
func (rlm *RateLimitManager) SetLimiter(endpoint string, limiter RateLimiter) {
	rlm.mu.Lock()
	defer rlm.mu.Unlock()
	rlm.limiters[endpoint] = limiter
}

// GetLimiter 获取指定端点的速率限制器，未配置时返回 nil
func (rlm *RateLimitManager) GetLimiter(endpoint string) RateLimiter {
	if rlm == nil {
		return nil
	}
	rlm.mu.RLock()
	defer rlm.mu.RUnlock()
	return rlm.limiters[endpoint]
}

// Wait 等待直到允许请求；未配置限流的端点直接放行
func (rlm *RateLimitManager) Wait(ctx context.Context, endpoint string) error {
	limiter := rlm.GetLimiter(endpoint)
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}
