package clock

import (
	"sync"
	"time"
)

// Clock 时间来源。冷却窗口、记账日期和 nonce 都从这里取时间，测试里可以替换。
type Clock interface {
	Now() time.Time
}

// System 使用系统时钟
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fake 可手动推进的时钟，仅用于测试
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance 向前推进 d
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set 直接设置当前时间（允许回拨，用于模拟时钟跳变）
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}
