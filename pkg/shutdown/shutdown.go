package shutdown

import (
	"context"
	"sync"

	"github.com/betbot/tradegate/pkg/logger"
)

// Handler 关闭处理函数
type Handler func(ctx context.Context) error

type namedHandler struct {
	name string
	fn   Handler
}

// Manager 优雅关闭管理器。回调按注册的逆序串行执行：
// 先停 HTTP 入口，再关闭账本等被入口依赖的资源。
type Manager struct {
	callbacks []namedHandler
	mu        sync.Mutex
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, namedHandler{name: name, fn: handler})
}

// Shutdown 执行所有关闭回调（阻塞调用），返回第一个错误。
// ctx 应该带超时；超时后剩余回调仍会被调用，由回调自行检查 ctx。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	callbacks := make([]namedHandler, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	if len(callbacks) == 0 {
		logger.Info("没有注册的关闭回调")
		return nil
	}

	logger.Infof("开始优雅关闭，共 %d 个回调", len(callbacks))

	var firstErr error
	for i := len(callbacks) - 1; i >= 0; i-- {
		cb := callbacks[i]
		if err := cb.fn(ctx); err != nil {
			logger.Warnf("关闭 %s 失败: %v", cb.name, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		logger.Debugf("已关闭 %s", cb.name)
	}

	if err := ctx.Err(); err != nil {
		logger.Warnf("关闭超时: %v", err)
	} else {
		logger.Info("所有关闭回调已完成")
	}
	return firstErr
}
