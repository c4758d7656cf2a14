package types

import (
	"errors"
	"fmt"
	"strings"
)

// ExchangeError 交易所在响应 error 字段中明确拒绝了请求
type ExchangeError struct {
	Path       string
	StatusCode int
	Messages   []string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("kraken %s rejected: %s", e.Path, strings.Join(e.Messages, ", "))
}

// TransportError 网络层失败（超时、连接重置、非 2xx 且响应体无法解析）。
// 对下单请求而言结果未知：交易所可能已经受理。
type TransportError struct {
	Path       string
	StatusCode int // 0 表示未收到响应
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("kraken %s transport failure (http %d): %v", e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("kraken %s transport failure: %v", e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrRequestNotSent 请求在发出前被放弃（参数非法、限流等待时 ctx 结束），交易所侧不可能受理
var ErrRequestNotSent = errors.New("request not sent")
