package types

import (
	"encoding/json"
	"net/url"
	"strings"
)

// Side 订单方向（Kraken AddOrder 的 type 字段）
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType 订单类型（ordertype 字段）
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
)

// ApiKeyCreds API 密钥凭证
type ApiKeyCreds struct {
	Key    string
	Secret string // base64
}

// Params 有序的请求参数。编码顺序即插入顺序，签名和请求体使用同一份编码。
type Params struct {
	keys   []string
	values map[string]string
}

// NewParams 创建空参数表
func NewParams() *Params {
	return &Params{values: make(map[string]string)}
}

// Set 设置参数；已存在的 key 保留原位置
func (p *Params) Set(key, value string) *Params {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
	return p
}

// Get 读取参数
func (p *Params) Get(key string) string {
	if p == nil {
		return ""
	}
	return p.values[key]
}

// Keys 按编码顺序返回参数名
func (p *Params) Keys() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Encode 编码为 application/x-www-form-urlencoded
func (p *Params) Encode() string {
	if p == nil || len(p.keys) == 0 {
		return ""
	}
	var b strings.Builder
	for i, k := range p.keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.values[k]))
	}
	return b.String()
}

// SignedRequest 一次出站私有 API 请求（签名后）
type SignedRequest struct {
	Path      string
	Body      *Params
	Nonce     int64
	Signature string
}

// Envelope Kraken REST 响应外壳：error 非空即失败，与 HTTP 状态无关
type Envelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

// Failed 是否携带交易所错误
func (e *Envelope) Failed() bool {
	return e != nil && len(e.Error) > 0
}
