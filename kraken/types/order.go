package types

import "github.com/shopspring/decimal"

// OrderDescription AddOrder 返回的订单描述
type OrderDescription struct {
	Order string `json:"order"`
	Close string `json:"close,omitempty"`
}

// OrderResult AddOrder 成功结果
type OrderResult struct {
	Description OrderDescription `json:"descr"`
	TxIDs       []string         `json:"txid"`
}

// MarketOrder 市价单请求
type MarketOrder struct {
	Pair          string
	Side          Side
	Volume        decimal.Decimal
	ClientOrderID string // 可选，映射到 cl_ord_id
}

// Balances Balance 返回：资产代码 -> 数量（字符串小数）
type Balances map[string]string
