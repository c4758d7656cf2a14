package api

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/betbot/tradegate/internal/gate"
)

// Validator 把原始请求参数解析为 TradeRequest，与 HTTP 无关
type Validator struct {
	coinRegex *regexp.Regexp
	maxPlaces   int32
	maxExponent int32
}

var (
	validatorInstance *Validator
	validatorOnce     sync.Once
)

// GetValidator 返回单例
func GetValidator() *Validator {
	validatorOnce.Do(func() {
		validatorInstance = &Validator{
			coinRegex:   regexp.MustCompile(`^[A-Za-z0-9]{2,10}$`),
			maxPlaces:   8,
			maxExponent: 12,
		}
	})
	return validatorInstance
}

// ParseTradeRequest coin 为空时取 defaultAsset；amount 与 direction 必填
func (v *Validator) ParseTradeRequest(coin, amount, direction, callerID, defaultAsset string) (gate.TradeRequest, error) {
	req := gate.TradeRequest{CallerID: callerID}

	coin = strings.TrimSpace(coin)
	if coin == "" {
		coin = defaultAsset
	}
	if !v.coinRegex.MatchString(coin) {
		return req, fmt.Errorf("invalid coin %q", coin)
	}
	req.Coin = strings.ToUpper(coin)

	amount = strings.TrimSpace(amount)
	if amount == "" {
		return req, errors.New("amount is required")
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return req, fmt.Errorf("invalid amount %q", amount)
	}
	// 指数取反在 MinInt32 时溢出，直接比较；错误信息只用原始输入，避免展开超大指数
	if d.Exponent() < -v.maxPlaces {
		return req, fmt.Errorf("amount %q has more than %d decimal places", amount, v.maxPlaces)
	}
	if d.Exponent() > v.maxExponent {
		return req, fmt.Errorf("amount %q is too large", amount)
	}
	if !d.IsPositive() {
		return req, fmt.Errorf("amount must be positive, got %q", amount)
	}
	req.Amount = d

	if strings.TrimSpace(direction) == "" {
		return req, errors.New("type is required (buy or sell)")
	}
	if req.Direction, err = gate.ParseDirection(direction); err != nil {
		return req, err
	}
	return req, nil
}
