package gate

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/tradegate/kraken/types"
)

// Direction 交易方向
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// ParseDirection 大小写不敏感地解析方向
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return DirectionBuy, nil
	case "sell":
		return DirectionSell, nil
	default:
		return "", fmt.Errorf("invalid direction %q (want buy or sell)", s)
	}
}

func (d Direction) side() types.Side {
	if d == DirectionSell {
		return types.SideSell
	}
	return types.SideBuy
}

// TradeRequest 一次交易指令
type TradeRequest struct {
	Coin      string
	Amount    decimal.Decimal
	Direction Direction
	CallerID  string
}

// State 交易闸门状态
type State string

const (
	StateIdle          State = "idle"
	StateValidating    State = "validating"
	StateCooldownCheck State = "cooldown_check"
	StateLimitCheck    State = "limit_check"
	StateExecuting     State = "executing"
	StateCommitted     State = "committed"
	StateRejected      State = "rejected"
	StateIndeterminate State = "indeterminate"
)

// Terminal 是否为终态
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateRejected || s == StateIndeterminate
}

// Reason 拒绝/失败原因
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonInvalidRequest      Reason = "invalid_request"
	ReasonUnauthorized        Reason = "unauthorized"
	ReasonTradingHalted       Reason = "trading_halted"
	ReasonCooldownActive      Reason = "cooldown_active"
	ReasonDailyLimitExceeded  Reason = "daily_limit_exceeded"
	ReasonInsufficientBalance Reason = "insufficient_balance"
	ReasonLedgerUnavailable   Reason = "ledger_unavailable"
	ReasonExchangeRejected    Reason = "exchange_rejected"
	ReasonTransportError      Reason = "transport_error"
)

// Outcome 一次 Execute 的结果
type Outcome struct {
	TradeID string
	Request TradeRequest
	State   State
	Reason  Reason

	// Trail 依次经过的状态，终态在最后
	Trail []State

	// 按原因填充的细节
	RetryAfter time.Duration   // CooldownActive
	SpentToday decimal.Decimal // DailyLimitExceeded
	DailyLimit decimal.Decimal // DailyLimitExceeded
	Available  decimal.Decimal // InsufficientBalance
	Messages   []string        // ExchangeRejected
	Err        error           // 底层错误（TransportError / 查询失败等）

	Order *types.OrderResult // Committed

	// LedgerErr 订单已成交但记账失败，需要人工对账
	LedgerErr error
}

func (o *Outcome) enter(s State) {
	o.State = s
	o.Trail = append(o.Trail, s)
}

func (o *Outcome) reject(reason Reason) Outcome {
	o.Reason = reason
	o.enter(StateRejected)
	return *o
}

// Committed 订单已被交易所确认
func (o Outcome) Committed() bool { return o.State == StateCommitted }

// Message 面向调用方的可读说明
func (o Outcome) Message() string {
	switch o.State {
	case StateCommitted:
		desc := ""
		if o.Order != nil {
			desc = o.Order.Description.Order
			if len(o.Order.TxIDs) > 0 {
				desc += " txid=" + strings.Join(o.Order.TxIDs, ",")
			}
		}
		msg := fmt.Sprintf("Trade executed: %s %s %s. %s", o.Request.Direction, o.Request.Amount, strings.ToUpper(o.Request.Coin), strings.TrimSpace(desc))
		if o.LedgerErr != nil {
			msg += " Warning: daily spend was not recorded, reconcile manually."
		}
		return strings.TrimSpace(msg)
	case StateIndeterminate:
		return fmt.Sprintf("Trade outcome unknown: %v. The order may or may not have been placed; verify manually on the exchange before retrying.", o.Err)
	}

	switch o.Reason {
	case ReasonInvalidRequest:
		return fmt.Sprintf("Invalid request: %v", o.Err)
	case ReasonUnauthorized:
		return "Unauthorized user."
	case ReasonTradingHalted:
		return fmt.Sprintf("Trading halted: %v. Manual resume required.", o.Err)
	case ReasonCooldownActive:
		return fmt.Sprintf("Trade cooldown in effect. Try again in %s.", o.RetryAfter.Round(time.Second))
	case ReasonDailyLimitExceeded:
		return fmt.Sprintf("Daily spend limit exceeded: spent %s + requested %s > limit %s.", o.SpentToday, o.Request.Amount, o.DailyLimit)
	case ReasonInsufficientBalance:
		return fmt.Sprintf("Not enough %s to sell. Available: %s", strings.ToUpper(o.Request.Coin), o.Available)
	case ReasonLedgerUnavailable:
		return fmt.Sprintf("Spend ledger unavailable, trade not placed: %v", o.Err)
	case ReasonExchangeRejected:
		if len(o.Messages) > 0 {
			return "Trade failed: " + strings.Join(o.Messages, "; ")
		}
		return fmt.Sprintf("Trade failed: %v", o.Err)
	case ReasonTransportError:
		return fmt.Sprintf("Exchange unreachable, trade not placed: %v", o.Err)
	}
	return string(o.State)
}
