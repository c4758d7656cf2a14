package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/tradegate/internal/ledger"
	"github.com/betbot/tradegate/internal/metrics"
	"github.com/betbot/tradegate/internal/risk"
	"github.com/betbot/tradegate/kraken/types"
	"github.com/betbot/tradegate/pkg/clock"
	"github.com/betbot/tradegate/pkg/persistence"
)

// Exchange 闸门依赖的交易所能力（kraken/client.Client 实现）
type Exchange interface {
	GetBalance(ctx context.Context, asset string) (decimal.Decimal, error)
	PlaceMarketOrder(ctx context.Context, order types.MarketOrder) (*types.OrderResult, error)
}

// Config 闸门参数
type Config struct {
	AuthorizedCaller string
	DailyLimit       decimal.Decimal
	Cooldown         time.Duration
	QuoteCurrency    string

	// SendClientOrderID 把 trade ID 作为 cl_ord_id 发给交易所，便于事后对账
	SendClientOrderID bool
}

// Params 构造 Gate 的依赖；Clock/Breaker/CooldownStore 可为空，Breaker 为空时只支持手动熔断
type Params struct {
	Config   Config
	Ledger   ledger.Ledger
	Exchange Exchange
	Clock    clock.Clock
	Breaker  *risk.CircuitBreaker

	// CooldownStore 非空时持久化 lastTradeAt，重启后冷却仍然有效
	CooldownStore persistence.Store
}

type cooldownRecord struct {
	LastTradeAt time.Time `json:"last_trade_at"`
}

// Gate 交易闸门：身份 -> 熔断 -> 冷却 -> 额度/余额 -> 下单 -> 提交。
//
// 冷却检查到状态提交（含网络调用）在同一把锁内完成，
// 并发请求排队等待，两个请求不可能同时通过冷却检查。
type Gate struct {
	cfg      Config
	ledger   ledger.Ledger
	exchange Exchange
	clock    clock.Clock
	breaker  *risk.CircuitBreaker
	store    persistence.Store
	log      *logrus.Entry

	closing atomic.Bool

	mu          sync.Mutex
	lastTradeAt time.Time
}

// New 校验参数并恢复持久化的冷却状态
func New(p Params) (*Gate, error) {
	if strings.TrimSpace(p.Config.AuthorizedCaller) == "" {
		return nil, fmt.Errorf("gate: authorized caller is required")
	}
	if !p.Config.DailyLimit.IsPositive() {
		return nil, fmt.Errorf("gate: daily limit must be positive, got %s", p.Config.DailyLimit)
	}
	if p.Config.Cooldown < 0 {
		return nil, fmt.Errorf("gate: cooldown must not be negative, got %s", p.Config.Cooldown)
	}
	if p.Ledger == nil || p.Exchange == nil {
		return nil, fmt.Errorf("gate: ledger and exchange are required")
	}
	if p.Config.QuoteCurrency == "" {
		p.Config.QuoteCurrency = "USD"
	}
	if p.Clock == nil {
		p.Clock = clock.System{}
	}
	if p.Breaker == nil {
		p.Breaker = risk.NewCircuitBreaker(risk.CircuitBreakerConfig{})
	}

	g := &Gate{
		cfg:      p.Config,
		ledger:   p.Ledger,
		exchange: p.Exchange,
		clock:    p.Clock,
		breaker:  p.Breaker,
		store:    p.CooldownStore,
		log:      logrus.WithField("component", "gate"),
	}

	if g.store != nil {
		var rec cooldownRecord
		switch err := g.store.Load(&rec); {
		case err == nil:
			g.lastTradeAt = rec.LastTradeAt
			g.log.Infof("restored cooldown state: last_trade_at=%s", rec.LastTradeAt.Format(time.RFC3339))
		case errors.Is(err, persistence.ErrNotExists):
		default:
			return nil, fmt.Errorf("gate: load cooldown state: %w", err)
		}
	}
	return g, nil
}

// Pair 交易对，如 XRP/USD
func (g *Gate) Pair(coin string) string {
	return strings.ToUpper(coin) + "/" + strings.ToUpper(g.cfg.QuoteCurrency)
}

// Execute 依次通过各道闸门，全部通过才下单；仅在交易所确认成功后提交状态。
func (g *Gate) Execute(ctx context.Context, req TradeRequest) Outcome {
	out := g.execute(ctx, req)
	metrics.RecordOutcome(string(out.State), string(out.Reason), out.LedgerErr != nil)
	return out
}

func (g *Gate) execute(ctx context.Context, req TradeRequest) Outcome {
	out := Outcome{TradeID: uuid.NewString(), Request: req}
	out.enter(StateIdle)
	log := g.log.WithField("trade_id", out.TradeID)

	out.enter(StateValidating)
	if req.CallerID != g.cfg.AuthorizedCaller {
		log.WithField("caller", req.CallerID).Info("rejected: unauthorized caller")
		return out.reject(ReasonUnauthorized)
	}
	if err := validateRequest(req); err != nil {
		out.Err = err
		log.Infof("rejected: %v", err)
		return out.reject(ReasonInvalidRequest)
	}
	log = log.WithFields(logrus.Fields{
		"coin":      req.Coin,
		"amount":    req.Amount.String(),
		"direction": req.Direction,
	})
	if g.haltedReject(&out, log) {
		return out
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// 排队期间前一笔交易可能已触发熔断或网关正在关闭
	if g.haltedReject(&out, log) {
		return out
	}

	now := g.clock.Now()

	out.enter(StateCooldownCheck)
	if !g.lastTradeAt.IsZero() {
		elapsed := now.Sub(g.lastTradeAt)
		if elapsed < g.cfg.Cooldown {
			out.RetryAfter = g.cfg.Cooldown - elapsed
			log.Infof("rejected: cooldown active, retry after %s", out.RetryAfter.Round(time.Second))
			return out.reject(ReasonCooldownActive)
		}
	}

	// 结果确定前不随调用方取消而中断
	execCtx := context.WithoutCancel(ctx)
	today := ledger.AccountingDate(now)

	out.enter(StateLimitCheck)
	switch req.Direction {
	case DirectionBuy:
		spent, err := g.ledger.CurrentSpent(execCtx, today)
		if err != nil {
			out.Err = err
			log.WithError(err).Warn("rejected: read spend ledger failed")
			return out.reject(ReasonLedgerUnavailable)
		}
		if spent.Add(req.Amount).GreaterThan(g.cfg.DailyLimit) {
			out.SpentToday = spent
			out.DailyLimit = g.cfg.DailyLimit
			log.Infof("rejected: daily limit exceeded (spent=%s limit=%s)", spent, g.cfg.DailyLimit)
			return out.reject(ReasonDailyLimitExceeded)
		}
	case DirectionSell:
		available, err := g.exchange.GetBalance(execCtx, req.Coin)
		if err != nil {
			out.Err = err
			return g.rejectExchangeFailure(&out, log, err, "balance query")
		}
		if available.LessThan(req.Amount) {
			out.Available = available
			log.Infof("rejected: insufficient balance (available=%s)", available)
			return out.reject(ReasonInsufficientBalance)
		}
	}

	out.enter(StateExecuting)
	order := types.MarketOrder{
		Pair:   g.Pair(req.Coin),
		Side:   req.Direction.side(),
		Volume: req.Amount,
	}
	if g.cfg.SendClientOrderID {
		order.ClientOrderID = out.TradeID
	}
	log.Infof("placing market order %s %s %s", order.Side, order.Volume, order.Pair)

	res, err := g.exchange.PlaceMarketOrder(execCtx, order)
	if err != nil {
		out.Err = err
		var transportErr *types.TransportError
		switch {
		case errors.As(err, &transportErr):
			out.Reason = ReasonTransportError
			out.enter(StateIndeterminate)
			log.WithError(err).Error("order outcome unknown, verify manually before retrying")
			g.breaker.OnIndeterminate(err.Error())
			return out
		case errors.Is(err, types.ErrRequestNotSent):
			log.WithError(err).Warn("rejected: order not sent")
			return out.reject(ReasonExchangeRejected)
		}
		var exErr *types.ExchangeError
		if errors.As(err, &exErr) {
			out.Messages = exErr.Messages
			log.WithField("errors", exErr.Messages).Warn("order rejected by exchange")
			g.breaker.OnError()
			return out.reject(ReasonExchangeRejected)
		}
		// 无法归类的错误按结果未知处理
		out.Reason = ReasonTransportError
		out.enter(StateIndeterminate)
		log.WithError(err).Error("order failed with unclassified error, outcome unknown")
		g.breaker.OnIndeterminate(err.Error())
		return out
	}

	if res == nil {
		res = &types.OrderResult{}
	}
	g.commit(execCtx, &out, log, now, today)
	out.Order = res
	out.enter(StateCommitted)
	g.breaker.OnSuccess()
	log.WithField("txid", res.TxIDs).Info("order committed")
	return out
}

// haltedReject 熔断或关闭中时拒绝请求
func (g *Gate) haltedReject(out *Outcome, log *logrus.Entry) bool {
	if g.closing.Load() {
		out.Err = errors.New("gateway shutting down")
	} else if err := g.breaker.AllowTrading(); err != nil {
		_, reason := g.breaker.Halted()
		out.Err = errors.New(reason)
	} else {
		return false
	}
	log.Infof("rejected: trading halted (%v)", out.Err)
	out.reject(ReasonTradingHalted)
	return true
}

// Close 停止接受新交易并等待进行中的交易（含账本写入）完成。
// ctx 到期前未完成则返回错误，此时不应关闭账本。
func (g *Gate) Close(ctx context.Context) error {
	g.closing.Store(true)
	done := make(chan struct{})
	go func() {
		// 拿到锁即没有进行中的交易
		g.mu.Lock()
		g.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		g.log.Info("gate drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("gate: in-flight trade still running: %w", ctx.Err())
	}
}

// commit 仅在交易所确认成功后调用；调用方持有 g.mu
func (g *Gate) commit(ctx context.Context, out *Outcome, log *logrus.Entry, now time.Time, today string) {
	if now.After(g.lastTradeAt) {
		g.lastTradeAt = now
	}
	if g.store != nil {
		if err := g.store.Save(cooldownRecord{LastTradeAt: g.lastTradeAt}); err != nil {
			log.WithError(err).Error("persist cooldown state failed")
		}
	}

	if out.Request.Direction != DirectionBuy {
		return
	}
	if err := g.ledger.RecordSpend(ctx, today, out.Request.Amount); err != nil {
		out.LedgerErr = err
		log.WithError(err).Errorf("order placed but spend of %s on %s was not recorded, reconcile manually", out.Request.Amount, today)
	}
}

// rejectExchangeFailure 下单前的查询失败：没有订单发出，按拒绝处理
func (g *Gate) rejectExchangeFailure(out *Outcome, log *logrus.Entry, err error, what string) Outcome {
	var exErr *types.ExchangeError
	if errors.As(err, &exErr) {
		out.Messages = exErr.Messages
		log.WithField("errors", exErr.Messages).Warnf("rejected: %s refused by exchange", what)
		return out.reject(ReasonExchangeRejected)
	}
	log.WithError(err).Warnf("rejected: %s failed", what)
	return out.reject(ReasonTransportError)
}

const maxAmountScale = 18

func validateRequest(req TradeRequest) error {
	if strings.TrimSpace(req.Coin) == "" {
		return fmt.Errorf("coin is required")
	}
	// 超大或超精度的指数会让 String() 展开成巨型字符串
	if exp := req.Amount.Exponent(); exp < -maxAmountScale || exp > maxAmountScale {
		return fmt.Errorf("amount exponent %d out of range", exp)
	}
	if !req.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", req.Amount)
	}
	if req.Direction != DirectionBuy && req.Direction != DirectionSell {
		return fmt.Errorf("invalid direction %q", req.Direction)
	}
	return nil
}

// Status 闸门当前状态快照
type Status struct {
	LastTradeAt       time.Time       `json:"last_trade_at,omitempty"`
	CooldownRemaining time.Duration   `json:"cooldown_remaining"`
	AccountingDate    string          `json:"accounting_date"`
	SpentToday        decimal.Decimal `json:"spent_today"`
	DailyLimit        decimal.Decimal `json:"daily_limit"`
	Halted            bool            `json:"halted"`
	HaltReason        string          `json:"halt_reason,omitempty"`
}

// Status 会等待进行中的交易完成
func (g *Gate) Status(ctx context.Context) (Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	st := Status{
		LastTradeAt:    g.lastTradeAt,
		AccountingDate: ledger.AccountingDate(now),
		DailyLimit:     g.cfg.DailyLimit,
	}
	if !g.lastTradeAt.IsZero() {
		if rem := g.cfg.Cooldown - now.Sub(g.lastTradeAt); rem > 0 {
			st.CooldownRemaining = rem
		}
	}
	st.Halted, st.HaltReason = g.breaker.Halted()

	spent, err := g.ledger.CurrentSpent(ctx, st.AccountingDate)
	if err != nil {
		return st, fmt.Errorf("read spend ledger: %w", err)
	}
	st.SpentToday = spent
	return st, nil
}

// Resume 解除熔断
func (g *Gate) Resume() {
	g.breaker.Resume()
	g.log.Info("trading resumed")
}

// Halt 手动熔断
func (g *Gate) Halt(reason string) {
	g.breaker.Halt(reason)
	g.log.Warnf("trading halted: %s", reason)
}

// Authorized 调用方是否为唯一授权身份
func (g *Gate) Authorized(callerID string) bool {
	return callerID != "" && callerID == g.cfg.AuthorizedCaller
}
