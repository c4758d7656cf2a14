package api

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/betbot/tradegate/internal/gate"
)

// tradeResponse Accept: application/json 时的响应体
type tradeResponse struct {
	TradeID   string   `json:"trade_id,omitempty"`
	State     string   `json:"state"`
	Reason    string   `json:"reason,omitempty"`
	Message   string   `json:"message"`
	TxIDs     []string `json:"txid,omitempty"`
	Available string   `json:"available,omitempty"`
}

// param 先查 query，再查表单
func param(c *gin.Context, key string) string {
	if v, ok := c.GetQuery(key); ok {
		return v
	}
	return c.PostForm(key)
}

func (s *Server) handleTrade(c *gin.Context) {
	status, out, msg := s.execute(c.Request.Context(),
		param(c, "coin"), param(c, "amount"), param(c, "type"), param(c, "user"))

	if out.TradeID != "" {
		c.Header(TradeIDHeaderKey, out.TradeID)
	}
	if status == http.StatusTooManyRequests && out.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(out.RetryAfter.Seconds()))))
	}

	switch c.NegotiateFormat(gin.MIMEPlain, gin.MIMEJSON) {
	case gin.MIMEJSON:
		resp := tradeResponse{
			TradeID: out.TradeID,
			State:   string(out.State),
			Reason:  string(out.Reason),
			Message: msg,
		}
		if out.Order != nil {
			resp.TxIDs = out.Order.TxIDs
		}
		if out.Reason == gate.ReasonInsufficientBalance {
			resp.Available = out.Available.String()
		}
		c.JSON(status, resp)
	default:
		c.String(status, msg)
	}
}

// HandleTrade 解析原始参数并交给交易闸门，返回 HTTP 状态码和说明文字
func (s *Server) HandleTrade(ctx context.Context, coin, amount, direction, callerID string) (int, string) {
	status, _, msg := s.execute(ctx, coin, amount, direction, callerID)
	return status, msg
}

func (s *Server) execute(ctx context.Context, coin, amount, direction, callerID string) (int, gate.Outcome, string) {
	// 身份校验优先于参数解析，未授权调用方不触发任何解析
	if !s.gate.Authorized(callerID) {
		out := gate.Outcome{State: gate.StateRejected, Reason: gate.ReasonUnauthorized}
		s.log.WithField("caller", callerID).Info("rejected: unauthorized caller")
		return http.StatusForbidden, out, out.Message()
	}
	req, err := s.validator.ParseTradeRequest(coin, amount, direction, callerID, s.cfg.DefaultAsset)
	if err != nil {
		out := gate.Outcome{State: gate.StateRejected, Reason: gate.ReasonInvalidRequest, Err: err}
		return http.StatusBadRequest, out, out.Message()
	}

	out := s.gate.Execute(ctx, req)
	return StatusCode(out), out, out.Message()
}

// StatusCode 把闸门结果映射为 HTTP 状态码
func StatusCode(out gate.Outcome) int {
	switch out.State {
	case gate.StateCommitted:
		return http.StatusOK
	case gate.StateIndeterminate:
		return http.StatusInternalServerError
	}
	switch out.Reason {
	case gate.ReasonUnauthorized, gate.ReasonDailyLimitExceeded, gate.ReasonInsufficientBalance:
		return http.StatusForbidden
	case gate.ReasonCooldownActive:
		return http.StatusTooManyRequests
	case gate.ReasonInvalidRequest:
		return http.StatusBadRequest
	case gate.ReasonTradingHalted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type statusResponse struct {
	LastTradeAt       *time.Time `json:"last_trade_at,omitempty"`
	CooldownRemaining string     `json:"cooldown_remaining"`
	AccountingDate    string     `json:"accounting_date"`
	SpentToday        string     `json:"spent_today"`
	DailyLimit        string     `json:"daily_limit"`
	Halted            bool       `json:"halted"`
	HaltReason        string     `json:"halt_reason,omitempty"`
}

func (s *Server) handleStatus(c *gin.Context) {
	if !s.gate.Authorized(param(c, "user")) {
		c.String(http.StatusForbidden, "Unauthorized user.")
		return
	}
	st, err := s.gate.Status(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Warn("status: read gate state failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := statusResponse{
		CooldownRemaining: st.CooldownRemaining.Round(time.Second).String(),
		AccountingDate:    st.AccountingDate,
		SpentToday:        st.SpentToday.String(),
		DailyLimit:        st.DailyLimit.String(),
		Halted:            st.Halted,
		HaltReason:        st.HaltReason,
	}
	if !st.LastTradeAt.IsZero() {
		t := st.LastTradeAt.UTC()
		resp.LastTradeAt = &t
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleResume(c *gin.Context) {
	if !s.gate.Authorized(param(c, "user")) {
		c.String(http.StatusForbidden, "Unauthorized user.")
		return
	}
	s.gate.Resume()
	c.String(http.StatusOK, "Trading resumed.")
}

func (s *Server) handleHalt(c *gin.Context) {
	if !s.gate.Authorized(param(c, "user")) {
		c.String(http.StatusForbidden, "Unauthorized user.")
		return
	}
	reason := param(c, "reason")
	if reason == "" {
		reason = "halted by operator"
	}
	s.gate.Halt(reason)
	c.String(http.StatusOK, "Trading halted.")
}
