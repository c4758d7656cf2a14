package risk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_DisabledByDefault(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	for i := 0; i < 100; i++ {
		cb.OnError()
	}
	cb.OnIndeterminate("timeout")
	require.NoError(t, cb.AllowTrading())
}

func TestCircuitBreaker_ConsecutiveErrors(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxConsecutiveErrors: 3})

	cb.OnError()
	cb.OnError()
	cb.OnSuccess()
	cb.OnError()
	cb.OnError()
	require.NoError(t, cb.AllowTrading())

	cb.OnError()
	require.ErrorIs(t, cb.AllowTrading(), ErrCircuitBreakerOpen)
	halted, reason := cb.Halted()
	require.True(t, halted)
	require.Contains(t, reason, "3 consecutive")

	cb.Resume()
	require.NoError(t, cb.AllowTrading())
	halted, _ = cb.Halted()
	require.False(t, halted)
}

func TestCircuitBreaker_HaltOnIndeterminate(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{HaltOnIndeterminate: true})
	cb.OnIndeterminate("connection reset")

	require.ErrorIs(t, cb.AllowTrading(), ErrCircuitBreakerOpen)
	_, reason := cb.Halted()
	require.Equal(t, "order outcome unknown: connection reset", reason)
}

func TestCircuitBreaker_NilSafe(t *testing.T) {
	var cb *CircuitBreaker
	cb.OnError()
	cb.Halt("x")
	require.NoError(t, cb.AllowTrading())
}
