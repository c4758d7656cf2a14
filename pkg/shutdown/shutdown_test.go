package shutdown

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestManager_ReverseOrderAndFirstError(t *testing.T) {
	m := NewManager()
	var order []string
	errLedger := errors.New("ledger close failed")

	m.OnShutdown("ledger", func(ctx context.Context) error {
		order = append(order, "ledger")
		return errLedger
	})
	m.OnShutdown("http", func(ctx context.Context) error {
		order = append(order, "http")
		return nil
	})

	err := m.Shutdown(context.Background())
	require.ErrorIs(t, err, errLedger)
	require.Equal(t, []string{"http", "ledger"}, order)
}

func TestManager_Empty(t *testing.T) {
	require.NoError(t, NewManager().Shutdown(context.Background()))
}
