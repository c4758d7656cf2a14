package ledger

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// 每个驱动都跑同一组用例
func drivers(t *testing.T) map[string]Config {
	dir := t.TempDir()
	return map[string]Config{
		DriverJSON:   {Driver: DriverJSON, Path: filepath.Join(dir, "json")},
		DriverSQLite: {Driver: DriverSQLite, Path: filepath.Join(dir, "sqlite", "ledger.db")},
		DriverBadger: {Driver: DriverBadger, Path: filepath.Join(dir, "badger")},
	}
}

func TestAccountingDate(t *testing.T) {
	ny := time.FixedZone("EST", -5*3600)
	require.Equal(t, "2026-10-20", AccountingDate(time.Date(2026, 10, 19, 23, 30, 0, 0, ny)))
	require.Equal(t, "2026-10-19", AccountingDate(time.Date(2026, 10, 19, 23, 59, 59, 0, time.UTC)))
	require.Equal(t, "2026-10-20", AccountingDate(time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)))
}

func TestLedger_Contract(t *testing.T) {
	for name, cfg := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l, err := Open(cfg)
			require.NoError(t, err)
			defer l.Close()

			got, err := l.CurrentSpent(ctx, "2026-10-19")
			require.NoError(t, err)
			require.True(t, got.IsZero(), "missing record reads as zero")

			require.NoError(t, l.RecordSpend(ctx, "2026-10-19", dec("100")))
			require.NoError(t, l.RecordSpend(ctx, "2026-10-19", dec("0.25")))
			require.NoError(t, l.RecordSpend(ctx, "2026-10-18", dec("7")))

			got, err = l.CurrentSpent(ctx, "2026-10-19")
			require.NoError(t, err)
			require.True(t, dec("100.25").Equal(got), "got %s", got)

			// 新的一天从 0 开始
			got, err = l.CurrentSpent(ctx, "2026-10-20")
			require.NoError(t, err)
			require.True(t, got.IsZero())

			entries, err := l.Entries(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 2)
			require.Equal(t, "2026-10-18", entries[0].Date)
			require.True(t, dec("7").Equal(entries[0].Total))
			require.Equal(t, "2026-10-19", entries[1].Date)
		})
	}
}

func TestLedger_Validation(t *testing.T) {
	for name, cfg := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l, err := Open(cfg)
			require.NoError(t, err)
			defer l.Close()

			require.Error(t, l.RecordSpend(ctx, "19/10/2026", dec("1")))
			require.Error(t, l.RecordSpend(ctx, "2026-10-19", dec("-1")))
			_, err = l.CurrentSpent(ctx, "today")
			require.Error(t, err)

			got, err := l.CurrentSpent(ctx, "2026-10-19")
			require.NoError(t, err)
			require.True(t, got.IsZero())
		})
	}
}

// 模拟重启：关闭后用同一路径重新打开
func TestLedger_SurvivesRestart(t *testing.T) {
	for name, cfg := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l, err := Open(cfg)
			require.NoError(t, err)
			require.NoError(t, l.RecordSpend(ctx, "2026-10-19", dec("450")))
			require.NoError(t, l.Close())

			l, err = Open(cfg)
			require.NoError(t, err)
			require.NoError(t, l.RecordSpend(ctx, "2026-10-19", dec("30")))
			require.NoError(t, l.Close())

			l, err = Open(cfg)
			require.NoError(t, err)
			defer l.Close()
			got, err := l.CurrentSpent(ctx, "2026-10-19")
			require.NoError(t, err)
			require.True(t, dec("480").Equal(got), "got %s", got)
		})
	}
}

func TestLedger_ConcurrentRecordSpend(t *testing.T) {
	for name, cfg := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l, err := Open(cfg)
			require.NoError(t, err)
			defer l.Close()

			const n = 20
			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					errs <- l.RecordSpend(ctx, "2026-10-19", dec("1.5"))
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			got, err := l.CurrentSpent(ctx, "2026-10-19")
			require.NoError(t, err)
			require.True(t, dec("30").Equal(got), "got %s", got)
		})
	}
}

// 旧版本写入的 {"total": 120} 数字格式仍可读取
func TestJSONLedger_ReadsNumericTotal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "spent-2026-10-19.json"), []byte(`{"total":120}`), 0o644))

	l := NewJSONLedger(dir)
	got, err := l.CurrentSpent(context.Background(), "2026-10-19")
	require.NoError(t, err)
	require.True(t, dec("120").Equal(got))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "postgres"})
	require.Error(t, err)
}
