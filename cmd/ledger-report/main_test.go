package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/betbot/tradegate/internal/ledger"
)

func seedBadger(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "ledger.badger")
	l, err := ledger.OpenBadger(dir)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, l.RecordSpend(ctx, "2026-10-18", decimal.NewFromInt(40)))
	require.NoError(t, l.RecordSpend(ctx, "2026-10-19", decimal.NewFromInt(100)))
	require.NoError(t, l.RecordSpend(ctx, "2026-10-19", decimal.RequireFromString("2.5")))
	require.NoError(t, l.Close())
	return dir
}

func TestRun_Table(t *testing.T) {
	dir := seedBadger(t)
	var out bytes.Buffer
	require.NoError(t, run([]string{"-driver", "badger", "-path", dir}, &out))
	require.Contains(t, out.String(), "2026-10-18")
	require.Contains(t, out.String(), "102.5")
	require.Regexp(t, `TOTAL\s+142.5\s+\(2 days\)`, out.String())
}

func TestRun_SinceJSON(t *testing.T) {
	dir := seedBadger(t)
	var out bytes.Buffer
	require.NoError(t, run([]string{"-driver", "badger", "-path", dir, "-since", "2026-10-19", "-json"}, &out))

	var entries []ledger.Entry
	require.NoError(t, json.Unmarshal(out.Bytes(), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "2026-10-19", entries[0].Date)
	require.True(t, decimal.RequireFromString("102.5").Equal(entries[0].Total))
}

// 出错返回后账本已关闭，badger 目录锁被释放
func TestRun_ErrorPathReleasesLedger(t *testing.T) {
	dir := seedBadger(t)
	require.Error(t, run([]string{"-driver", "badger", "-path", dir, "-since", "19-10-2026"}, &bytes.Buffer{}))
	require.Error(t, run([]string{"-driver", "nosuch"}, &bytes.Buffer{}))

	require.NoError(t, run([]string{"-driver", "badger", "-path", dir}, &bytes.Buffer{}))
	l, err := ledger.OpenBadger(dir)
	require.NoError(t, err)
	require.NoError(t, l.Close())
}
