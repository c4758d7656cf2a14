package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout 记账日期格式（UTC 自然日）
const DateLayout = "2006-01-02"

// Ledger 按自然日累计买入花费，进程重启后仍然有效。
//
// RecordSpend 每次调用都是独立、完整落盘的事务；并发调用安全。
type Ledger interface {
	// CurrentSpent 返回 date 当天的累计花费，无记录时返回 0
	CurrentSpent(ctx context.Context, date string) (decimal.Decimal, error)
	// RecordSpend 原子地把 amount 加到 date 当天的累计值上
	RecordSpend(ctx context.Context, date string, amount decimal.Decimal) error
	// Entries 返回全部历史记录，按日期升序
	Entries(ctx context.Context) ([]Entry, error)
	Close() error
}

// Entry 某一天的累计花费
type Entry struct {
	Date      string          `json:"date"`
	Total     decimal.Decimal `json:"total"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AccountingDate 把时间截断为 UTC 自然日
func AccountingDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

func validateDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("invalid accounting date %q: %w", date, err)
	}
	return nil
}

func validateAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("spend amount must not be negative, got %s", amount)
	}
	return nil
}

// 支持的存储驱动
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// Config 账本存储配置
type Config struct {
	Driver string // json | sqlite | badger
	Path   string // json: 目录；sqlite: 文件；badger: 目录
}

// Open 按驱动打开账本
func Open(cfg Config) (Ledger, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverJSON:
		path := cfg.Path
		if path == "" {
			path = "logs"
		}
		return NewJSONLedger(path), nil
	case DriverSQLite:
		path := cfg.Path
		if path == "" {
			path = "data/ledger.db"
		}
		return OpenSQLite(path)
	case DriverBadger:
		path := cfg.Path
		if path == "" {
			path = "data/ledger.badger"
		}
		return OpenBadger(path)
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.Driver)
	}
}
