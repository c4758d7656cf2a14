package ledger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/tradegate/pkg/persistence"
)

const jsonFilePrefix = "spent-"

// jsonRecord 文件内容，兼容旧格式 {"total": 100}
type jsonRecord struct {
	Total     decimal.Decimal `json:"total"`
	UpdatedAt time.Time       `json:"updated_at,omitempty"`
}

// JSONLedger 每天一个 spent-YYYY-MM-DD.json 文件。
// 只保证单进程内的并发安全；同一目录不要由多个进程同时写。
type JSONLedger struct {
	mu  sync.Mutex
	svc *persistence.JSONFileService
	now func() time.Time
}

func NewJSONLedger(dir string) *JSONLedger {
	return &JSONLedger{
		svc: persistence.NewJSONFileService(dir),
		now: time.Now,
	}
}

func (l *JSONLedger) load(date string) (jsonRecord, error) {
	var rec jsonRecord
	err := l.svc.NewStore(jsonFilePrefix + date).Load(&rec)
	if errors.Is(err, persistence.ErrNotExists) {
		return jsonRecord{Total: decimal.Zero}, nil
	}
	return rec, err
}

func (l *JSONLedger) CurrentSpent(ctx context.Context, date string) (decimal.Decimal, error) {
	if err := validateDate(date); err != nil {
		return decimal.Zero, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.load(date)
	if err != nil {
		return decimal.Zero, err
	}
	return rec.Total, nil
}

func (l *JSONLedger) RecordSpend(ctx context.Context, date string, amount decimal.Decimal) error {
	if err := validateDate(date); err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.load(date)
	if err != nil {
		return err
	}
	rec.Total = rec.Total.Add(amount)
	rec.UpdatedAt = l.now().UTC()
	return l.svc.NewStore(jsonFilePrefix + date).Save(rec)
}

func (l *JSONLedger) Entries(ctx context.Context) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	names, err := l.svc.List(jsonFilePrefix)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(names))
	for _, name := range names {
		date := strings.TrimPrefix(name, jsonFilePrefix)
		if validateDate(date) != nil {
			continue
		}
		rec, err := l.load(date)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Date: date, Total: rec.Total, UpdatedAt: rec.UpdatedAt})
	}
	return out, nil
}

func (l *JSONLedger) Close() error { return nil }
