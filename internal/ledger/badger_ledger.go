package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/shopspring/decimal"
)

const badgerKeyPrefix = "spend/"

// BadgerLedger key spend/<date>，value 为 JSON 记录；SyncWrites 保证提交即落盘
type BadgerLedger struct {
	db *badger.DB
}

func OpenBadger(path string) (*BadgerLedger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("ledger: badger path is required")
	}
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithSyncWrites(true)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger ledger: %w", err)
	}
	return &BadgerLedger{db: db}, nil
}

type badgerRecord struct {
	Total     decimal.Decimal `json:"total"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func getRecord(txn *badger.Txn, key []byte) (badgerRecord, error) {
	rec := badgerRecord{Total: decimal.Zero}
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return rec, nil
		}
		return rec, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	return rec, err
}

func (l *BadgerLedger) CurrentSpent(ctx context.Context, date string) (decimal.Decimal, error) {
	if err := validateDate(date); err != nil {
		return decimal.Zero, err
	}
	var total decimal.Decimal
	err := l.db.View(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, []byte(badgerKeyPrefix+date))
		total = rec.Total
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("read daily spend: %w", err)
	}
	return total, nil
}

func (l *BadgerLedger) RecordSpend(ctx context.Context, date string, amount decimal.Decimal) error {
	if err := validateDate(date); err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	key := []byte(badgerKeyPrefix + date)

	// 读改写事务；并发冲突时 badger 返回 ErrConflict，整体重试
	for attempt := 0; ; attempt++ {
		err := l.db.Update(func(txn *badger.Txn) error {
			rec, err := getRecord(txn, key)
			if err != nil {
				return err
			}
			rec.Total = rec.Total.Add(amount)
			rec.UpdatedAt = time.Now().UTC()
			b, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			return txn.Set(key, b)
		})
		if errors.Is(err, badger.ErrConflict) && attempt < 10 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("record daily spend: %w", err)
		}
		return nil
	}
}

func (l *BadgerLedger) Entries(ctx context.Context) ([]Entry, error) {
	var out []Entry
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var rec badgerRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			out = append(out, Entry{
				Date:      strings.TrimPrefix(string(item.Key()), badgerKeyPrefix),
				Total:     rec.Total,
				UpdatedAt: rec.UpdatedAt,
			})
		}
		return nil
	})
	return out, err
}

func (l *BadgerLedger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}
