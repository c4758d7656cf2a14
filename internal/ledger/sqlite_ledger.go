package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteLedger 表 daily_spend(date, total, updated_at)；total 以十进制字符串保存，避免浮点误差
type SQLiteLedger struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir ledger dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接，写入天然串行
	db.SetMaxIdleConns(1)

	l := &SQLiteLedger{db: db}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLedger) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=FULL;`,
		`
CREATE TABLE IF NOT EXISTS daily_spend (
  date TEXT PRIMARY KEY,
  total TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate ledger: %w", err)
		}
	}
	return nil
}

func scanTotal(row *sql.Row) (decimal.Decimal, error) {
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func (l *SQLiteLedger) CurrentSpent(ctx context.Context, date string) (decimal.Decimal, error) {
	if err := validateDate(date); err != nil {
		return decimal.Zero, err
	}
	total, err := scanTotal(l.db.QueryRowContext(ctx, `SELECT total FROM daily_spend WHERE date=?`, date))
	if err != nil {
		return decimal.Zero, fmt.Errorf("read daily spend: %w", err)
	}
	return total, nil
}

func (l *SQLiteLedger) RecordSpend(ctx context.Context, date string, amount decimal.Decimal) error {
	if err := validateDate(date); err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanTotal(tx.QueryRowContext(ctx, `SELECT total FROM daily_spend WHERE date=?`, date))
	if err != nil {
		return fmt.Errorf("read daily spend: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO daily_spend (date, total, updated_at)
VALUES (?,?,?)
ON CONFLICT(date) DO UPDATE SET total=excluded.total, updated_at=excluded.updated_at
`, date, current.Add(amount).String(), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert daily spend: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit daily spend: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT date, total, updated_at FROM daily_spend ORDER BY date ASC`)
	if err != nil {
		return nil, fmt.Errorf("list daily spend: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var date, total, updated string
		if err := rows.Scan(&date, &total, &updated); err != nil {
			return nil, err
		}
		e := Entry{Date: date}
		if e.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parse total for %s: %w", date, err)
		}
		e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *SQLiteLedger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}
