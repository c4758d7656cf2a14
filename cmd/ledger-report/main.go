package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/betbot/tradegate/internal/ledger"
)

func main() {
	_ = godotenv.Load()

	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err.Error())
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("ledger-report", flag.ContinueOnError)
	var (
		driver = fs.String("driver", getenv("LEDGER_DRIVER", ledger.DriverJSON), "ledger driver: json | sqlite | badger")
		path   = fs.String("path", getenv("LEDGER_PATH", ""), "ledger path (driver default when empty)")
		since  = fs.String("since", "", "only dates >= YYYY-MM-DD")
		asJSON = fs.Bool("json", false, "print JSON instead of a table")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *since != "" {
		if _, err := time.Parse(ledger.DateLayout, *since); err != nil {
			return fmt.Errorf("invalid -since: %w", err)
		}
	}

	l, err := ledger.Open(ledger.Config{Driver: *driver, Path: *path})
	if err != nil {
		return err
	}
	defer l.Close()

	entries, err := l.Entries(context.Background())
	if err != nil {
		return err
	}

	var filtered []ledger.Entry
	total := decimal.Zero
	for _, e := range entries {
		if *since != "" && e.Date < *since {
			continue
		}
		filtered = append(filtered, e)
		total = total.Add(e.Total)
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(filtered)
	}

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tSPENT\tUPDATED")
	for _, e := range filtered {
		updated := "-"
		if !e.UpdatedAt.IsZero() {
			updated = e.UpdatedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Date, e.Total.String(), updated)
	}
	fmt.Fprintf(w, "TOTAL\t%s\t(%d days)\n", total.String(), len(filtered))
	return w.Flush()
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
