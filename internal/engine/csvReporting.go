package engine

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"meanrev/types"
)

var tradesHeader = []string{
	"entry_price",
	"exit_price",
	"return_pct",
	"side",
	"entry_time", // RFC3339
	"exit_time",  // RFC3339
}

// WriteTradesCSVFile writes trades to a CSV file at the given path.
func WriteTradesCSVFile(path string, trades []types.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trades file: %w", err)
	}
	defer f.Close()

	if err := ExportTrades(f, trades); err != nil {
		return err
	}
	return f.Close()
}

// ExportTrades writes one CSV record per trade to any io.Writer.
func ExportTrades(w io.Writer, trades []types.Trade) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(tradesHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, t := range trades {
		if err := cw.Write(tradeRecord(t)); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func tradeRecord(t types.Trade) []string {
	return []string{
		t.EntryPrice.String(),
		t.ExitPrice.String(),
		strconv.FormatFloat(t.ReturnPct, 'f', -1, 64),
		string(t.Side),
		formatTime(t.EntryTime),
		formatTime(t.ExitTime),
	}
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}
