package repository

import (
	"context"
	"fmt"

	"meanrev/types"

	"github.com/google/uuid"
)

// SaveTrades stores the trade log of one simulation run.
func (db *Database) SaveTrades(ctx context.Context, runID uuid.UUID, ticker string, trades []types.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	rows := make([]tradeRow, len(trades))
	for i, t := range trades {
		rows[i] = tradeRow{
			RunID:      runID,
			Ticker:     ticker,
			Seq:        int32(i),
			Side:       string(t.Side),
			EntryTime:  t.EntryTime,
			ExitTime:   t.ExitTime,
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			ReturnPct:  t.ReturnPct,
		}
	}
	n, err := db.trades.CopyTrades(ctx, rows)
	if err != nil {
		return fmt.Errorf("copy trades for run %s: %w", runID, err)
	}
	if n != int64(len(rows)) {
		return fmt.Errorf("copy trades for run %s: wrote %d of %d", runID, n, len(rows))
	}
	return nil
}
