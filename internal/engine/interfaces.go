package engine

import (
	"context"
	"time"

	"meanrev/types"

	"github.com/google/uuid"
)

// BarSource loads historical candles ordered by timestamp.
type BarSource interface {
	FetchBars(ctx context.Context, ticker string, interval types.Interval, start, end time.Time) ([]types.Candle, error)
}

// Snapshotter exposes a consistent copy of a live candle buffer.
type Snapshotter interface {
	Snapshot() []types.Candle
}

// TradeStore persists the trade log of a run.
type TradeStore interface {
	SaveTrades(ctx context.Context, runID uuid.UUID, ticker string, trades []types.Trade) error
}
