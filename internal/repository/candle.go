package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meanrev/types"

	"github.com/jackc/pgx/v5"
)

var bucketToInterval = map[types.Interval]string{
	types.OneMinute:      "1 minute",
	types.ThreeMinutes:   "3 minutes",
	types.FiveMinutes:    "5 minutes",
	types.FifteenMinutes: "15 minutes",
	types.ThirtyMinutes:  "30 minutes",
	types.Hour:           "1 hour",
	types.TwoHours:       "2 hours",
	types.FourHours:      "4 hours",
	types.Day:            "1 day",
	types.Week:           "1 week",
}

// SupportsInterval reports whether stored candles can be bucketed to interval.
func SupportsInterval(interval types.Interval) bool {
	_, ok := bucketToInterval[interval]
	return ok
}

// FetchBars aggregates stored one-minute candles into interval buckets.
// The bucket that is still open at call time is marked as not closed.
func (db *Database) FetchBars(ctx context.Context, ticker string, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	bucket, ok := bucketToInterval[interval]
	if !ok {
		return nil, fmt.Errorf("%s: %w", interval, ErrIntervalNotSupported)
	}
	assetID, err := db.assetID(ctx, ticker)
	if err != nil {
		return nil, err
	}
	args := aggregatesParams{
		TimeBucket: bucket,
		AssetID:    assetID,
		Starttime:  start,
		Endtime:    end,
	}
	candles, err := db.candles.GetAggregates(ctx, args)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoCandles
		}
		return nil, err
	}
	if len(candles) == 0 {
		return nil, ErrNoCandles
	}
	return convertCandles(candles, interval, ticker, time.Now()), nil
}

func convertCandles(candleDAOs []aggregateRow, interval types.Interval, ticker string, now time.Time) []types.Candle {
	candles := make([]types.Candle, 0, len(candleDAOs))
	for _, dao := range candleDAOs {
		c := types.Candle{
			Ticker:    ticker,
			Open:      dao.Open,
			Close:     dao.Close,
			High:      dao.High,
			Low:       dao.Low,
			Volume:    dao.Volume,
			Interval:  interval,
			Timestamp: dao.Bucket,
		}
		c.Closed = !c.CloseTime().After(now)
		candles = append(candles, c)
	}
	return candles
}
