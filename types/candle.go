package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bar. Timestamp is the bar open time.
// Closed is false only while a streamed bar is still forming.
type Candle struct {
	Ticker    string          `json:"ticker"`
	Open      decimal.Decimal `json:"open"`
	Close     decimal.Decimal `json:"close"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Volume    decimal.Decimal `json:"volume"`
	Interval  Interval        `json:"interval"`
	Timestamp time.Time       `json:"timestamp"`
	Closed    bool            `json:"closed"`
}

// CloseTime is the instant the bar stops accepting updates.
func (c Candle) CloseTime() time.Time {
	return c.Timestamp.Add(IntervalToTime[c.Interval])
}
