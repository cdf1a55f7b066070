package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one completed round trip. It is never modified after it is
// appended to a trade log.
type Trade struct {
	Side       PositionSide
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	ReturnPct  float64
}

func (t Trade) IsWin() bool {
	return t.ReturnPct > 0
}
