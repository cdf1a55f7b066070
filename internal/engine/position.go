package engine

import (
	"time"

	"meanrev/types"

	"github.com/shopspring/decimal"
)

type Action string

const (
	ActionHold  Action = "HOLD"
	ActionOpen  Action = "OPEN"
	ActionClose Action = "CLOSE"
)

// Position is the single simulated exposure. The zero value is flat.
type Position struct {
	Side       types.PositionSide
	EntryPrice decimal.Decimal
	EntryTime  time.Time
}

func (p Position) IsFlat() bool {
	return p.Side != types.SideLong && p.Side != types.SideShort
}

// SimulatedRow is an IndicatorRow with the position state in effect after it.
// EntryPrice is set on rows that open a position; ExitPrice and TradeReturn on
// rows that close one.
type SimulatedRow struct {
	IndicatorRow
	Action           Action
	Side             types.PositionSide
	CumulativeReturn float64
	EntryPrice       decimal.Decimal
	ExitPrice        decimal.Decimal
	TradeReturn      float64
}

// Observer receives notifications while rows are simulated. Observers cannot
// influence the simulation.
type Observer interface {
	OnRow(row SimulatedRow)
	OnTrade(trade types.Trade)
}

// Step applies one row to a position. A reversing signal only closes the open
// position; it never re-enters the other side on the same row.
func Step(pos Position, row IndicatorRow) (Position, *types.Trade) {
	switch pos.Side {
	case types.SideLong:
		if row.Signal == types.SignalSell {
			trade := closePosition(pos, row)
			return flatPosition(), &trade
		}
	case types.SideShort:
		if row.Signal == types.SignalBuy {
			trade := closePosition(pos, row)
			return flatPosition(), &trade
		}
	default:
		switch row.Signal {
		case types.SignalBuy:
			return Position{Side: types.SideLong, EntryPrice: row.Close, EntryTime: row.Timestamp}, nil
		case types.SignalSell:
			return Position{Side: types.SideShort, EntryPrice: row.Close, EntryTime: row.Timestamp}, nil
		}
		return flatPosition(), nil
	}
	return pos, nil
}

// Simulate folds Step over rows in order and returns every row annotated with
// the resulting side and running cumulative return, plus the completed trades.
func Simulate(rows []IndicatorRow, observers ...Observer) ([]SimulatedRow, []types.Trade) {
	out := make([]SimulatedRow, len(rows))
	trades := make([]types.Trade, 0)
	pos := flatPosition()
	cumulativeReturn := 0.0

	for i, row := range rows {
		next, trade := Step(pos, row)
		simRow := SimulatedRow{IndicatorRow: row, Action: ActionHold}

		switch {
		case trade != nil:
			trades = append(trades, *trade)
			cumulativeReturn += trade.ReturnPct
			simRow.Action = ActionClose
			simRow.ExitPrice = trade.ExitPrice
			simRow.TradeReturn = trade.ReturnPct
		case pos.IsFlat() && !next.IsFlat():
			simRow.Action = ActionOpen
			simRow.EntryPrice = next.EntryPrice
		}
		simRow.Side = next.Side
		simRow.CumulativeReturn = cumulativeReturn
		out[i] = simRow

		for _, o := range observers {
			if trade != nil {
				o.OnTrade(*trade)
			}
			o.OnRow(simRow)
		}
		pos = next
	}
	return out, trades
}

func closePosition(pos Position, row IndicatorRow) types.Trade {
	return types.Trade{
		Side:       pos.Side,
		EntryTime:  pos.EntryTime,
		ExitTime:   row.Timestamp,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  row.Close,
		ReturnPct:  tradeReturnPct(pos.Side, pos.EntryPrice, row.Close),
	}
}

// tradeReturnPct is the percentage return of a round trip; a zero entry price
// yields 0.
func tradeReturnPct(side types.PositionSide, entryPrice, exitPrice decimal.Decimal) float64 {
	entry := entryPrice.InexactFloat64()
	exit := exitPrice.InexactFloat64()
	if entry == 0 {
		return 0
	}
	if side == types.SideShort {
		return (entry - exit) / entry * 100
	}
	return (exit - entry) / entry * 100
}

func flatPosition() Position {
	return Position{Side: types.SideFlat}
}
