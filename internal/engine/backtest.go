package engine

import (
	"meanrev/types"

	"github.com/google/uuid"
)

// Result is the outcome of one pass over a candle sequence.
type Result struct {
	RunID  uuid.UUID
	Rows   []SimulatedRow
	Trades []types.Trade
	Report Report
}

// LastRow returns the most recent simulated row.
func (r *Result) LastRow() (SimulatedRow, bool) {
	if r == nil || len(r.Rows) == 0 {
		return SimulatedRow{}, false
	}
	return r.Rows[len(r.Rows)-1], true
}

type backtester struct {
	strategyConfig *StrategyConfig
}

func newBacktester(strategyConfig *StrategyConfig) *backtester {
	return &backtester{strategyConfig: strategyConfig}
}

// run is a single synchronous pass: signals, simulation, summary.
func (b *backtester) run(candles []types.Candle, observers ...Observer) *Result {
	rows := ComputeSignals(candles, b.strategyConfig.windowSize)
	simRows, trades := Simulate(rows, observers...)
	return &Result{
		RunID:  uuid.New(),
		Rows:   simRows,
		Trades: trades,
		Report: Summarize(trades, simRows),
	}
}

// closedCandles drops a trailing candle that is still forming.
func closedCandles(candles []types.Candle) []types.Candle {
	if n := len(candles); n > 0 && !candles[n-1].Closed {
		return candles[:n-1]
	}
	return candles
}
