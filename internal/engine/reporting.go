package engine

import (
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"meanrev/types"
)

type Report struct {
	// Meta / period info
	StartDate   time.Time
	TotalPeriod time.Duration
	TotalBars   int

	// Trade counts
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64

	// Returns, in percent
	TotalReturnPct float64
	AvgReturnPct   float64
	AvgWinPct      float64
	AvgLossPct     float64

	// ProfitFactor is +Inf when there are wins and no losses and NaN when
	// there are no trades.
	ProfitFactor float64

	// Drawdown & loss streak metrics
	MaxDrawdownPct       float64
	MaxConsecutiveLosses int
}

// HasProfitFactor reports whether the profit factor is defined.
func (r Report) HasProfitFactor() bool {
	return !math.IsNaN(r.ProfitFactor)
}

// Summarize aggregates the trade log and the cumulative return series of the
// simulated rows. It only reads its inputs.
func Summarize(trades []types.Trade, rows []SimulatedRow) Report {
	report := Report{
		TotalTrades: len(trades),
		TotalBars:   len(rows),
	}
	if len(rows) > 0 {
		report.StartDate = rows[0].Timestamp
		report.TotalPeriod = rows[len(rows)-1].Timestamp.Sub(rows[0].Timestamp)
	}
	curve := cumulativeReturns(rows)

	var wg sync.WaitGroup
	wg.Add(6)
	go func() {
		report.WinningTrades, report.LosingTrades, report.WinRate = calcWinRate(trades, &wg)
	}()
	go func() {
		report.TotalReturnPct, report.AvgReturnPct = calcReturns(trades, &wg)
	}()
	go func() {
		report.ProfitFactor = calcProfitFactor(trades, &wg)
	}()
	go func() {
		report.AvgWinPct, report.AvgLossPct = calcAvgWinLossPerTrade(trades, &wg)
	}()
	go func() {
		report.MaxDrawdownPct = calcMaxDrawdown(curve, &wg)
	}()
	go func() {
		report.MaxConsecutiveLosses = calcMaxConsecutiveLosses(trades, &wg)
	}()
	wg.Wait()

	return report
}

// PrintReport writes a human readable summary.
func PrintReport(w io.Writer, report Report) {
	fmt.Fprintln(w, "===== Strategy Performance =====")
	if !report.StartDate.IsZero() {
		fmt.Fprintf(w, "Start Date:             %s\n", report.StartDate.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(w, "Total Period:           %s\n", report.TotalPeriod)
	fmt.Fprintf(w, "Bars:                   %d\n", report.TotalBars)

	fmt.Fprintln(w, "\n-- Trades --")
	fmt.Fprintf(w, "Total Trades:           %d\n", report.TotalTrades)
	fmt.Fprintf(w, "Winning Trades:         %d\n", report.WinningTrades)
	fmt.Fprintf(w, "Losing Trades:          %d\n", report.LosingTrades)
	fmt.Fprintf(w, "Win Rate:               %.2f%%\n", report.WinRate)

	fmt.Fprintln(w, "\n-- Returns --")
	fmt.Fprintf(w, "Total Return:           %.2f%%\n", report.TotalReturnPct)
	fmt.Fprintf(w, "Avg Return/Trade:       %.2f%%\n", report.AvgReturnPct)
	fmt.Fprintf(w, "Avg Win:                %.2f%%\n", report.AvgWinPct)
	fmt.Fprintf(w, "Avg Loss:               %.2f%%\n", report.AvgLossPct)
	fmt.Fprintf(w, "Profit Factor:          %s\n", formatProfitFactor(report.ProfitFactor))

	fmt.Fprintln(w, "\n-- Drawdown --")
	fmt.Fprintf(w, "Max Drawdown:           %.2f%%\n", report.MaxDrawdownPct)
	fmt.Fprintf(w, "Max Consecutive Losses: %d\n", report.MaxConsecutiveLosses)
	fmt.Fprintln(w, "================================")
}

func formatProfitFactor(pf float64) string {
	switch {
	case math.IsNaN(pf):
		return "n/a"
	case math.IsInf(pf, 1):
		return "inf"
	default:
		return fmt.Sprintf("%.2f", pf)
	}
}

// Zero-return trades count as losing.
func calcWinRate(trades []types.Trade, wg *sync.WaitGroup) (int, int, float64) {
	defer wg.Done()

	winning := 0
	for _, tr := range trades {
		if tr.IsWin() {
			winning++
		}
	}
	losing := len(trades) - winning
	if len(trades) == 0 {
		return 0, 0, 0
	}
	return winning, losing, float64(winning) / float64(len(trades)) * 100
}

func calcReturns(trades []types.Trade, wg *sync.WaitGroup) (float64, float64) {
	defer wg.Done()

	if len(trades) == 0 {
		return 0, 0
	}
	var total float64
	for _, tr := range trades {
		total += tr.ReturnPct
	}
	return total, total / float64(len(trades))
}

func calcProfitFactor(trades []types.Trade, wg *sync.WaitGroup) float64 {
	defer wg.Done()

	if len(trades) == 0 {
		return math.NaN()
	}
	var grossProfit, grossLoss float64
	for _, tr := range trades {
		if tr.IsWin() {
			grossProfit += tr.ReturnPct
		} else {
			grossLoss += tr.ReturnPct
		}
	}
	grossLoss = math.Abs(grossLoss)

	if grossLoss == 0 {
		if grossProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return grossProfit / grossLoss
}

func calcAvgWinLossPerTrade(trades []types.Trade, wg *sync.WaitGroup) (float64, float64) {
	defer wg.Done()

	var sumWins, sumLosses float64
	winCount, lossCount := 0, 0
	for _, tr := range trades {
		if tr.IsWin() {
			sumWins += tr.ReturnPct
			winCount++
		} else {
			sumLosses += tr.ReturnPct
			lossCount++
		}
	}

	avgWin, avgLoss := 0.0, 0.0
	if winCount > 0 {
		avgWin = sumWins / float64(winCount)
	}
	if lossCount > 0 {
		avgLoss = sumLosses / float64(lossCount)
	}
	return avgWin, avgLoss
}

// calcMaxDrawdown returns the deepest fall of the curve below its running
// peak. The result is never positive.
func calcMaxDrawdown(curve []float64, wg *sync.WaitGroup) float64 {
	defer wg.Done()

	if len(curve) == 0 {
		return 0
	}
	peak := curve[0]
	maxDD := 0.0
	for _, value := range curve {
		if value > peak {
			peak = value
		}
		if dd := value - peak; dd < maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func calcMaxConsecutiveLosses(trades []types.Trade, wg *sync.WaitGroup) int {
	defer wg.Done()

	maxLossStreak := 0
	currentStreak := 0
	for _, tr := range trades {
		if tr.IsWin() {
			currentStreak = 0
			continue
		}
		currentStreak++
		if currentStreak > maxLossStreak {
			maxLossStreak = currentStreak
		}
	}
	return maxLossStreak
}

func cumulativeReturns(rows []SimulatedRow) []float64 {
	curve := make([]float64, len(rows))
	for i, row := range rows {
		curve[i] = row.CumulativeReturn
	}
	return curve
}
