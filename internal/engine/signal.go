package engine

import (
	"math"

	"meanrev/types"
)

const (
	// zScoreThreshold is the band edge; a bar exactly on the edge does not trigger.
	zScoreThreshold = 1.0
	// stdEpsilon treats a window whose deviation is float noise relative to its
	// mean as flat.
	stdEpsilon = 1e-12
)

// IndicatorRow is a candle annotated with its rolling band.
// HasBand is false until the window is full. Ready is false whenever the
// z-score is undefined, in which case Signal is always SignalNone.
type IndicatorRow struct {
	types.Candle
	Mean    float64
	Std     float64
	ZScore  float64
	HasBand bool
	Ready   bool
	Signal  types.Signal
}

// ComputeSignals derives one IndicatorRow per candle, in input order. Mean and
// sample standard deviation are taken over the trailing windowSize closes,
// inclusive of the current candle. A window smaller than two has no sample
// deviation and never signals.
func ComputeSignals(bars []types.Candle, windowSize int) []IndicatorRow {
	rows := make([]IndicatorRow, len(bars))
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		rows[i].Candle = bar
		closes[i] = bar.Close.InexactFloat64()
	}
	if windowSize < 2 {
		return rows
	}

	for i := windowSize - 1; i < len(bars); i++ {
		mean, std := meanSampleStdDev(closes[i-windowSize+1 : i+1])
		row := &rows[i]
		row.Mean = mean
		row.Std = std
		row.HasBand = true

		if std <= stdEpsilon*math.Abs(mean) || std == 0 || math.IsNaN(std) {
			continue
		}
		row.ZScore = (closes[i] - mean) / std
		row.Ready = true
		row.Signal = signalFromZScore(row.ZScore)
	}
	return rows
}

func signalFromZScore(z float64) types.Signal {
	switch {
	case z > zScoreThreshold:
		return types.SignalSell
	case z < -zScoreThreshold:
		return types.SignalBuy
	default:
		return types.SignalNone
	}
}

func meanSampleStdDev(values []float64) (float64, float64) {
	n := len(values)
	if n == 0 {
		return 0, math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)
	if n < 2 {
		return mean, math.NaN()
	}

	var varianceSum float64
	for _, v := range values {
		diff := v - mean
		varianceSum += diff * diff
	}
	return mean, math.Sqrt(varianceSum / float64(n-1))
}
