package engine

import (
	"meanrev/internal/metrics"
	"meanrev/types"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

// logObserver reports position changes.
type logObserver struct {
	log zerolog.Logger
}

func (o logObserver) OnRow(row SimulatedRow) {
	if row.Action != ActionOpen {
		return
	}
	o.log.Info().
		Str("side", string(row.Side)).
		Str("price", row.EntryPrice.String()).
		Time("at", row.Timestamp).
		Float64("zscore", row.ZScore).
		Msg("entered position")
}

func (o logObserver) OnTrade(trade types.Trade) {
	o.log.Info().
		Str("side", string(trade.Side)).
		Str("entry", trade.EntryPrice.String()).
		Str("exit", trade.ExitPrice.String()).
		Time("at", trade.ExitTime).
		Float64("return_pct", trade.ReturnPct).
		Msg("exited position")
}

type progressObserver struct {
	bar *progressbar.ProgressBar
}

func (o progressObserver) OnRow(SimulatedRow) { _ = o.bar.Add(1) }

func (o progressObserver) OnTrade(types.Trade) {}

type metricsObserver struct {
	symbol string
}

func (o metricsObserver) OnRow(row SimulatedRow) {
	if row.Signal != types.SignalNone {
		metrics.SignalsTotal.WithLabelValues(o.symbol, row.Signal.String()).Inc()
	}
	metrics.CumulativeReturn.WithLabelValues(o.symbol).Set(row.CumulativeReturn)
}

func (o metricsObserver) OnTrade(trade types.Trade) {
	metrics.TradesTotal.WithLabelValues(o.symbol, string(trade.Side)).Inc()
}

func initProgressBar(maxTicks int) *progressbar.ProgressBar {
	return progressbar.NewOptions(maxTicks,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Simulating bars..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
