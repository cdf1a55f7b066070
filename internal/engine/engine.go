package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"meanrev/internal/metrics"
	"meanrev/internal/series"
	"meanrev/types"

	"github.com/rs/zerolog"
)

type Engine struct {
	source          BarSource
	store           TradeStore
	feed            *DataFeedConfig
	strategyConfig  *StrategyConfig
	reportingConfig *ReportingConfig
	backtester      *backtester
	log             zerolog.Logger
	out             io.Writer
	observers       []Observer

	passMu  sync.Mutex
	lastBar time.Time
}

type Option func(*Engine)

// WithTradeStore persists every completed run's trades.
func WithTradeStore(store TradeStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithOutput redirects the printed report.
func WithOutput(w io.Writer) Option {
	return func(e *Engine) {
		if w != nil {
			e.out = w
		}
	}
}

// WithObservers adds observers to historical runs.
func WithObservers(observers ...Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, observers...) }
}

func NewEngine(
	feed *DataFeedConfig,
	strategyConfig *StrategyConfig,
	reportingConfig *ReportingConfig,
	source BarSource,
	log zerolog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		source:          source,
		feed:            feed,
		strategyConfig:  strategyConfig,
		reportingConfig: reportingConfig,
		backtester:      newBacktester(strategyConfig),
		log:             log,
		out:             os.Stdout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run loads the configured history, simulates it and emits the report.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	candles, err := e.LoadData(ctx)
	if err != nil {
		return nil, err
	}

	result := e.backtester.run(candles, e.runObservers(len(candles))...)
	e.log.Info().
		Str("run_id", result.RunID.String()).
		Str("symbol", e.feed.ticker).
		Int("bars", len(candles)).
		Int("trades", len(result.Trades)).
		Float64("total_return_pct", result.Report.TotalReturnPct).
		Msg("backtest finished")

	if err := e.report(ctx, result); err != nil {
		return result, err
	}
	return result, nil
}

// LoadData fetches the configured candles and checks they are strictly
// ordered. A trailing candle that is still forming is dropped.
func (e *Engine) LoadData(ctx context.Context) ([]types.Candle, error) {
	e.log.Info().
		Str("symbol", e.feed.ticker).
		Str("interval", string(e.feed.interval)).
		Time("start", e.feed.start).
		Time("end", e.feed.end).
		Msg("fetching historical data")

	candles, err := e.source.FetchBars(ctx, e.feed.ticker, e.feed.interval, e.feed.start, e.feed.end)
	if err != nil {
		return nil, fmt.Errorf("fetch %s bars: %w", e.feed.ticker, err)
	}
	buf := series.NewBuffer(0)
	if err := buf.Load(candles); err != nil {
		return nil, fmt.Errorf("load %s bars: %w", e.feed.ticker, err)
	}
	return buf.ClosedSnapshot(), nil
}

// RunLive re-evaluates the strategy on every tick until ctx is done.
func (e *Engine) RunLive(ctx context.Context, source Snapshotter, every time.Duration) error {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	e.log.Info().Dur("every", every).Msg("starting live strategy evaluation")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.Evaluate(source)
		}
	}
}

// Evaluate runs one pass over the closed candles of a snapshot. It returns
// false when no candle closed since the previous pass.
func (e *Engine) Evaluate(source Snapshotter) (*Result, bool) {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	candles := closedCandles(source.Snapshot())
	if len(candles) == 0 {
		return nil, false
	}
	last := candles[len(candles)-1].Timestamp
	if !last.After(e.lastBar) {
		return nil, false
	}
	e.lastBar = last

	result := e.backtester.run(candles)
	latest, _ := result.LastRow()
	metrics.CumulativeReturn.WithLabelValues(e.feed.ticker).Set(latest.CumulativeReturn)
	e.log.Info().
		Time("bar", latest.Timestamp).
		Str("close", latest.Close.String()).
		Bool("ready", latest.Ready).
		Float64("zscore", latest.ZScore).
		Str("signal", latest.Signal.String()).
		Str("side", string(latest.Side)).
		Int("trades", len(result.Trades)).
		Float64("cumulative_return_pct", latest.CumulativeReturn).
		Msg("live signal")
	return result, true
}

func (e *Engine) runObservers(bars int) []Observer {
	observers := []Observer{metricsObserver{symbol: e.feed.ticker}}
	if e.reportingConfig.logTrades {
		observers = append(observers, logObserver{log: e.log})
	}
	if e.reportingConfig.showProgress && bars > 0 {
		observers = append(observers, progressObserver{bar: initProgressBar(bars)})
	}
	return append(observers, e.observers...)
}

func (e *Engine) report(ctx context.Context, result *Result) error {
	if e.reportingConfig.printReport {
		PrintReport(e.out, result.Report)
	}
	if path := e.reportingConfig.tradesPath; path != "" {
		if err := WriteTradesCSVFile(path, result.Trades); err != nil {
			return err
		}
		e.log.Info().Str("path", path).Int("trades", len(result.Trades)).Msg("trades exported")
	}
	if e.store != nil {
		if err := e.store.SaveTrades(ctx, result.RunID, e.feed.ticker, result.Trades); err != nil {
			return fmt.Errorf("save trades: %w", err)
		}
	}
	return nil
}
