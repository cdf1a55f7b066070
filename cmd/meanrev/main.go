package main

import (
	"context"
	"errors"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"meanrev/internal/config"
	"meanrev/internal/engine"
	"meanrev/internal/exchange"
	"meanrev/internal/metrics"
	"meanrev/internal/repository"
	"meanrev/internal/series"
	"meanrev/internal/util"
	"meanrev/types"

	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	live := flag.Bool("live", false, "keep evaluating on the kline stream after the backtest")
	flag.Parse()

	log := util.NewLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if *live {
		cfg.Live.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("validate config")
	}
	log = util.NewLogger(cfg.App.LogLevel).With().Str("app", cfg.App.Name).Logger()

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	start, end, err := cfg.Range()
	if err != nil {
		log.Fatal().Err(err).Msg("parse range")
	}
	if cfg.Live.Enabled {
		end = time.Now().UTC()
	}

	var db *repository.Database
	if cfg.Database.Enabled || cfg.Database.SaveTrades {
		db, err = repository.NewDatabase(ctx, cfg.Database.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("connect database")
		}
		defer db.Close()
	}

	var source engine.BarSource = exchange.NewClient(log,
		exchange.WithBaseURL(cfg.Exchange.RESTURL),
		exchange.WithAPIKey(cfg.Exchange.APIKey))
	if cfg.Database.Enabled {
		source = db
	}

	opts := []engine.Option{}
	if cfg.Database.SaveTrades {
		if err := db.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("migrate database")
		}
		opts = append(opts, engine.WithTradeStore(db))
	}

	eng := engine.NewEngine(
		engine.NewDataFeedConfig(cfg.Exchange.Symbol, cfg.Interval(), start, end),
		engine.NewStrategyConfig(cfg.Strategy.WindowSize),
		engine.NewReportingConfig(
			cfg.Reporting.PrintReport,
			cfg.Reporting.ShowProgress,
			cfg.Reporting.LogTrades,
			cfg.Reporting.TradesPath,
		),
		source,
		log,
		opts...,
	)

	result, err := eng.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest failed")
	}
	if !cfg.Live.Enabled {
		return
	}

	if err := runLive(ctx, cfg, eng, result, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("live evaluation failed")
	}
	log.Info().Msg("shutting down")
}

func runLive(ctx context.Context, cfg *config.Config, eng *engine.Engine, seed *engine.Result, log zerolog.Logger) error {
	srv := metrics.Serve(cfg.App.MetricsAddr)
	defer srv.Close()
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	buf := series.NewBuffer(cfg.Live.BufferSize)
	candles := make([]types.Candle, len(seed.Rows))
	for i, row := range seed.Rows {
		candles[i] = row.Candle
	}
	if err := buf.Load(candles); err != nil {
		return err
	}
	log.Info().Int("bars", buf.Len()).Msg("seeded live buffer")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream := exchange.NewStream(cfg.Exchange.StreamURL, cfg.Exchange.Symbol, cfg.Interval(), log)
	go func() {
		if err := stream.Run(ctx, buf); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("kline stream stopped")
			cancel()
		}
	}()

	return eng.RunLive(ctx, buf, cfg.Live.PollInterval)
}
