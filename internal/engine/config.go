package engine

import (
	"time"

	"meanrev/types"
)

type DataFeedConfig struct {
	ticker   string
	interval types.Interval
	start    time.Time
	end      time.Time
}

func NewDataFeedConfig(ticker string, interval types.Interval, start, end time.Time) *DataFeedConfig {
	return &DataFeedConfig{
		ticker:   ticker,
		interval: interval,
		start:    start,
		end:      end,
	}
}

type StrategyConfig struct {
	windowSize int
}

func NewStrategyConfig(windowSize int) *StrategyConfig {
	return &StrategyConfig{
		windowSize: windowSize,
	}
}

type ReportingConfig struct {
	printReport  bool
	showProgress bool
	logTrades    bool
	tradesPath   string
}

// NewReportingConfig configures what a run emits. An empty tradesPath disables
// the CSV export.
func NewReportingConfig(printReport, showProgress, logTrades bool, tradesPath string) *ReportingConfig {
	return &ReportingConfig{
		printReport:  printReport,
		showProgress: showProgress,
		logTrades:    logTrades,
		tradesPath:   tradesPath,
	}
}
