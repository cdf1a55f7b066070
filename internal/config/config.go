// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"meanrev/internal/exchange"
	"meanrev/internal/repository"
	"meanrev/types"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

// Date layouts accepted for exchange.start and exchange.end.
var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02", "2 Jan 2006"}

// App captures process-wide runtime settings.
type App struct {
	Name        string `yaml:"name"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Exchange selects the market and the time range to fetch. Credentials are
// only read from the environment.
type Exchange struct {
	Symbol    string `yaml:"symbol"`
	Interval  string `yaml:"interval"`
	Start     string `yaml:"start"`
	End       string `yaml:"end"`
	RESTURL   string `yaml:"rest_url"`
	StreamURL string `yaml:"stream_url"`
	APIKey    string `yaml:"-"`
}

// Database points at a TimescaleDB holding one-minute candles. When enabled
// historical bars come from it instead of the exchange.
type Database struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	SaveTrades bool   `yaml:"save_trades"`
}

type Strategy struct {
	WindowSize int `yaml:"window_size"`
}

type Reporting struct {
	PrintReport  bool   `yaml:"print_report"`
	ShowProgress bool   `yaml:"show_progress"`
	LogTrades    bool   `yaml:"log_trades"`
	TradesPath   string `yaml:"trades_path"`
}

// Live configures streaming evaluation after the historical seed.
type Live struct {
	Enabled      bool          `yaml:"enabled"`
	PollInterval time.Duration `yaml:"poll_interval"`
	BufferSize   int           `yaml:"buffer_size"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App       App       `yaml:"app"`
	Exchange  Exchange  `yaml:"exchange"`
	Database  Database  `yaml:"database"`
	Strategy  Strategy  `yaml:"strategy"`
	Reporting Reporting `yaml:"reporting"`
	Live      Live      `yaml:"live"`
}

func Default() *Config {
	return &Config{
		App: App{
			Name:        "meanrev",
			LogLevel:    "info",
			MetricsAddr: ":9102",
		},
		Exchange: Exchange{
			Symbol:   "DOGEUSDC",
			Interval: string(types.OneMinute),
			Start:    "15 Nov 2024",
			End:      "19 Nov 2024",
		},
		Strategy: Strategy{WindowSize: 100},
		Reporting: Reporting{
			PrintReport: true,
			LogTrades:   true,
		},
		Live: Live{
			PollInterval: time.Minute,
			BufferSize:   5000,
		},
	}
}

// Load reads a YAML file over the defaults, then applies environment
// overrides. A .env file in the working directory is loaded if present.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	_ = godotenv.Load() // best-effort
	config.ApplyEnv()
	return config, nil
}

// ApplyEnv copies the API key and the database URL from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		c.Exchange.APIKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
}

func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Exchange.Symbol) == "" {
		problems = append(problems, "exchange.symbol is required")
	}
	if interval, ok := types.ConvertInterval[c.Exchange.Interval]; !ok {
		problems = append(problems, fmt.Sprintf("exchange.interval %q is unknown", c.Exchange.Interval))
	} else if c.Database.Enabled && !repository.SupportsInterval(interval) {
		problems = append(problems, fmt.Sprintf("exchange.interval %q cannot be bucketed by the database", c.Exchange.Interval))
	} else if !exchange.SupportsInterval(interval) {
		// the live stream and the exchange source both need a fixed bar duration
		problems = append(problems, fmt.Sprintf("exchange.interval %q is not supported by the exchange client", c.Exchange.Interval))
	}
	if c.Strategy.WindowSize < 1 {
		problems = append(problems, "strategy.window_size must be at least 1")
	}
	start, errStart := parseDate(c.Exchange.Start)
	if errStart != nil {
		problems = append(problems, fmt.Sprintf("exchange.start: %v", errStart))
	}
	end, errEnd := parseDate(c.Exchange.End)
	if errEnd != nil {
		problems = append(problems, fmt.Sprintf("exchange.end: %v", errEnd))
	}
	if errStart == nil && errEnd == nil && end.Before(start) {
		problems = append(problems, "exchange.end is before exchange.start")
	}
	if (c.Database.Enabled || c.Database.SaveTrades) && c.Database.URL == "" {
		problems = append(problems, "database.url (or DATABASE_URL) is required when the database is used")
	}
	if c.Live.Enabled && c.Live.PollInterval <= 0 {
		problems = append(problems, "live.poll_interval must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) Interval() types.Interval {
	return types.ConvertInterval[c.Exchange.Interval]
}

// Range returns the parsed exchange.start and exchange.end in UTC.
func (c *Config) Range() (time.Time, time.Time, error) {
	start, err := parseDate(c.Exchange.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: exchange.start: %v", ErrInvalidConfig, err)
	}
	end, err := parseDate(c.Exchange.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: exchange.end: %v", ErrInvalidConfig, err)
	}
	return start, end, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse date %q", s)
}
