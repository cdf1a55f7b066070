package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"meanrev/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	DefaultRESTURL   = "https://api.binance.com"
	DefaultStreamURL = "wss://stream.binance.com:9443/ws"

	klinesPath  = "/api/v3/klines"
	klinesLimit = 1000
)

var (
	ErrUnsupportedInterval = errors.New("interval not supported by exchange")
	ErrEmptyKlines         = errors.New("exchange returned no klines")
)

// Client reads historical klines from the Binance REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     zerolog.Logger
	now     func() time.Time
}

type ClientOption func(*Client)

func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithAPIKey sets the key sent in X-MBX-APIKEY. Public market data works without it.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

func NewClient(log zerolog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultRESTURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SupportsInterval reports whether FetchBars can page through interval. Klines
// are stepped by a fixed duration, which calendar months do not have.
func SupportsInterval(interval types.Interval) bool {
	_, ok := types.IntervalToTime[interval]
	return ok
}

// FetchBars pages through klines in [start, end] in ascending order. A kline
// whose close time has not passed yet is returned with Closed set to false.
func (c *Client) FetchBars(ctx context.Context, ticker string, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	if !SupportsInterval(interval) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedInterval, interval)
	}
	symbol := strings.ToUpper(ticker)

	var candles []types.Candle
	from := start
	for !from.After(end) {
		page, err := c.klines(ctx, symbol, interval, from, end)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		candles = append(candles, page...)
		c.log.Debug().
			Str("symbol", symbol).
			Int("page", len(page)).
			Int("total", len(candles)).
			Msg("fetched klines")

		if len(page) < klinesLimit {
			break
		}
		from = page[len(page)-1].Timestamp.Add(types.IntervalToTime[interval])
	}

	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrEmptyKlines, symbol, interval)
	}
	return candles, nil
}

func (c *Client) klines(ctx context.Context, symbol string, interval types.Interval, from, to time.Time) ([]types.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", string(interval))
	q.Set("startTime", strconv.FormatInt(from.UnixMilli(), 10))
	q.Set("endTime", strconv.FormatInt(to.UnixMilli(), 10))
	q.Set("limit", strconv.Itoa(klinesLimit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+klinesPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request klines: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, fmt.Errorf("klines status %d: %s", resp.StatusCode, apiErr.Msg)
	}

	var raw [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	now := c.now()
	candles := make([]types.Candle, 0, len(raw))
	for _, row := range raw {
		candle, err := parseKline(row, symbol, interval)
		if err != nil {
			return nil, err
		}
		candle.Closed = !candle.CloseTime().After(now)
		candles = append(candles, candle)
	}
	return candles, nil
}

// parseKline decodes [openTime, open, high, low, close, volume, closeTime, ...].
func parseKline(row []json.RawMessage, symbol string, interval types.Interval) (types.Candle, error) {
	if len(row) < 7 {
		return types.Candle{}, fmt.Errorf("kline has %d fields, want at least 7", len(row))
	}
	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return types.Candle{}, fmt.Errorf("kline open time: %w", err)
	}

	prices := make([]decimal.Decimal, 5)
	for i := range prices {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return types.Candle{}, fmt.Errorf("kline field %d: %w", i+1, err)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return types.Candle{}, fmt.Errorf("kline field %d: %w", i+1, err)
		}
		prices[i] = d
	}

	return types.Candle{
		Ticker:    symbol,
		Open:      prices[0],
		High:      prices[1],
		Low:       prices[2],
		Close:     prices[3],
		Volume:    prices[4],
		Interval:  interval,
		Timestamp: time.UnixMilli(openTime).UTC(),
	}, nil
}
