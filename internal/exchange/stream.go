package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"meanrev/internal/metrics"
	"meanrev/internal/series"
	"meanrev/types"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// CandleSink receives streamed candles. series.Buffer implements it.
type CandleSink interface {
	Upsert(types.Candle) error
}

type klineEvent struct {
	Event  string       `json:"e"`
	Symbol string       `json:"s"`
	Kline  binanceKline `json:"k"`
}

type binanceKline struct {
	OpenTime  int64  `json:"t"`
	CloseTime int64  `json:"T"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	Close     string `json:"c"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
	Closed    bool   `json:"x"`
}

// Stream follows the kline stream of one symbol and writes every update into
// a sink, reconnecting with backoff until the context ends.
type Stream struct {
	url      string
	symbol   string
	interval types.Interval
	log      zerolog.Logger

	backoff    time.Duration
	maxBackoff time.Duration
	pingEvery  time.Duration
	readWait   time.Duration
}

func NewStream(baseURL, symbol string, interval types.Interval, log zerolog.Logger) *Stream {
	if baseURL == "" {
		baseURL = DefaultStreamURL
	}
	return &Stream{
		url:        fmt.Sprintf("%s/%s@kline_%s", strings.TrimRight(baseURL, "/"), strings.ToLower(symbol), interval),
		symbol:     strings.ToUpper(symbol),
		interval:   interval,
		log:        log,
		backoff:    time.Second,
		maxBackoff: 30 * time.Second,
		pingEvery:  15 * time.Second,
		readWait:   30 * time.Second,
	}
}

func (s *Stream) URL() string { return s.url }

func (s *Stream) Run(ctx context.Context, sink CandleSink) error {
	backoff := s.backoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		connected, err := s.consume(ctx, sink)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var wait time.Duration
		wait, backoff = s.retryDelay(backoff, connected)
		s.log.Warn().Err(err).Dur("backoff", wait).Msg("kline stream disconnected, retrying")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// retryDelay returns the wait before the next dial and the backoff after it.
// A session that got connected starts over from the initial backoff.
func (s *Stream) retryDelay(backoff time.Duration, connected bool) (time.Duration, time.Duration) {
	if connected {
		backoff = s.backoff
	}
	next := time.Duration(math.Min(float64(s.maxBackoff), float64(backoff)*1.8))
	return backoff, next
}

func (s *Stream) consume(ctx context.Context, sink CandleSink) (bool, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	s.log.Info().Str("symbol", s.symbol).Str("interval", string(s.interval)).Msg("connected kline stream")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(s.readWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.readWait))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(s.pingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					s.log.Warn().Err(err).Msg("kline stream ping failed")
					return
				}
			case <-pingCtx.Done():
				// unblock ReadMessage
				conn.Close()
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			return true, err
		}
		conn.SetReadDeadline(time.Now().Add(s.readWait))

		var ev klineEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			s.log.Warn().Err(err).Msg("failed to decode kline message")
			continue
		}
		if ev.Event != "kline" {
			continue
		}
		candle, err := ev.Kline.candle(s.symbol, s.interval)
		if err != nil {
			s.log.Warn().Err(err).Msg("invalid kline from stream")
			continue
		}

		switch err := sink.Upsert(candle); {
		case err == nil:
		case errors.Is(err, series.ErrBarClosed), errors.Is(err, series.ErrOutOfOrder):
			// replayed after a reconnect
			s.log.Debug().Err(err).Time("bar", candle.Timestamp).Msg("skipping stale kline")
			continue
		default:
			return true, fmt.Errorf("store kline: %w", err)
		}
		if candle.Closed {
			metrics.BarsTotal.WithLabelValues(s.symbol).Inc()
			s.log.Debug().Time("bar", candle.Timestamp).Str("close", candle.Close.String()).Msg("kline closed")
		}
	}
}

func (k binanceKline) candle(symbol string, interval types.Interval) (types.Candle, error) {
	fields := []string{k.Open, k.High, k.Low, k.Close, k.Volume}
	values := make([]decimal.Decimal, len(fields))
	for i, f := range fields {
		d, err := decimal.NewFromString(f)
		if err != nil {
			return types.Candle{}, err
		}
		values[i] = d
	}
	return types.Candle{
		Ticker:    symbol,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
		Interval:  interval,
		Timestamp: time.UnixMilli(k.OpenTime).UTC(),
		Closed:    k.Closed,
	}, nil
}
