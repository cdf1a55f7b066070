package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"meanrev/internal/series"
	"meanrev/types"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func TestNewStreamURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		want string
	}{
		{"default endpoint", "", "wss://stream.binance.com:9443/ws/dogeusdc@kline_1m"},
		{"custom endpoint", "ws://localhost:9000/ws/", "ws://localhost:9000/ws/dogeusdc@kline_1m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewStream(tt.base, "DOGEUSDC", types.OneMinute, zerolog.Nop()).URL(); got != tt.want {
				t.Fatalf("URL() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestStream_RunWritesKlines(t *testing.T) {
	messages := []string{
		klineMessage(0, "0.38", false),
		klineMessage(0, "0.39", true),
		`{"result":null,"id":1}`,
		klineMessage(1, "0.40", false),
	}
	server := klineServer(t, messages)
	defer server.Close()

	buf := series.NewBuffer(0)
	stream := NewStream(wsURL(server.URL), "DOGEUSDC", types.OneMinute, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- stream.Run(ctx, buf) }()

	deadline := time.After(2 * time.Second)
	for buf.Len() < 2 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for klines, have %d", buf.Len())
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context canceled", err)
	}

	got := buf.Snapshot()
	if got[0].Close.String() != "0.39" || !got[0].Closed {
		t.Fatalf("first bar = %s closed=%v, want 0.39 closed", got[0].Close, got[0].Closed)
	}
	if got[1].Closed || got[1].Ticker != "DOGEUSDC" {
		t.Fatalf("second bar = %+v, want forming DOGEUSDC bar", got[1])
	}
	if closed := buf.ClosedSnapshot(); len(closed) != 1 {
		t.Fatalf("ClosedSnapshot() len = %d, want 1", len(closed))
	}
}

func TestStream_RunReconnects(t *testing.T) {
	server := klineServer(t, []string{klineMessage(0, "1", true)})
	defer server.Close()

	buf := series.NewBuffer(0)
	stream := NewStream(wsURL(server.URL), "DOGEUSDC", types.OneMinute, zerolog.Nop())
	stream.backoff = 10 * time.Millisecond
	// the connection idles after one message, so every read timeout replays the closed kline
	stream.readWait = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := stream.Run(ctx, buf); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want deadline exceeded", err)
	}
	if buf.Len() != 1 {
		t.Fatalf("buffer len = %d, want 1 after replays", buf.Len())
	}
}

func TestStream_RetryDelay(t *testing.T) {
	stream := NewStream("", "DOGEUSDC", types.OneMinute, zerolog.Nop())
	tests := []struct {
		name      string
		backoff   time.Duration
		connected bool
		wantWait  time.Duration
		wantNext  time.Duration
	}{
		{"dial failure grows backoff", time.Second, false, time.Second, 1800 * time.Millisecond},
		{"growth is capped", 25 * time.Second, false, 25 * time.Second, 30 * time.Second},
		{"connected session resets backoff", 30 * time.Second, true, time.Second, 1800 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wait, next := stream.retryDelay(tt.backoff, tt.connected)
			if wait != tt.wantWait || next != tt.wantNext {
				t.Fatalf("retryDelay() = %s, %s, want %s, %s", wait, next, tt.wantWait, tt.wantNext)
			}
		})
	}
}

func TestStream_RunResetsBackoffAfterConnect(t *testing.T) {
	var dials atomic.Int32
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		dials.Add(1)
		conn.Close()
	}))
	defer server.Close()

	stream := NewStream(wsURL(server.URL), "DOGEUSDC", types.OneMinute, zerolog.Nop())
	stream.backoff = 10 * time.Millisecond
	stream.maxBackoff = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = stream.Run(ctx, series.NewBuffer(0))

	// without a reset the waits grow to 10, 18, 32, 58, 105, 189ms and fit about seven dials
	if got := dials.Load(); got < 10 {
		t.Fatalf("dials = %d, want at least 10 with a steady backoff", got)
	}
}

func klineServer(t *testing.T, messages []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/dogeusdc@kline_1m") {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		// hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
}

func klineMessage(minute int64, closePrice string, closed bool) string {
	open := time.UnixMilli(0).Add(time.Duration(minute) * time.Minute).UnixMilli()
	return fmt.Sprintf(`{"e":"kline","E":%d,"s":"DOGEUSDC","k":{"t":%d,"T":%d,"s":"DOGEUSDC","i":"1m","o":"%s","c":"%s","h":"%s","l":"%s","v":"100","x":%t}}`,
		open, open, open+59999, closePrice, closePrice, closePrice, closePrice, closed)
}
