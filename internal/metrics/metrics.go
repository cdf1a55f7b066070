// Package metrics exposes Prometheus collectors for the strategy pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BarsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "meanrev_bars_total", Help: "Closed bars ingested from the market data stream"},
		[]string{"symbol"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "meanrev_signals_total", Help: "Non-zero signals emitted by the z-score band"},
		[]string{"symbol", "signal"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "meanrev_trades_total", Help: "Completed simulated round trips"},
		[]string{"symbol", "side"},
	)
	CumulativeReturn = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "meanrev_cumulative_return_pct", Help: "Running sum of trade returns in percent"},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(BarsTotal, SignalsTotal, TradesTotal, CumulativeReturn)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
