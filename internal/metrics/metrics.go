// Package metrics exposes prometheus counters for cycle activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trader_cycles_total", Help: "Completed trading cycles"},
		[]string{"account"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trader_signals_total", Help: "Decisions produced per action"},
		[]string{"account", "action"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trader_orders_total", Help: "Orders submitted"},
		[]string{"account", "side"},
	)
	RejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trader_rejections_total", Help: "Guard rejections per reason"},
		[]string{"account", "reason"},
	)
	SymbolErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trader_symbol_errors_total", Help: "Per-symbol evaluation failures"},
		[]string{"account"},
	)
	SkippedTicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "trader_skipped_ticks_total", Help: "Scheduler ticks skipped with the market closed"},
	)
)

func init() {
	prometheus.MustRegister(CyclesTotal, SignalsTotal, OrdersTotal, RejectionsTotal, SymbolErrorsTotal, SkippedTicksTotal)
}

// Serve starts the metrics endpoint in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
