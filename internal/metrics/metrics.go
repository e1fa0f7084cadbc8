// Package metrics Prometheus指标，进程内全局注册
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	BarsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scanner_bars_total",
		Help: "Bar updates merged into the store, by result",
	}, []string{"interval", "result"})

	MessagesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scanner_messages_dropped_total",
		Help: "Stream messages dropped (malformed, ignored or queue full)",
	}, []string{"reason"})

	WSReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scanner_ws_reconnects_total",
		Help: "Stream reconnection attempts",
	})

	WSConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scanner_ws_connected",
		Help: "1 when the kline stream is connected",
	})

	EvaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scanner_evaluations_total",
		Help: "Symbol evaluations, by trigger",
	}, []string{"trigger"})

	SignalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scanner_signals_total",
		Help: "Signals produced, by direction and kind",
	}, []string{"direction", "kind"})

	BoardSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scanner_board_signals",
		Help: "Signals on the current board",
	})

	EvaluateDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scanner_evaluate_duration_seconds",
		Help:    "Per-symbol evaluation latency",
		Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})

	HistoryFetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scanner_history_fetch_errors_total",
		Help: "Failed REST history requests, by interval",
	}, []string{"interval"})
)

func init() {
	prometheus.MustRegister(
		BarsTotal,
		MessagesDropped,
		WSReconnects,
		WSConnected,
		EvaluationsTotal,
		SignalsTotal,
		BoardSize,
		EvaluateDuration,
		HistoryFetchErrors,
	)
}

// Serve 启动 /metrics 服务，addr为空时不启动
func Serve(addr string) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("metrics服务异常退出", zap.Error(err))
		}
	}()

	zap.L().Info("📈 Prometheus指标服务已启动", zap.String("addr", addr))
	return srv
}
