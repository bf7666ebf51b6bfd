// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scans_total", Help: "Symbol scans by result"},
		[]string{"symbol", "result"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Positive signals emitted"},
		[]string{"signal_type", "direction"},
	)
	FilterRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "filter_rejections_total", Help: "Breakout candidates rejected per filter"},
		[]string{"filter"},
	)
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "notifications_total", Help: "Notifier deliveries by result"},
		[]string{"notifier", "result"},
	)
	StreamClosesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stream_kline_closes_total", Help: "Closed klines received from the stream"},
		[]string{"symbol"},
	)
	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scan_duration_seconds",
			Help:    "Duration of one symbol scan",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(ScansTotal, SignalsTotal, FilterRejectionsTotal, NotificationsTotal, StreamClosesTotal, ScanDuration)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
