package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the extractor daemon's metrics.
type Registry struct {
	reg              *prometheus.Registry
	ExtractRuns      prometheus.Counter
	ExtractFailures  prometheus.Counter
	RowsExtracted    prometheus.Counter
	LocationsSkipped prometheus.Counter
	LastSuccessUnix  prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	runs := prometheus.NewCounter(prometheus.CounterOpts{Name: "weather_extract_runs_total"})
	failures := prometheus.NewCounter(prometheus.CounterOpts{Name: "weather_extract_failures_total"})
	rows := prometheus.NewCounter(prometheus.CounterOpts{Name: "weather_extract_rows_total"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "weather_extract_locations_skipped_total"})
	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{Name: "weather_extract_last_success_timestamp_seconds"})

	r.MustRegister(runs, failures, rows, skipped, lastSuccess)
	return &Registry{
		reg:              r,
		ExtractRuns:      runs,
		ExtractFailures:  failures,
		RowsExtracted:    rows,
		LocationsSkipped: skipped,
		LastSuccessUnix:  lastSuccess,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
