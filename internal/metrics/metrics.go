// Package metrics provides Prometheus metrics for dolphind.
//
// Features:
//   - Counters for actor events, persistence writes and radio captures
//   - Gauges for queue depth, progression state and history occupancy
//   - Histograms for persistence write duration
//   - HTTP handler for scraping
//
// Every recording method is safe to call on a nil receiver so components can
// run without metrics in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every dolphind metric.
const Namespace = "dolphind"

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler exposes the registry in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
