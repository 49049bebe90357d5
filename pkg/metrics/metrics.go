// Package metrics exposes Prometheus counters and histograms for
// dispatch outcomes. Grounded on
// _examples/mercator-hq-jupiter/pkg/telemetry/metrics's Collector/
// RequestMetrics shape (a struct of pre-registered CounterVec/
// HistogramVec fields, namespace+subsystem from config, registered
// against an injectable *prometheus.Registry rather than the global
// default one), narrowed down from that package's request/provider/
// policy/cost/cache metric families to the single family spec.md's
// dispatch core needs: one counter per action kind outcome, a
// dispatch-duration histogram, and a proxy-fallback counter by mode and
// outcome.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the dispatch core's Prometheus metric instances. Build
// one with New and pass it down to the Dispatcher; it is safe for
// concurrent use by any number of in-flight requests.
type Collector struct {
	registry *prometheus.Registry

	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	proxyFallback    *prometheus.CounterVec
}

// New creates a Collector and registers its metrics against a fresh
// *prometheus.Registry (never the global default, so multiple servers
// in the same process never collide).
func New() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dispatchd",
				Name:      "actions_total",
				Help:      "Total number of actions executed, by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dispatchd",
				Name:      "action_duration_seconds",
				Help:      "Duration of action execution, by kind",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"kind"},
		),
		proxyFallback: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dispatchd",
				Name:      "proxy_fallback_total",
				Help:      "Total number of requests handled by the proxy fallback path, by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
	}

	registry.MustRegister(c.dispatchTotal, c.dispatchDuration, c.proxyFallback)
	return c
}

// ObserveAction records one action execution's outcome and duration.
func (c *Collector) ObserveAction(kind string, outcome string, duration time.Duration) {
	c.dispatchTotal.WithLabelValues(kind, outcome).Inc()
	c.dispatchDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveProxyFallback records one proxy-fallback decision, mode being
// "explicit" or "exploratory" per spec.md §4.4.
func (c *Collector) ObserveProxyFallback(mode string, outcome string) {
	c.proxyFallback.WithLabelValues(mode, outcome).Inc()
}

// Handler returns the http.Handler that serves this Collector's metrics
// in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
