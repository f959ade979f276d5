// Package metrics implements the Prometheus metrics surface for the fleet
// manager, constructed in the same style as procmgr.PrometheusMetricsCollector:
// one private registry, per-concern CounterVec/HistogramVec/Gauge, all
// registered at construction time via MustRegister.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes every metric the fleet manager records.
type Collector struct {
	stateTransitions *prometheus.CounterVec
	restarts         *prometheus.CounterVec
	healthChecks     *prometheus.CounterVec

	poolSize      prometheus.Gauge
	poolEntryAge  prometheus.Histogram

	forwardDuration *prometheus.HistogramVec
	forwardErrors   *prometheus.CounterVec

	registry *prometheus.Registry
}

// New constructs a Collector under the given namespace (defaults to
// "tei_manager" if empty).
func New(namespace string) *Collector {
	if namespace == "" {
		namespace = "tei_manager"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instance_state_transitions_total",
			Help:      "Total number of instance state transitions.",
		},
		[]string{"instance", "from_state", "to_state"},
	)

	c.restarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instance_restarts_total",
			Help:      "Total number of instance restarts triggered by the health monitor.",
		},
		[]string{"instance"},
	)

	c.healthChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_checks_total",
			Help:      "Total number of health probes, labeled by outcome.",
		},
		[]string{"instance", "result"},
	)

	c.poolSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_pool_size",
			Help:      "Current number of cached backend client sets.",
		},
	)

	c.poolEntryAge = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_pool_entry_age_seconds",
			Help:      "Age of pool entries at prune time.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	c.forwardDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "multiplexer_forward_duration_seconds",
			Help:      "Duration of forwarded RPCs by method.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	c.forwardErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "multiplexer_forward_errors_total",
			Help:      "Total number of forwarding errors by method and code.",
		},
		[]string{"method", "code"},
	)

	c.registry.MustRegister(
		c.stateTransitions,
		c.restarts,
		c.healthChecks,
		c.poolSize,
		c.poolEntryAge,
		c.forwardDuration,
		c.forwardErrors,
	)

	return c
}

// Registry returns the underlying Prometheus registry for HTTP exposition.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) StateTransition(instance, from, to string) {
	c.stateTransitions.WithLabelValues(instance, from, to).Inc()
}

func (c *Collector) Restart(instance string) {
	c.restarts.WithLabelValues(instance).Inc()
}

func (c *Collector) HealthCheck(instance string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	c.healthChecks.WithLabelValues(instance, result).Inc()
}

func (c *Collector) SetPoolSize(n int) {
	c.poolSize.Set(float64(n))
}

func (c *Collector) ObservePoolEntryAge(age time.Duration) {
	c.poolEntryAge.Observe(age.Seconds())
}

func (c *Collector) ObserveForward(method string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.forwardDuration.WithLabelValues(method, status).Observe(duration.Seconds())
}

func (c *Collector) ForwardError(method, code string) {
	c.forwardErrors.WithLabelValues(method, code).Inc()
}
