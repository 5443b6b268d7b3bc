package metrics

import (
	"net/http"
	"time"

	"index-checker/core/reconcile"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "indexcheck"

// Outcome label values of finished units, besides the error kinds.
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
)

// Collector records reconciliation metrics. It implements reconcile.Observer.
type Collector struct {
	registry *prometheus.Registry

	unitsInFlight *prometheus.GaugeVec
	unitsTotal    *prometheus.CounterVec
	unitDuration  *prometheus.HistogramVec
	recordsTotal  *prometheus.CounterVec
}

// New creates a collector on its own registry, with Go and process
// collectors included.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		unitsInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "units_in_flight",
			Help:      "Reconciliation units currently running.",
		}, []string{"model"}),
		unitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_total",
			Help:      "Finished reconciliation units by outcome.",
		}, []string{"model", "outcome"}),
		unitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unit_duration_seconds",
			Help:      "Duration of reconciliation units.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"model"}),
		recordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Compared records by bucket.",
		}, []string{"model", "bucket"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.unitsInFlight,
		c.unitsTotal,
		c.unitDuration,
		c.recordsTotal,
	)
	return c
}

// Registry returns the registry holding every metric.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// UnitStarted implements reconcile.Observer.
func (c *Collector) UnitStarted(model string) {
	c.unitsInFlight.WithLabelValues(model).Inc()
}

// UnitFinished implements reconcile.Observer.
func (c *Collector) UnitFinished(model string, comp *reconcile.Comparison, skipped bool, elapsed time.Duration) {
	c.unitsInFlight.WithLabelValues(model).Dec()
	c.unitDuration.WithLabelValues(model).Observe(elapsed.Seconds())

	switch {
	case skipped || comp == nil:
		c.unitsTotal.WithLabelValues(model, OutcomeSkipped).Inc()
		return
	case comp.Failed():
		c.unitsTotal.WithLabelValues(model, comp.Error.Kind).Inc()
		return
	}

	c.unitsTotal.WithLabelValues(model, OutcomeOK).Inc()
	counts := comp.Counts
	c.recordsTotal.WithLabelValues(model, "exact").Add(float64(counts.Exact))
	c.recordsTotal.WithLabelValues(model, "not_exact").Add(float64(counts.NotExact))
	c.recordsTotal.WithLabelValues(model, "only_authoritative").Add(float64(counts.OnlyAuthoritative))
	c.recordsTotal.WithLabelValues(model, "only_index").Add(float64(counts.OnlyIndex))
}
