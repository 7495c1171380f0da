package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "markercluster"

// Collector bundles the Prometheus metrics recorded by a render pass
type Collector struct {
	gatherer prometheus.Gatherer

	FeaturesIngested  prometheus.Counter
	FeaturesDiscarded *prometheus.CounterVec
	FeaturesVisible   prometheus.Gauge
	Clusters          prometheus.Gauge
	MergedFeatures    prometheus.Gauge
	PassDuration      *prometheus.HistogramVec
}

// NewCollector registers the metrics against reg, defaulting to the global
// Prometheus registry when nil. Registering twice reuses the existing
// collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ingested, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "features_ingested_total",
		Help:      "Total well-formed features handed to the pipeline.",
	}), "features_ingested_total")
	if err != nil {
		return nil, err
	}

	discarded, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "features_discarded_total",
		Help:      "Total malformed features skipped, labeled by reason.",
	}, []string{"reason"}), "features_discarded_total")
	if err != nil {
		return nil, err
	}

	visible, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "features_visible",
		Help:      "Features inside the view box in the last render pass.",
	}), "features_visible")
	if err != nil {
		return nil, err
	}

	clusters, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "clusters",
		Help:      "Markers produced by the last render pass.",
	}), "clusters")
	if err != nil {
		return nil, err
	}

	merged, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "merged_features",
		Help:      "Features absorbed into another marker in the last render pass.",
	}), "merged_features")
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pass_duration_seconds",
		Help:      "Render pass latency in seconds, labeled by cluster strategy.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"strategy"}), "pass_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:          gatherer,
		FeaturesIngested:  ingested,
		FeaturesDiscarded: discarded,
		FeaturesVisible:   visible,
		Clusters:          clusters,
		MergedFeatures:    merged,
		PassDuration:      duration,
	}, nil
}

// ObserveDiscards adds per-reason discard counts
func (c *Collector) ObserveDiscards(discarded map[string]int) {
	if c == nil {
		return
	}
	for reason, n := range discarded {
		c.FeaturesDiscarded.WithLabelValues(reason).Add(float64(n))
	}
}

// ObservePass records the outcome of one render pass
func (c *Collector) ObservePass(strategy string, ingested, visible, clusters, merged int, seconds float64) {
	if c == nil {
		return
	}
	c.FeaturesIngested.Add(float64(ingested))
	c.FeaturesVisible.Set(float64(visible))
	c.Clusters.Set(float64(clusters))
	c.MergedFeatures.Set(float64(merged))
	c.PassDuration.WithLabelValues(strategy).Observe(seconds)
}

// Handler exposes a ready-to-use /metrics handler
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}
