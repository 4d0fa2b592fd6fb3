package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineCollector is a second, independent metrics path for the batch
// pipeline's two hottest latencies, registered against the real
// client_golang library rather than the hand-rolled Registry above. Large
// services sometimes run both during a migration between metrics
// systems; here it exists so an operator can point a standard Prometheus
// scrape config at quids without adapting it to the hand-rolled text
// format first.
type PipelineCollector struct {
	registry             *prometheus.Registry
	BatchAssemblySeconds prometheus.Histogram
	ProofGenSeconds      prometheus.Histogram
}

// NewPipelineCollector creates a PipelineCollector registered against its
// own prometheus.Registry (kept separate from prometheus.DefaultRegisterer
// so constructing more than one in tests doesn't panic on duplicate
// registration).
func NewPipelineCollector() *PipelineCollector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &PipelineCollector{
		registry: reg,
		BatchAssemblySeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "quids",
			Subsystem: "batch",
			Name:      "assembly_seconds",
			Help:      "Time spent draining the pending queue and sealing it into a batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		ProofGenSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "quids",
			Subsystem: "proof",
			Name:      "generation_seconds",
			Help:      "Time spent generating a state-transition proof for a batch.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler returns an http.Handler serving this collector's registry in
// Prometheus exposition format, independent of PrometheusExporter's
// /metrics endpoint.
func (c *PipelineCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
