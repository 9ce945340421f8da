package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by the writer. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	DocumentsWritten *prometheus.CounterVec
	WriteDuration    *prometheus.HistogramVec
	HintStreamBytes  prometheus.Histogram
	SizingPasses     prometheus.Histogram
	ObjectCount      prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	documents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: MetricDocumentsWritten,
		Help: "Documents written, by output mode",
	}, []string{"mode"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    MetricWriteTime,
		Help:    "Time spent serializing a document",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	hintBytes := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    MetricHintStreamBytes,
		Help:    "Encoded size of the primary hint stream",
		Buckets: prometheus.ExponentialBuckets(64, 4, 8),
	})

	passes := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    MetricSizingPasses,
		Help:    "Layout passes needed until the hint stream size was stable",
		Buckets: prometheus.LinearBuckets(1, 1, 8),
	})

	objects := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    MetricObjectCount,
		Help:    "Indirect objects per written document",
		Buckets: prometheus.ExponentialBuckets(8, 4, 8),
	})

	reg.MustRegister(documents, duration, hintBytes, passes, objects)

	return &Metrics{
		DocumentsWritten: documents,
		WriteDuration:    duration,
		HintStreamBytes:  hintBytes,
		SizingPasses:     passes,
		ObjectCount:      objects,
	}
}

// ObserveWrite records one finished document.
func (m *Metrics) ObserveWrite(mode string, objects int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.DocumentsWritten.WithLabelValues(mode).Inc()
	m.WriteDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	m.ObjectCount.Observe(float64(objects))
}

// ObserveHintStream records the hint stream size and the sizing passes
// needed to reach it.
func (m *Metrics) ObserveHintStream(bytes int, passes int) {
	if m == nil {
		return
	}
	m.HintStreamBytes.Observe(float64(bytes))
	m.SizingPasses.Observe(float64(passes))
}
