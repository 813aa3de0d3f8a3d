package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors updated by the collector rank.
type Metrics struct {
	Steps    *prometheus.CounterVec
	Records  *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewMetrics creates the pipeline collectors and registers them with reg
// when reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "galotfa",
			Name:      "analysis_steps_total",
			Help:      "Number of analysed steps per analysis.",
		}, []string{"analysis"}),
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "galotfa",
			Name:      "records_pushed_total",
			Help:      "Number of pushes per output dataset.",
		}, []string{"dataset"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "galotfa",
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of one analysis step, reductions and writes included.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"analysis"}),
	}
	if reg != nil {
		reg.MustRegister(m.Steps, m.Records, m.Duration)
	}
	return m
}

func (m *Metrics) observeStep(analysis string, d time.Duration) {
	if m == nil {
		return
	}
	m.Steps.WithLabelValues(analysis).Inc()
	m.Duration.WithLabelValues(analysis).Observe(d.Seconds())
}

func (m *Metrics) addRecord(dataset string) {
	if m == nil {
		return
	}
	m.Records.WithLabelValues(dataset).Inc()
}
