package screener

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records screening activity. A nil *Metrics records nothing.
type Metrics struct {
	runs       *prometheus.CounterVec
	evaluated  prometheus.Counter
	passed     prometheus.Counter
	rejections *prometheus.CounterVec
	duration   prometheus.Histogram
}

// NewMetrics registers the screener collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screener_runs_total",
				Help: "Screening runs by outcome",
			},
			[]string{"outcome"},
		),
		evaluated: f.NewCounter(prometheus.CounterOpts{
			Name: "screener_records_evaluated_total",
			Help: "Option records evaluated",
		}),
		passed: f.NewCounter(prometheus.CounterOpts{
			Name: "screener_records_passed_total",
			Help: "Option records that satisfied every constraint",
		}),
		rejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screener_rejections_total",
				Help: "Failed constraints by configuration key and reason",
			},
			[]string{"key", "reason"},
		),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "screener_run_duration_seconds",
			Help:    "Duration of screening runs in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) recordInvalid() {
	if m == nil {
		return
	}
	m.runs.WithLabelValues("invalid").Inc()
}

func (m *Metrics) recordFailed() {
	if m == nil {
		return
	}
	m.runs.WithLabelValues("error").Inc()
}

func (m *Metrics) recordResult(res *Result, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues("ok").Inc()
	m.evaluated.Add(float64(res.Evaluated))
	m.passed.Add(float64(res.Passed))
	for _, v := range res.Rejected {
		for _, f := range v.Failures {
			m.rejections.WithLabelValues(f.Key, string(f.Reason)).Inc()
		}
	}
	m.duration.Observe(elapsed.Seconds())
}
