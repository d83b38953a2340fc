package gate

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	admissions *prometheus.CounterVec
	duration   prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zkgate",
			Name:      "admissions_total",
			Help:      "Number of gate requests, by response status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "zkgate",
			Name:      "admission_duration_seconds",
			Help:      "Time taken to open, verify and invalidate an entry proof.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
	reg.MustRegister(m.admissions, m.duration)
	return m
}
