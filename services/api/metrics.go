package api

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	mutations *prometheus.CounterVec
	served    *prometheus.CounterVec
	extracted prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gamehost",
			Name:      "mutations_total",
			Help:      "Upload, reupload, delete and feedback requests by outcome.",
		}, []string{"op", "result"}),
		served: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gamehost",
			Name:      "served_total",
			Help:      "Requests under /games by how they were answered.",
		}, []string{"kind"}),
		extracted: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gamehost",
			Name:      "extracted_bytes",
			Help:      "Uncompressed size of extracted archives.",
			Buckets:   prometheus.ExponentialBuckets(1<<20, 4, 8),
		}),
	}
	for _, c := range []prometheus.Collector{m.mutations, m.served, m.extracted} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) mutation(op, result string) {
	m.mutations.WithLabelValues(op, result).Inc()
}

func (m *metrics) serve(kind string) {
	m.served.WithLabelValues(kind).Inc()
}
