package jsondb

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the queue collectors shared by every database of a Registry.
type Metrics struct {
	// Pending is the number of admitted requests not yet finished, per database.
	Pending *prometheus.GaugeVec
	// Mutations counts finished requests by database, kind and status.
	Mutations *prometheus.CounterVec
	// Duration is the execution time of requests by database and kind.
	Duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Pending: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "krawldb_queue_pending",
				Help: "Number of admitted mutations not yet finished",
			},
			[]string{"db"},
		),
		Mutations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "krawldb_mutations_total",
				Help: "Total number of finished mutations",
			},
			[]string{"db", "kind", "status"},
		),
		Duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "krawldb_mutation_duration_seconds",
				Help:    "Mutation execution latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"db", "kind"},
		),
	}
}

func (m *Metrics) observe(db string, kind Kind, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Mutations.WithLabelValues(db, string(kind), status).Inc()
	m.Duration.WithLabelValues(db, string(kind)).Observe(d.Seconds())
}
