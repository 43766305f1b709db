package ingestion

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the ingestion pipeline.
type Metrics struct {
	JobsSubmitted  *prometheus.CounterVec
	JobsRejected   *prometheus.CounterVec
	JobsFinished   *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	EmbedRetries   prometheus.Counter
	JobsInFlight   prometheus.Gauge
	QueueDepth     prometheus.Gauge
	ChunksIngested prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is handy in tests.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		JobsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kbingest_jobs_submitted_total",
				Help: "Ingestion jobs accepted by the queue, by mode.",
			},
			[]string{"mode"},
		),
		JobsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kbingest_jobs_rejected_total",
				Help: "Ingestion jobs rejected by the queue, by reason.",
			},
			[]string{"reason"},
		),
		JobsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kbingest_jobs_finished_total",
				Help: "Ingestion runs that reached a terminal status.",
			},
			[]string{"status"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kbingest_stage_duration_seconds",
				Help:    "Time spent in each ingestion stage.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		EmbedRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kbingest_embedding_retries_total",
				Help: "Embedding requests retried after a failure.",
			},
		),
		JobsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "kbingest_jobs_in_flight",
				Help: "Ingestion runs currently executing.",
			},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "kbingest_queue_depth",
				Help: "Jobs waiting for a worker.",
			},
		),
		ChunksIngested: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kbingest_chunks_ingested_total",
				Help: "Chunks stored by successful runs.",
			},
		),
	}

	if reg == nil {
		return m, nil
	}

	var errs []error
	for _, c := range []prometheus.Collector{
		m.JobsSubmitted,
		m.JobsRejected,
		m.JobsFinished,
		m.StageDuration,
		m.EmbedRetries,
		m.JobsInFlight,
		m.QueueDepth,
		m.ChunksIngested,
	} {
		errs = append(errs, reg.Register(c))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}
