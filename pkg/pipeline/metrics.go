package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hed1ad/seqguard/pkg/detectors/seqdbscan"
)

const namespace = "seqguard"

// Metrics holds the pipeline and engine collectors.
type Metrics struct {
	ItemsProcessed prometheus.Counter
	ItemsFailed    prometheus.Counter
	ForcedReleases prometheus.Counter
	PublishSpins   prometheus.Counter
	QueueDepth     prometheus.Gauge
	SinkDepth      prometheus.Gauge

	BatchesDrained  prometheus.Counter
	VectorsIngested prometheus.Counter
	VectorsRejected prometheus.Counter

	EnginePoints   prometheus.Gauge
	EngineClusters prometheus.Gauge
	EngineNoise    prometheus.Gauge
	EngineRetired  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ItemsProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "items_processed_total",
			Help: "Raw items extracted, normalized and published.",
		}),
		ItemsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "items_failed_total",
			Help: "Raw items dropped after a worker failure.",
		}),
		ForcedReleases: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "sink_forced_releases_total",
			Help: "Sink tokens cleared on behalf of a failed or stopped owner.",
		}),
		PublishSpins: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "publish_spins_total",
			Help: "Failed sink acquisition attempts.",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "input_queue_depth",
			Help: "Raw items waiting for a worker.",
		}),
		SinkDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "sink_depth",
			Help: "Vectors waiting for the consumer.",
		}),
		BatchesDrained: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "consumer", Name: "batches_total",
			Help: "Non-empty batches drained from the sink.",
		}),
		VectorsIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "consumer", Name: "vectors_ingested_total",
			Help: "Vectors accepted by the engine.",
		}),
		VectorsRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "consumer", Name: "vectors_rejected_total",
			Help: "Vectors rejected by the engine.",
		}),
		EnginePoints: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "engine", Name: "points",
			Help: "Points ingested by the engine.",
		}),
		EngineClusters: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "engine", Name: "clusters",
			Help: "Live clusters.",
		}),
		EngineNoise: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "engine", Name: "noise_points",
			Help: "Points currently labelled noise.",
		}),
		EngineRetired: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "engine", Name: "retired_clusters",
			Help: "Cluster IDs retired by merges.",
		}),
	}
}

func (m *Metrics) observeEngine(s seqdbscan.Stats) {
	m.EnginePoints.Set(float64(s.Points))
	m.EngineClusters.Set(float64(s.Clusters))
	m.EngineNoise.Set(float64(s.Noise))
	m.EngineRetired.Set(float64(s.Retired))
}
