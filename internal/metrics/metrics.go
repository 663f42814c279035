// Package metrics exports population and sync counters to Prometheus.
// Label values are bounded: skip reasons, function names and drop reasons
// come from fixed sets.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/udisondev/populace/internal/population"
)

// Metrics implements population.Recorder and messaging.Stats.
type Metrics struct {
	spawned      *prometheus.CounterVec
	evicted      prometheus.Counter
	pruned       prometheus.Counter
	skipped      *prometheus.CounterVec
	live         prometheus.Gauge
	agents       prometheus.Gauge
	density      prometheus.Gauge
	target       prometheus.Gauge
	passDuration prometheus.Histogram

	delivered *prometheus.CounterVec
	failed    *prometheus.CounterVec
	dropped   *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		spawned: f.NewCounterVec(prometheus.CounterOpts{
			Name: "populace_spawned_total",
			Help: "Entities spawned by the controller",
		}, []string{"zone"}),
		evicted: f.NewCounter(prometheus.CounterOpts{
			Name: "populace_evicted_total",
			Help: "Entities destroyed because no agent was near",
		}),
		pruned: f.NewCounter(prometheus.CounterOpts{
			Name: "populace_pruned_total",
			Help: "Entities dropped after becoming invalid",
		}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "populace_pass_skipped_total",
			Help: "Passes that did not spawn, by reason",
		}, []string{"reason"}),
		live: f.NewGauge(prometheus.GaugeOpts{
			Name: "populace_live_entities",
			Help: "Entities currently owned by the controller",
		}),
		agents: f.NewGauge(prometheus.GaugeOpts{
			Name: "populace_agents",
			Help: "Agents seen in the last pass",
		}),
		density: f.NewGauge(prometheus.GaugeOpts{
			Name: "populace_density",
			Help: "Entities per unit area in the last pass",
		}),
		target: f.NewGauge(prometheus.GaugeOpts{
			Name: "populace_target_density",
			Help: "Target density in the last pass",
		}),
		passDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "populace_pass_duration_seconds",
			Help:    "Time spent in one controller pass",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		delivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "populace_messages_delivered_total",
			Help: "Messages delivered to handlers",
		}, []string{"function"}),
		failed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "populace_handler_failures_total",
			Help: "Handler errors and panics",
		}, []string{"function"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "populace_frames_dropped_total",
			Help: "Frames dropped before delivery",
		}, []string{"reason"}),
	}
}

func (m *Metrics) Spawned(e population.SpawnedEntity) {
	zone := e.Zone
	if zone == "" {
		zone = "baseline"
	}
	m.spawned.WithLabelValues(zone).Inc()
}

func (m *Metrics) Evicted(population.SpawnedEntity) { m.evicted.Inc() }
func (m *Metrics) Pruned(population.SpawnedEntity)  { m.pruned.Inc() }

func (m *Metrics) Skipped(reason population.SkipReason) {
	m.skipped.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) PassCompleted(s population.PassStats) {
	m.live.Set(float64(s.Live))
	m.agents.Set(float64(s.Agents))
	m.density.Set(s.Density)
	m.target.Set(s.Target)
	m.passDuration.Observe(s.Duration.Seconds())
}

func (m *Metrics) MessageDelivered(function string) {
	m.delivered.WithLabelValues(function).Inc()
}

func (m *Metrics) HandlerFailed(function string) {
	m.failed.WithLabelValues(function).Inc()
}

func (m *Metrics) FrameDropped(reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}
