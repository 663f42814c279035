package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/populace/internal/messaging"
	"github.com/udisondev/populace/internal/population"
)

var (
	_ population.Recorder = (*Metrics)(nil)
	_ messaging.Stats     = (*Metrics)(nil)
)

func TestMetrics_Recorder(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m := New(reg)

	m.Spawned(population.SpawnedEntity{Zone: "beach"})
	m.Spawned(population.SpawnedEntity{Zone: "beach"})
	m.Spawned(population.SpawnedEntity{})
	m.Evicted(population.SpawnedEntity{})
	m.Pruned(population.SpawnedEntity{})
	m.Pruned(population.SpawnedEntity{})
	m.Skipped(population.SkipAtTarget)
	m.PassCompleted(population.PassStats{Agents: 2, Live: 7, Density: 0.5, Target: 0.25, Duration: time.Millisecond})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.spawned.WithLabelValues("beach")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.spawned.WithLabelValues("baseline")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evicted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.pruned))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skipped.WithLabelValues("at_target")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.live))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.agents))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.density))
	assert.Equal(t, 0.25, testutil.ToFloat64(m.target))
	assert.Equal(t, 1, testutil.CollectAndCount(m.passDuration))
}

func TestMetrics_Stats(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m := New(reg)

	m.MessageDelivered("PopulationSpawned")
	m.HandlerFailed("PopulationSpawned")
	m.FrameDropped("rate_limit")
	m.FrameDropped("rate_limit")

	expected := `
# HELP populace_frames_dropped_total Frames dropped before delivery
# TYPE populace_frames_dropped_total counter
populace_frames_dropped_total{reason="rate_limit"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "populace_frames_dropped_total"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.delivered.WithLabelValues("PopulationSpawned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failed.WithLabelValues("PopulationSpawned")))
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
