package population

import "time"

// SkipReason says why a pass did not spawn.
type SkipReason string

const (
	SkipInactive      SkipReason = "inactive"
	SkipNoAgents      SkipReason = "no_agents"
	SkipAtTarget      SkipReason = "at_target"
	SkipProbeMiss     SkipReason = "probe_miss"
	SkipPoolExhausted SkipReason = "pool_exhausted"
	SkipCreateFailed  SkipReason = "create_failed"
	SkipBusy          SkipReason = "busy"
)

// PassStats summarizes one controller pass.
type PassStats struct {
	Agents   int
	Eligible int
	Live     int
	Area     float64
	Density  float64
	Target   float64
	Spawned  int
	Evicted  int
	Pruned   int
	Skip     SkipReason // empty when a spawn happened
	Duration time.Duration
}

// Recorder observes controller activity. Implementations must not block.
type Recorder interface {
	Spawned(e SpawnedEntity)
	Evicted(e SpawnedEntity)
	Pruned(e SpawnedEntity)
	Skipped(reason SkipReason)
	PassCompleted(s PassStats)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) Spawned(SpawnedEntity)   {}
func (NopRecorder) Evicted(SpawnedEntity)   {}
func (NopRecorder) Pruned(SpawnedEntity)    {}
func (NopRecorder) Skipped(SkipReason)      {}
func (NopRecorder) PassCompleted(PassStats) {}

type multiRecorder []Recorder

// MultiRecorder fans out to every non-nil recorder.
func MultiRecorder(rs ...Recorder) Recorder {
	out := make(multiRecorder, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multiRecorder) Spawned(e SpawnedEntity) {
	for _, r := range m {
		r.Spawned(e)
	}
}

func (m multiRecorder) Evicted(e SpawnedEntity) {
	for _, r := range m {
		r.Evicted(e)
	}
}

func (m multiRecorder) Pruned(e SpawnedEntity) {
	for _, r := range m {
		r.Pruned(e)
	}
}

func (m multiRecorder) Skipped(reason SkipReason) {
	for _, r := range m {
		r.Skipped(reason)
	}
}

func (m multiRecorder) PassCompleted(s PassStats) {
	for _, r := range m {
		r.PassCompleted(s)
	}
}
