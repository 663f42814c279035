// Package journal keeps a compressed on-disk record of population events
// for offline analysis.
package journal

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/udisondev/populace/internal/population"
)

// Event kinds.
const (
	KindSpawned = "spawned"
	KindEvicted = "evicted"
	KindPruned  = "pruned"
	KindPass    = "pass"
)

// Record is one journal line.
type Record struct {
	Time      time.Time   `json:"time"`
	Kind      string      `json:"kind"`
	ID        string      `json:"id,omitempty"`
	Candidate string      `json:"candidate,omitempty"`
	Zone      string      `json:"zone,omitempty"`
	Pos       *[3]float64 `json:"pos,omitempty"`
	Pass      *PassRecord `json:"pass,omitempty"`
}

// PassRecord is the pass summary written for passes that changed something.
type PassRecord struct {
	Agents   int     `json:"agents"`
	Live     int     `json:"live"`
	Density  float64 `json:"density"`
	Target   float64 `json:"target"`
	Spawned  int     `json:"spawned"`
	Evicted  int     `json:"evicted"`
	Pruned   int     `json:"pruned"`
	Skip     string  `json:"skip,omitempty"`
	Duration float64 `json:"duration_ms"`
}

// DefaultQueueSize is the number of records buffered between the pass and
// the file writer.
const DefaultQueueSize = 1024

// Journal writes population events. It implements population.Recorder.
// Records are queued and written by a background goroutine, so a slow disk
// never stalls a population pass; a full queue drops the record. Write
// errors are logged and otherwise ignored.
type Journal struct {
	w   *Writer
	now func() time.Time

	mu      sync.RWMutex // guards closed against sends on queue
	closed  bool
	queue   chan Record
	done    chan struct{}
	dropped atomic.Uint64
}

// New creates a journal writing "population-<hour>.jsonl.zst" files to dir.
// A non-positive queueSize means DefaultQueueSize.
func New(dir string, queueSize int) *Journal {
	j := newJournal(NewWriter(dir, "population"), queueSize, time.Now)
	j.start()
	return j
}

func newJournal(w *Writer, queueSize int, now func() time.Time) *Journal {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Journal{
		w:     w,
		now:   now,
		queue: make(chan Record, queueSize),
		done:  make(chan struct{}),
	}
}

func (j *Journal) start() { go j.loop() }

// loop writes queued records and flushes whenever the queue runs dry.
func (j *Journal) loop() {
	defer close(j.done)

	for r := range j.queue {
		if err := j.w.Write(r); err != nil {
			slog.Error("writing journal", "kind", r.Kind, "error", err)
		}
		if len(j.queue) > 0 {
			continue
		}
		if err := j.w.Flush(); err != nil {
			slog.Error("flushing journal", "error", err)
		}
	}
}

// Dropped returns how many records were lost to a full queue.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

// Close writes the queued records and closes the current file. Records
// arriving afterwards are dropped.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	<-j.done
	if n := j.dropped.Load(); n > 0 {
		slog.Warn("journal dropped records", "dropped", n)
	}
	return j.w.Close()
}

func (j *Journal) Spawned(e population.SpawnedEntity) { j.entity(KindSpawned, e) }
func (j *Journal) Evicted(e population.SpawnedEntity) { j.entity(KindEvicted, e) }
func (j *Journal) Pruned(e population.SpawnedEntity)  { j.entity(KindPruned, e) }

// Skipped is not journaled; skips are frequent and covered by metrics.
func (j *Journal) Skipped(population.SkipReason) {}

// PassCompleted journals passes with spawns or removals only.
func (j *Journal) PassCompleted(s population.PassStats) {
	if s.Spawned == 0 && s.Evicted == 0 && s.Pruned == 0 {
		return
	}
	j.write(Record{
		Time: j.now(),
		Kind: KindPass,
		Pass: &PassRecord{
			Agents:   s.Agents,
			Live:     s.Live,
			Density:  s.Density,
			Target:   s.Target,
			Spawned:  s.Spawned,
			Evicted:  s.Evicted,
			Pruned:   s.Pruned,
			Skip:     string(s.Skip),
			Duration: float64(s.Duration) / float64(time.Millisecond),
		},
	})
}

func (j *Journal) entity(kind string, e population.SpawnedEntity) {
	pos := [3]float64{e.Pos.X(), e.Pos.Y(), e.Pos.Z()}
	j.write(Record{
		Time:      j.now(),
		Kind:      kind,
		ID:        e.ID.String(),
		Candidate: e.Candidate,
		Zone:      e.Zone,
		Pos:       &pos,
	})
}

// write queues r without blocking.
func (j *Journal) write(r Record) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.dropped.Add(1)
		return
	}

	select {
	case j.queue <- r:
	default:
		if j.dropped.Add(1) == 1 {
			slog.Warn("journal queue full, dropping records", "kind", r.Kind)
		}
	}
}
