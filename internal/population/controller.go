// Package population keeps a bounded density of procedurally placed objects
// around moving agents. The host runs a Controller, a periodic pass that
// estimates density, places at most one object and evicts objects that
// drifted out of range. Observers run a Mirror driven only by sync events.
package population

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/udisondev/populace/internal/protocol"
	"github.com/udisondev/populace/internal/scene"
	"github.com/udisondev/populace/internal/zone"
)

// ErrInvalidConfig is returned when a controller is built with a broken
// configuration or missing collaborators.
var ErrInvalidConfig = errors.New("invalid population config")

// Config holds the controller tuning.
type Config struct {
	Radius        int           // spawn radius, eviction happens beyond 2×Radius
	Step          int           // sampling grid resolution
	Interval      time.Duration // wait between passes
	MaxEntities   float64       // cap per Radius disk
	MaxTries      int
	ProbeHeight   float64
	ProbeDistance float64
	Mask          scene.Layer // layers the placement probe may hit
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Radius:        50,
		Step:          4,
		Interval:      500 * time.Millisecond,
		MaxEntities:   10,
		MaxTries:      DefaultMaxTries,
		ProbeHeight:   DefaultProbeHeight,
		ProbeDistance: DefaultProbeDistance,
		Mask:          scene.AllLayers,
	}
}

// Validate checks the tuning.
func (c Config) Validate() error {
	if c.Step <= 0 {
		return fmt.Errorf("%w: step must be positive, got %d", ErrInvalidConfig, c.Step)
	}
	if c.Radius < c.Step {
		return fmt.Errorf("%w: radius %d below step %d", ErrInvalidConfig, c.Radius, c.Step)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if c.MaxEntities < 0 {
		return fmt.Errorf("%w: negative max entities", ErrInvalidConfig)
	}
	if c.MaxTries < 0 {
		return fmt.Errorf("%w: negative max tries", ErrInvalidConfig)
	}
	return nil
}

// AgentSource returns the current agent positions.
type AgentSource interface {
	Agents() []Agent
}

// Zones is the host-side zone lookup.
type Zones interface {
	CandidateSource
	ShelteredAt(p mgl64.Vec3) bool
}

// Publisher sends sync events to observers.
type Publisher interface {
	Broadcast(function string, payload []byte) error
}

// DiscardPublisher drops every event. Used when nobody observes.
type DiscardPublisher struct{}

func (DiscardPublisher) Broadcast(string, []byte) error { return nil }

// Deps are the controller collaborators. Scene, Factory, Agents and Zones are
// required.
type Deps struct {
	Scene      scene.Query
	Factory    EntityFactory
	Agents     AgentSource
	Zones      Zones
	Publisher  Publisher
	Conditions Conditions
	Recorder   Recorder
	Cache      *SampleCache
	Rand       *rand.Rand
	NewID      func() uuid.UUID
	Now        func() time.Time
}

func (d *Deps) fill() error {
	switch {
	case d.Scene == nil:
		return fmt.Errorf("%w: nil scene", ErrInvalidConfig)
	case d.Factory == nil:
		return fmt.Errorf("%w: nil entity factory", ErrInvalidConfig)
	case d.Agents == nil:
		return fmt.Errorf("%w: nil agent source", ErrInvalidConfig)
	case d.Zones == nil:
		return fmt.Errorf("%w: nil zones", ErrInvalidConfig)
	}
	if d.Publisher == nil {
		d.Publisher = DiscardPublisher{}
	}
	if d.Conditions == nil {
		d.Conditions = Always{}
	}
	if d.Recorder == nil {
		d.Recorder = NopRecorder{}
	}
	if d.Cache == nil {
		d.Cache = NewSampleCache()
	}
	if d.Rand == nil {
		d.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if d.NewID == nil {
		d.NewID = uuid.New
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return nil
}

// Controller is the host strategy. Passes never overlap; the live list is
// touched only from inside a pass. Readers get copies through Entities.
type Controller struct {
	cfg  Config
	deps Deps

	offsets  []GridOffset
	selector *Selector
	placer   *Placer

	live    []SpawnedEntity
	running atomic.Bool

	// publishMu orders snapshot publication against event broadcasts so a
	// joining observer never sees a snapshot older than the events it gets.
	publishMu sync.Mutex
	snapshot  atomic.Pointer[[]SpawnedEntity]
	// picked holds entities removed outside a pass and not yet pruned;
	// they stay out of snapshots. Guarded by publishMu.
	picked map[uuid.UUID]struct{}
}

// NewController creates a controller seeded with an optional live list.
func NewController(cfg Config, deps Deps, seed []SpawnedEntity) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := deps.fill(); err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:      cfg,
		deps:     deps,
		offsets:  deps.Cache.OffsetsInCircle(cfg.Radius, cfg.Step),
		selector: NewSelector(deps.Zones, cfg.MaxTries, deps.Rand),
		placer:   NewPlacer(deps.Scene, cfg.Mask, cfg.ProbeHeight, cfg.ProbeDistance, deps.Rand),
		live:     slices.Clone(seed),
		picked:   make(map[uuid.UUID]struct{}),
	}
	c.storeSnapshot()
	return c, nil
}

// Kind names the strategy.
func (c *Controller) Kind() string { return "controller" }

// Config returns the tuning the controller runs with.
func (c *Controller) Config() Config { return c.cfg }

// Run performs a pass every Interval until ctx is done. The wait starts
// after a pass finishes, so a slow pass delays the next one instead of
// queueing extra passes.
func (c *Controller) Run(ctx context.Context) error {
	slog.Info("population controller started",
		"radius", c.cfg.Radius,
		"step", c.cfg.Step,
		"interval", c.cfg.Interval,
		"max_entities", c.cfg.MaxEntities,
		"seeded", len(c.Entities()))

	timer := time.NewTimer(c.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("population controller stopping", "live", len(c.Entities()))
			return ctx.Err()
		case <-timer.C:
		}

		if ctx.Err() != nil {
			slog.Info("population controller stopping", "live", len(c.Entities()))
			return ctx.Err()
		}
		c.Pass()
		timer.Reset(c.cfg.Interval)
	}
}

// Pass runs Evaluate, Spawn and Cleanup once. A call made while another
// pass is in progress is skipped.
func (c *Controller) Pass() PassStats {
	if !c.running.CompareAndSwap(false, true) {
		c.deps.Recorder.Skipped(SkipBusy)
		return PassStats{Skip: SkipBusy}
	}
	defer c.running.Store(false)

	start := c.deps.Now()
	agents := c.deps.Agents.Agents()

	st := PassStats{Agents: len(agents)}
	c.spawn(agents, &st)
	c.cleanup(agents, &st)

	st.Live = len(c.live)
	st.Duration = c.deps.Now().Sub(start)
	c.deps.Recorder.PassCompleted(st)
	return st
}

func (c *Controller) spawn(agents []Agent, st *PassStats) {
	skip := func(r SkipReason) {
		st.Skip = r
		c.deps.Recorder.Skipped(r)
	}

	scale, active := c.deps.Conditions.SpawnScale()
	if !active {
		skip(SkipInactive)
		return
	}

	eligible := make([]Agent, 0, len(agents))
	for _, a := range agents {
		if !c.deps.Zones.ShelteredAt(a.Pos) {
			eligible = append(eligible, a)
		}
	}
	st.Eligible = len(eligible)
	if len(eligible) == 0 {
		skip(SkipNoAgents)
		return
	}

	st.Area, st.Density = EstimateDensity(eligible, c.offsets, c.cfg.Step, len(c.live))
	st.Target = TargetDensity(c.cfg.Radius, c.cfg.MaxEntities*scale)
	if !SpawnPermitted(st.Area, st.Density, st.Target) {
		skip(SkipAtTarget)
		return
	}

	agent := eligible[c.deps.Rand.IntN(len(eligible))]
	place, ok := c.placer.TryPlace(agent.Pos, c.cfg.Radius)
	if !ok {
		skip(SkipProbeMiss)
		return
	}

	cand, ok := c.selector.Select(place.Point)
	if !ok {
		skip(SkipPoolExhausted)
		return
	}

	e := SpawnedEntity{
		ID:        c.deps.NewID(),
		Candidate: cand.ID,
		Zone:      cand.Zone,
		Pos:       place.Point,
		Rot:       SurfaceRotation(place.Normal, c.deps.Rand.Float64()*2*math.Pi),
		SpawnedAt: c.deps.Now(),
	}
	if err := c.deps.Factory.Create(e.ID, e.Candidate, e.Pos, e.Rot); err != nil {
		slog.Error("creating spawned entity",
			"candidate", e.Candidate,
			"pos", e.Pos,
			"error", err)
		skip(SkipCreateFailed)
		return
	}
	c.deps.Factory.MarkDontPersist(e.ID)

	c.live = append(c.live, e)
	st.Spawned++
	c.deps.Recorder.Spawned(e)

	slog.Debug("population spawned",
		"id", e.ID,
		"candidate", e.Candidate,
		"zone", e.Zone,
		"agent", agent.ID,
		"live", len(c.live))

	c.publish(protocol.FunctionSpawned, e.ToWire())
}

func (c *Controller) cleanup(agents []Agent, st *PassStats) {
	limit := 2 * float64(c.cfg.Radius)

	kept := c.live[:0]
	var gone, pruned []SpawnedEntity
	for _, e := range c.live {
		if !c.deps.Factory.IsValid(e.ID) {
			pruned = append(pruned, e)
			continue
		}
		if OutOfRange(e.Pos, agents, limit) {
			gone = append(gone, e)
			continue
		}
		kept = append(kept, e)
	}
	clear(c.live[len(kept):])
	c.live = kept

	if len(pruned) > 0 {
		c.publishMu.Lock()
		for _, e := range pruned {
			delete(c.picked, e.ID)
		}
		c.storeSnapshotLocked()
		c.publishMu.Unlock()
	}
	for _, e := range pruned {
		st.Pruned++
		c.deps.Recorder.Pruned(e)
	}

	for _, e := range gone {
		c.publish(protocol.FunctionRemoved, protocol.Removed{ID: e.ID.String()})
		if err := c.deps.Factory.Destroy(e.ID); err != nil {
			slog.Warn("destroying evicted entity", "id", e.ID, "error", err)
		}
		st.Evicted++
		c.deps.Recorder.Evicted(e)
	}
}

// OutOfRange reports whether pos is farther than limit from every agent.
func OutOfRange(pos mgl64.Vec3, agents []Agent, limit float64) bool {
	for _, a := range agents {
		if pos.Sub(a.Pos).Len() <= limit {
			return false
		}
	}
	return true
}

// publish stores the current snapshot and broadcasts an event under one lock.
func (c *Controller) publish(function string, v any) {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	c.storeSnapshotLocked()
	c.broadcastLocked(function, v)
}

func (c *Controller) broadcastLocked(function string, v any) {
	payload, err := protocol.Encode(v)
	if err != nil {
		slog.Error("encoding population event", "function", function, "error", err)
		return
	}
	if err := c.deps.Publisher.Broadcast(function, payload); err != nil {
		slog.Warn("publishing population event", "function", function, "error", err)
	}
}

func (c *Controller) storeSnapshot() {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	c.storeSnapshotLocked()
}

func (c *Controller) storeSnapshotLocked() {
	snap := slices.Clone(c.live)
	if len(c.picked) > 0 {
		snap = slices.DeleteFunc(snap, func(e SpawnedEntity) bool {
			_, ok := c.picked[e.ID]
			return ok
		})
	}
	c.snapshot.Store(&snap)
}

// Has reports whether id is in the published live list.
func (c *Controller) Has(id uuid.UUID) bool {
	return slices.ContainsFunc(*c.snapshot.Load(), func(e SpawnedEntity) bool { return e.ID == id })
}

// Forget handles an entity taken out of the world by someone else, e.g.
// picked up by an agent. The removal is announced to observers right away
// and the entity leaves the published list; the live list drops it on the
// next pass like any invalid handle. Unknown IDs are announced too, since
// observers ignore removals they have no copy of.
func (c *Controller) Forget(id uuid.UUID) {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	snap := *c.snapshot.Load()
	if i := slices.IndexFunc(snap, func(e SpawnedEntity) bool { return e.ID == id }); i >= 0 {
		c.picked[id] = struct{}{}
		snap = slices.Delete(slices.Clone(snap), i, i+1)
		c.snapshot.Store(&snap)
	}
	c.broadcastLocked(protocol.FunctionRemoved, protocol.Removed{ID: id.String()})
}

// SendSnapshot hands the current snapshot payload to send. Events published
// concurrently are ordered strictly before or after it.
func (c *Controller) SendSnapshot(send func(payload []byte) error) error {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	payload, err := protocol.Encode(snapshotPayload(*c.snapshot.Load()))
	if err != nil {
		return err
	}
	return send(payload)
}

// Entities returns a copy of the live list as of the last change.
func (c *Controller) Entities() []SpawnedEntity {
	return slices.Clone(*c.snapshot.Load())
}

// Release destroys every live entity not listed in keep. Call only after
// Run has returned.
func (c *Controller) Release(keep []SpawnedEntity) {
	kept := make(map[uuid.UUID]struct{}, len(keep))
	for _, e := range keep {
		kept[e.ID] = struct{}{}
	}

	for _, e := range c.live {
		if _, ok := kept[e.ID]; ok {
			continue
		}
		if err := c.deps.Factory.Destroy(e.ID); err != nil {
			slog.Debug("releasing entity", "id", e.ID, "error", err)
		}
	}
	c.live = nil

	c.publishMu.Lock()
	clear(c.picked)
	c.storeSnapshotLocked()
	c.publishMu.Unlock()
}

var _ CandidateSource = (*zone.Registry)(nil)
var _ Zones = (*zone.Registry)(nil)
