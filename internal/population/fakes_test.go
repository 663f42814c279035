package population

import (
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/populace/internal/messaging"
	"github.com/udisondev/populace/internal/scene"
	"github.com/udisondev/populace/internal/zone"
)

// fakeFactory для тестов: in-memory entity store.
type fakeFactory struct {
	mu        sync.Mutex
	live      map[uuid.UUID]string
	dontSave  map[uuid.UUID]bool
	destroyed []uuid.UUID
	createErr error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		live:     make(map[uuid.UUID]string),
		dontSave: make(map[uuid.UUID]bool),
	}
}

func (f *fakeFactory) Create(id uuid.UUID, candidateID string, _ mgl64.Vec3, _ mgl64.Quat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.live[id]; ok {
		return errors.New("duplicate entity")
	}
	f.live[id] = candidateID
	return nil
}

func (f *fakeFactory) Destroy(id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.live[id]; !ok {
		return errors.New("unknown entity")
	}
	delete(f.live, id)
	f.destroyed = append(f.destroyed, id)
	return nil
}

func (f *fakeFactory) IsValid(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.live[id]
	return ok
}

func (f *fakeFactory) MarkDontPersist(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dontSave[id] = true
}

// invalidate simulates a player picking the entity up.
func (f *fakeFactory) invalidate(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, id)
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

func (f *fakeFactory) destroyedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.destroyed)
}

type staticAgents struct {
	mu     sync.Mutex
	agents []Agent
}

func agentsAt(points ...mgl64.Vec3) *staticAgents {
	s := &staticAgents{}
	for i, p := range points {
		s.agents = append(s.agents, Agent{ID: string(rune('a' + i)), Pos: p})
	}
	return s
}

func (s *staticAgents) Agents() []Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Agent(nil), s.agents...)
}

func (s *staticAgents) set(points ...mgl64.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents = s.agents[:0]
	for i, p := range points {
		s.agents = append(s.agents, Agent{ID: string(rune('a' + i)), Pos: p})
	}
}

type event struct {
	function string
	payload  []byte
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []event
}

func (p *recordingPublisher) Broadcast(function string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event{function: function, payload: payload})
	return nil
}

func (p *recordingPublisher) list() []event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]event(nil), p.events...)
}

type countingRecorder struct {
	mu      sync.Mutex
	spawned int
	evicted int
	pruned  int
	skipped map[SkipReason]int
	passes  int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{skipped: make(map[SkipReason]int)}
}

func (r *countingRecorder) Spawned(SpawnedEntity) { r.mu.Lock(); r.spawned++; r.mu.Unlock() }
func (r *countingRecorder) Evicted(SpawnedEntity) { r.mu.Lock(); r.evicted++; r.mu.Unlock() }
func (r *countingRecorder) Pruned(SpawnedEntity)  { r.mu.Lock(); r.pruned++; r.mu.Unlock() }
func (r *countingRecorder) Skipped(s SkipReason) {
	r.mu.Lock()
	r.skipped[s]++
	r.mu.Unlock()
}
func (r *countingRecorder) PassCompleted(PassStats) { r.mu.Lock(); r.passes++; r.mu.Unlock() }

func mustRegistry(t *testing.T, baseline ...zone.Candidate) *zone.Registry {
	t.Helper()
	if len(baseline) == 0 {
		baseline = []zone.Candidate{{ID: "rock", Chance: 100}}
	}
	r, err := zone.NewRegistry(baseline)
	require.NoError(t, err)
	return r
}

func testRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

type testEnv struct {
	cfg      Config
	deps     Deps
	factory  *fakeFactory
	agents   *staticAgents
	pub      *recordingPublisher
	recorder *countingRecorder
}

// newTestEnv builds a flat ground plane at y=0 and one agent at the origin.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		cfg:      DefaultConfig(),
		factory:  newFakeFactory(),
		agents:   agentsAt(mgl64.Vec3{0, 0, 0}),
		pub:      &recordingPublisher{},
		recorder: newCountingRecorder(),
	}
	env.cfg.Interval = time.Hour
	env.deps = Deps{
		Scene:     scene.NewWorld(scene.NewPlane(0, scene.LayerTerrain)),
		Factory:   env.factory,
		Agents:    env.agents,
		Zones:     mustRegistry(t),
		Publisher: env.pub,
		Recorder:  env.recorder,
		Rand:      testRand(),
	}
	return env
}

func (env *testEnv) controller(t *testing.T, seed ...SpawnedEntity) *Controller {
	t.Helper()
	c, err := NewController(env.cfg, env.deps, seed)
	require.NoError(t, err)
	return c
}

// seedEntity creates an entity in the factory at pos and returns it.
func (env *testEnv) seedEntity(t *testing.T, pos mgl64.Vec3) SpawnedEntity {
	t.Helper()
	e := SpawnedEntity{ID: uuid.New(), Candidate: "rock", Pos: pos, Rot: mgl64.QuatIdent()}
	require.NoError(t, env.factory.Create(e.ID, e.Candidate, e.Pos, e.Rot))
	return e
}

// loopback connects a host bus and one observer bus in memory.
type loopback struct {
	host     *messaging.Bus
	observer *messaging.Bus
	peer     messaging.PeerID
	toHost   bool
}

func (l *loopback) Send(to messaging.PeerID, frame []byte) error {
	if l.toHost {
		l.host.HandleFrame(l.peer, frame)
		return nil
	}
	if to == l.peer {
		l.observer.HandleFrame(messaging.HostPeerID, frame)
	}
	return nil
}

func (l *loopback) SendAll(frame []byte, except ...messaging.PeerID) error {
	for _, e := range except {
		if e == l.peer {
			return nil
		}
	}
	return l.Send(l.peer, frame)
}

func connect(host, observer *messaging.Bus, peer messaging.PeerID) {
	host.SetTransport(&loopback{host: host, observer: observer, peer: peer})
	observer.SetTransport(&loopback{host: host, observer: observer, peer: peer, toHost: true})
}
