package population

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/udisondev/populace/internal/messaging"
	"github.com/udisondev/populace/internal/protocol"
)

// Strategy is what a session runs for its current role.
type Strategy interface {
	Kind() string
	Run(ctx context.Context) error
	Entities() []SpawnedEntity
	// Release drops the strategy's entities, destroying those not in keep.
	Release(keep []SpawnedEntity)
}

var (
	_ Strategy = (*Controller)(nil)
	_ Strategy = (*Mirror)(nil)
)

// RemoteAgents receives agent positions reported by observers.
type RemoteAgents interface {
	SetRemote(peer messaging.PeerID, name string, pos mgl64.Vec3)
	RemoveRemote(peer messaging.PeerID)
}

// SessionOptions configure a Session.
type SessionOptions struct {
	// MirrorEntities makes observers create local representations of
	// mirrored entities through the factory.
	MirrorEntities bool
}

// Session binds the population strategy to the messaging role. A role
// change stops the running strategy before anything else changes.
type Session struct {
	cfg    Config
	deps   Deps
	bus    *messaging.Bus
	remote RemoteAgents
	opts   SessionOptions

	mu      sync.Mutex
	role    messaging.Role
	current Strategy
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSession validates the configuration and registers the population
// message handlers on bus. remote may be nil.
func NewSession(cfg Config, deps Deps, bus *messaging.Bus, remote RemoteAgents, opts SessionOptions) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := deps.fill(); err != nil {
		return nil, err
	}
	if bus == nil {
		return nil, fmt.Errorf("%w: nil bus", ErrInvalidConfig)
	}

	s := &Session{
		cfg:    cfg,
		deps:   deps,
		bus:    bus,
		remote: remote,
		opts:   opts,
	}

	handlers := []struct {
		function string
		handler  messaging.Handler
	}{
		{protocol.FunctionSpawned, s.onSpawned},
		{protocol.FunctionRemoved, s.onRemoved},
		{protocol.FunctionSnapshot, s.onSnapshot},
		{protocol.FunctionAgentMoved, s.onAgentMoved},
		{protocol.FunctionPickup, s.onPickup},
		{messaging.FunctionClientConnected, s.onClientConnected},
		{messaging.FunctionClientDisconnected, s.onClientDisconnected},
	}
	for _, h := range handlers {
		if err := bus.RegisterFunction(h.function, h.handler); err != nil {
			return nil, fmt.Errorf("registering population handlers: %w", err)
		}
	}

	return s, nil
}

// SetRole stops the current strategy, switches the bus role and starts the
// strategy for role. ctx bounds the lifetime of the new strategy.
//
// Host and unconnected roles run a Controller seeded with seed; when seed is
// nil and the previous strategy was a Controller its entities carry over.
// The observer role runs a Mirror and ignores seed.
func (s *Session) SetRole(ctx context.Context, role messaging.Role, seed []SpawnedEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.role
	old := s.current
	s.stopLocked()

	if role != messaging.RoleObserver && seed == nil {
		if c, ok := old.(*Controller); ok {
			seed = c.Entities()
		}
	}
	if role == messaging.RoleObserver {
		seed = nil
	}
	if old != nil {
		old.Release(seed)
	}
	s.current = nil

	s.bus.SetRole(role)
	s.role = role

	var next Strategy
	switch role {
	case messaging.RoleHost, messaging.RoleUnconnected:
		deps := s.deps
		deps.Publisher = DiscardPublisher{}
		if role == messaging.RoleHost {
			deps.Publisher = s.bus
		}
		c, err := NewController(s.cfg, deps, seed)
		if err != nil {
			return fmt.Errorf("starting controller: %w", err)
		}
		next = c
	case messaging.RoleObserver:
		var factory EntityFactory
		if s.opts.MirrorEntities {
			factory = s.deps.Factory
		}
		next = NewMirror(factory)
	default:
		return fmt.Errorf("%w: unknown role %s", ErrInvalidConfig, role)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := next.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("population strategy stopped", "strategy", next.Kind(), "error", err)
		}
	}()

	s.current = next
	s.cancel = cancel
	s.done = done

	slog.Info("population role changed",
		"from", from,
		"to", role,
		"strategy", next.Kind(),
		"seeded", len(seed))
	return nil
}

// Run blocks until ctx is done, then stops the current strategy.
func (s *Session) Run(ctx context.Context) error {
	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop stops the current strategy and waits for it to exit.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Session) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

// Role returns the current role.
func (s *Session) Role() messaging.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// Strategy returns the current strategy, nil before the first SetRole.
func (s *Session) Strategy() Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Entities returns the current strategy's entities.
func (s *Session) Entities() []SpawnedEntity {
	st := s.Strategy()
	if st == nil {
		return nil
	}
	return st.Entities()
}

// EntityPickedUp reports that a local agent took entity id out of the
// world. A host or unconnected controller announces the removal; an
// observer drops its mirrored copy and asks the host to remove the entity.
func (s *Session) EntityPickedUp(id uuid.UUID) {
	switch st := s.Strategy().(type) {
	case *Controller:
		st.Forget(id)
	case *Mirror:
		// the mirror may have pruned the copy already; the host decides
		// whether id is one of its entities
		st.Forget(id)
		payload, err := protocol.Encode(protocol.Pickup{ID: id.String()})
		if err != nil {
			slog.Error("encoding pickup", "id", id, "error", err)
			return
		}
		if err := s.bus.SendHost(protocol.FunctionPickup, payload); err != nil {
			slog.Warn("sending pickup to host", "id", id, "error", err)
		}
	}
}

func (s *Session) withMirror(fn func(m *Mirror)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.current.(*Mirror)
	if ok {
		fn(m)
	}
	return ok
}

func (s *Session) onSpawned(from messaging.PeerID, payload []byte) error {
	if from != messaging.HostPeerID {
		return fmt.Errorf("spawn event from peer %d", from)
	}
	var w protocol.Entity
	if err := protocol.Decode(protocol.FunctionSpawned, payload, &w); err != nil {
		return err
	}
	e, err := EntityFromWire(w)
	if err != nil {
		return err
	}
	if !s.withMirror(func(m *Mirror) { m.ApplySpawned(e) }) {
		slog.Debug("spawn event ignored, not observing", "id", e.ID)
	}
	return nil
}

func (s *Session) onRemoved(from messaging.PeerID, payload []byte) error {
	if from != messaging.HostPeerID {
		return fmt.Errorf("remove event from peer %d", from)
	}
	var w protocol.Removed
	if err := protocol.Decode(protocol.FunctionRemoved, payload, &w); err != nil {
		return err
	}
	e, err := EntityFromWire(protocol.Entity{ID: w.ID})
	if err != nil {
		return err
	}
	s.withMirror(func(m *Mirror) { m.ApplyRemoved(e.ID) })
	return nil
}

func (s *Session) onSnapshot(from messaging.PeerID, payload []byte) error {
	if from != messaging.HostPeerID {
		return fmt.Errorf("snapshot from peer %d", from)
	}
	var snap protocol.Snapshot
	if err := protocol.Decode(protocol.FunctionSnapshot, payload, &snap); err != nil {
		return err
	}
	list := make([]SpawnedEntity, 0, len(snap.Entities))
	for _, w := range snap.Entities {
		e, err := EntityFromWire(w)
		if err != nil {
			return err
		}
		list = append(list, e)
	}
	s.withMirror(func(m *Mirror) { m.ApplySnapshot(list) })
	return nil
}

func (s *Session) onAgentMoved(from messaging.PeerID, payload []byte) error {
	if s.remote == nil || s.Role() != messaging.RoleHost {
		return nil
	}
	var m protocol.AgentMoved
	if err := protocol.Decode(protocol.FunctionAgentMoved, payload, &m); err != nil {
		return err
	}
	s.remote.SetRemote(from, m.Name, mgl64.Vec3{m.Pos[0], m.Pos[1], m.Pos[2]})
	return nil
}

func (s *Session) onPickup(from messaging.PeerID, payload []byte) error {
	if from == messaging.HostPeerID || s.Role() != messaging.RoleHost {
		return nil
	}
	var p protocol.Pickup
	if err := protocol.Decode(protocol.FunctionPickup, payload, &p); err != nil {
		return err
	}
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return fmt.Errorf("pickup id %q: %w", p.ID, err)
	}

	c, ok := s.Strategy().(*Controller)
	if !ok || !c.Has(id) {
		slog.Debug("pickup of unknown entity ignored", "peer", from, "id", id)
		return nil
	}
	if err := s.deps.Factory.Destroy(id); err != nil {
		slog.Debug("destroying picked up entity", "peer", from, "id", id, "error", err)
	}
	c.Forget(id)
	return nil
}

func (s *Session) onClientConnected(from messaging.PeerID, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.current.(*Controller)
	if !ok || s.role != messaging.RoleHost || from == messaging.HostPeerID {
		return nil
	}
	return c.SendSnapshot(func(payload []byte) error {
		return s.bus.SendTo(from, protocol.FunctionSnapshot, payload)
	})
}

func (s *Session) onClientDisconnected(from messaging.PeerID, _ []byte) error {
	if s.remote != nil {
		s.remote.RemoveRemote(from)
	}
	if from == messaging.HostPeerID && s.Role() == messaging.RoleObserver {
		slog.Warn("lost connection to host")
	}
	return nil
}
