package population

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Mirror is the observer strategy. It never places or evicts anything; its
// entity list changes only through Apply calls fed by host events.
type Mirror struct {
	factory EntityFactory // optional

	mu       sync.Mutex
	entities []SpawnedEntity
}

// NewMirror creates a mirror. With a non-nil factory every mirrored entity
// also gets a local representation.
func NewMirror(factory EntityFactory) *Mirror {
	return &Mirror{factory: factory}
}

// Kind names the strategy.
func (m *Mirror) Kind() string { return "mirror" }

// Run blocks until ctx is done. The mirror has no loop of its own.
func (m *Mirror) Run(ctx context.Context) error {
	slog.Info("population mirror started")
	<-ctx.Done()
	slog.Info("population mirror stopping", "entities", m.Len())
	return ctx.Err()
}

// ApplySpawned adds an entity announced by the host. Duplicates are ignored.
func (m *Mirror) ApplySpawned(e SpawnedEntity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addLocked(e)
}

// ApplyRemoved drops an entity evicted by the host.
func (m *Mirror) ApplyRemoved(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(id)
	if i < 0 {
		return
	}
	m.entities = slices.Delete(m.entities, i, i+1)
	m.destroy(id)
}

// Forget drops an entity whose local representation was already taken out
// of the world, e.g. picked up by the local agent. It reports whether the
// entity was mirrored.
func (m *Mirror) Forget(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(id)
	if i < 0 {
		return false
	}
	m.entities = slices.Delete(m.entities, i, i+1)
	return true
}

// ApplySnapshot replaces the mirrored list with the host's full list.
func (m *Mirror) ApplySnapshot(list []SpawnedEntity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[uuid.UUID]struct{}, len(list))
	for _, e := range list {
		want[e.ID] = struct{}{}
	}

	m.entities = slices.DeleteFunc(m.entities, func(e SpawnedEntity) bool {
		if _, ok := want[e.ID]; ok {
			return false
		}
		m.destroy(e.ID)
		return true
	})
	for _, e := range list {
		m.addLocked(e)
	}
}

// Entities returns a copy of the mirrored list, dropping entities whose
// local representation has gone away.
func (m *Mirror) Entities() []SpawnedEntity {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.factory != nil {
		m.entities = slices.DeleteFunc(m.entities, func(e SpawnedEntity) bool {
			return !m.factory.IsValid(e.ID)
		})
	}
	return slices.Clone(m.entities)
}

// Len returns the number of mirrored entities.
func (m *Mirror) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entities)
}

// Release destroys local representations not listed in keep and empties
// the mirror.
func (m *Mirror) Release(keep []SpawnedEntity) {
	kept := make(map[uuid.UUID]struct{}, len(keep))
	for _, e := range keep {
		kept[e.ID] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entities {
		if _, ok := kept[e.ID]; !ok {
			m.destroy(e.ID)
		}
	}
	m.entities = nil
}

func (m *Mirror) addLocked(e SpawnedEntity) {
	if m.indexLocked(e.ID) >= 0 {
		return
	}
	if m.factory != nil {
		if err := m.factory.Create(e.ID, e.Candidate, e.Pos, e.Rot); err != nil {
			slog.Warn("materializing mirrored entity", "id", e.ID, "candidate", e.Candidate, "error", err)
			return
		}
		m.factory.MarkDontPersist(e.ID)
	}
	m.entities = append(m.entities, e)
}

func (m *Mirror) indexLocked(id uuid.UUID) int {
	return slices.IndexFunc(m.entities, func(e SpawnedEntity) bool { return e.ID == id })
}

func (m *Mirror) destroy(id uuid.UUID) {
	if m.factory == nil {
		return
	}
	if err := m.factory.Destroy(id); err != nil {
		slog.Debug("destroying mirrored entity", "id", id, "error", err)
	}
}
