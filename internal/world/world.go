// Package world holds the local world state the population runs against:
// the entity store, the agents and a demo agent that wanders the terrain.
package world

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

var (
	ErrDuplicateEntity = errors.New("entity already exists")
	ErrUnknownEntity   = errors.New("unknown entity")
)

// Entity is the world representation of a spawned object.
type Entity struct {
	ID        uuid.UUID
	Candidate string
	Pos       mgl64.Vec3
	Rot       mgl64.Quat
	CreatedAt time.Time

	persist atomic.Bool
}

// Persistent reports whether the entity belongs in save data.
func (e *Entity) Persistent() bool { return e.persist.Load() }

// Store is the entity registry with a coarse spatial index. Safe for
// concurrent use.
type Store struct {
	objects sync.Map // map[uuid.UUID]*Entity
	regions sync.Map // map[regionKey]*region
	count   atomic.Int64

	onPickup atomic.Pointer[func(uuid.UUID)]
	now      func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Create adds an entity. New entities are persistent until marked otherwise.
func (s *Store) Create(id uuid.UUID, candidateID string, pos mgl64.Vec3, rot mgl64.Quat) error {
	e := &Entity{
		ID:        id,
		Candidate: candidateID,
		Pos:       pos,
		Rot:       rot,
		CreatedAt: s.now(),
	}
	e.persist.Store(true)

	if _, loaded := s.objects.LoadOrStore(id, e); loaded {
		return fmt.Errorf("creating %s: %w", id, ErrDuplicateEntity)
	}
	s.regionFor(pos).add(e)
	s.count.Add(1)
	return nil
}

// Destroy removes an entity.
func (s *Store) Destroy(id uuid.UUID) error {
	if !s.remove(id) {
		return fmt.Errorf("destroying %s: %w", id, ErrUnknownEntity)
	}
	return nil
}

// Pickup removes an entity the way a player collecting it would. The
// spawner is not asked; the hook set with OnPickup is told afterwards.
func (s *Store) Pickup(id uuid.UUID) bool {
	if !s.remove(id) {
		return false
	}
	if fn := s.onPickup.Load(); fn != nil {
		(*fn)(id)
	}
	return true
}

// OnPickup sets the function called after each successful Pickup. nil
// removes it.
func (s *Store) OnPickup(fn func(id uuid.UUID)) {
	if fn == nil {
		s.onPickup.Store(nil)
		return
	}
	s.onPickup.Store(&fn)
}

func (s *Store) remove(id uuid.UUID) bool {
	value, ok := s.objects.LoadAndDelete(id)
	if !ok {
		return false
	}
	e := value.(*Entity)
	if r, ok := s.regions.Load(regionOf(e.Pos.X(), e.Pos.Z())); ok {
		r.(*region).remove(id)
	}
	s.count.Add(-1)
	return true
}

// IsValid reports whether the entity still exists.
func (s *Store) IsValid(id uuid.UUID) bool {
	_, ok := s.objects.Load(id)
	return ok
}

// MarkDontPersist excludes the entity from save data.
func (s *Store) MarkDontPersist(id uuid.UUID) {
	if value, ok := s.objects.Load(id); ok {
		value.(*Entity).persist.Store(false)
	}
}

// Get returns an entity by ID.
func (s *Store) Get(id uuid.UUID) (*Entity, bool) {
	value, ok := s.objects.Load(id)
	if !ok {
		return nil, false
	}
	return value.(*Entity), true
}

// Count returns the number of entities (O(1)).
func (s *Store) Count() int {
	return int(s.count.Load())
}

// Persistent returns the entities that belong in save data, oldest first.
func (s *Store) Persistent() []*Entity {
	var out []*Entity
	s.objects.Range(func(_, value any) bool {
		if e := value.(*Entity); e.Persistent() {
			out = append(out, e)
		}
		return true
	})
	sortByAge(out)
	return out
}

// Nearby returns entities within radius of pos (3D distance), oldest first.
func (s *Store) Nearby(pos mgl64.Vec3, radius float64) []*Entity {
	var out []*Entity
	for _, key := range regionsAround(pos.X(), pos.Z(), radius) {
		r, ok := s.regions.Load(key)
		if !ok {
			continue
		}
		r.(*region).forEach(func(e *Entity) bool {
			if e.Pos.Sub(pos).Len() <= radius {
				out = append(out, e)
			}
			return true
		})
	}
	sortByAge(out)
	return out
}

func (s *Store) regionFor(pos mgl64.Vec3) *region {
	key := regionOf(pos.X(), pos.Z())
	if r, ok := s.regions.Load(key); ok {
		return r.(*region)
	}
	r, _ := s.regions.LoadOrStore(key, &region{})
	return r.(*region)
}

func sortByAge(list []*Entity) {
	slices.SortFunc(list, func(a, b *Entity) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
}
