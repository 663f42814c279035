package world

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/populace/internal/population"
)

var _ population.EntityFactory = (*Store)(nil)

// steppedClock возвращает время, сдвигающееся на секунду при каждом вызове.
func steppedClock() func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newTestStore() *Store {
	s := NewStore()
	s.now = steppedClock()
	return s
}

func TestStore_CreateDestroy(t *testing.T) {
	s := newTestStore()
	id := uuid.New()

	require.NoError(t, s.Create(id, "rock", mgl64.Vec3{1, 0, 1}, mgl64.QuatIdent()))
	assert.True(t, s.IsValid(id))
	assert.Equal(t, 1, s.Count())

	e, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, "rock", e.Candidate)
	assert.True(t, e.Persistent())

	err := s.Create(id, "rock", mgl64.Vec3{}, mgl64.QuatIdent())
	assert.ErrorIs(t, err, ErrDuplicateEntity)
	assert.Equal(t, 1, s.Count())

	require.NoError(t, s.Destroy(id))
	assert.False(t, s.IsValid(id))
	assert.Equal(t, 0, s.Count())
	assert.ErrorIs(t, s.Destroy(id), ErrUnknownEntity)
}

func TestStore_Pickup(t *testing.T) {
	s := newTestStore()
	id := uuid.New()
	require.NoError(t, s.Create(id, "shell", mgl64.Vec3{}, mgl64.QuatIdent()))

	assert.True(t, s.Pickup(id))
	assert.False(t, s.Pickup(id))
	assert.False(t, s.IsValid(id))
	assert.Empty(t, s.Nearby(mgl64.Vec3{}, 10))
}

func TestStore_OnPickup(t *testing.T) {
	s := newTestStore()
	picked, destroyed := uuid.New(), uuid.New()
	require.NoError(t, s.Create(picked, "shell", mgl64.Vec3{}, mgl64.QuatIdent()))
	require.NoError(t, s.Create(destroyed, "rock", mgl64.Vec3{1, 0, 0}, mgl64.QuatIdent()))

	var got []uuid.UUID
	s.OnPickup(func(id uuid.UUID) {
		assert.False(t, s.IsValid(id), "hook runs after removal")
		got = append(got, id)
	})

	require.NoError(t, s.Destroy(destroyed))
	assert.True(t, s.Pickup(picked))
	assert.False(t, s.Pickup(picked))
	assert.Equal(t, []uuid.UUID{picked}, got, "only successful pickups are reported")

	s.OnPickup(nil)
	again := uuid.New()
	require.NoError(t, s.Create(again, "shell", mgl64.Vec3{}, mgl64.QuatIdent()))
	assert.True(t, s.Pickup(again))
	assert.Len(t, got, 1)
}

func TestStore_MarkDontPersist(t *testing.T) {
	s := newTestStore()
	kept, spawned := uuid.New(), uuid.New()
	require.NoError(t, s.Create(kept, "crate", mgl64.Vec3{}, mgl64.QuatIdent()))
	require.NoError(t, s.Create(spawned, "rock", mgl64.Vec3{}, mgl64.QuatIdent()))

	s.MarkDontPersist(spawned)
	s.MarkDontPersist(uuid.New()) // unknown ID is a no-op

	persistent := s.Persistent()
	require.Len(t, persistent, 1)
	assert.Equal(t, kept, persistent[0].ID)
}

func TestStore_Nearby(t *testing.T) {
	s := newTestStore()

	tests := []struct {
		name string
		pos  mgl64.Vec3
		want bool
	}{
		{"same region", mgl64.Vec3{3, 0, 4}, true},
		{"exact radius", mgl64.Vec3{10, 0, 0}, true},
		{"neighbour region", mgl64.Vec3{-6, 0, -6}, true},
		{"too far", mgl64.Vec3{40, 0, 0}, false},
		{"above", mgl64.Vec3{0, 11, 0}, false},
	}

	ids := make(map[uuid.UUID]string)
	for _, tt := range tests {
		id := uuid.New()
		ids[id] = tt.name
		require.NoError(t, s.Create(id, "rock", tt.pos, mgl64.QuatIdent()))
	}

	got := make(map[string]bool)
	for _, e := range s.Nearby(mgl64.Vec3{}, 10) {
		got[ids[e.ID]] = true
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, got[tt.name])
		})
	}
}

func TestStore_NearbyOldestFirst(t *testing.T) {
	s := newTestStore()
	first, second := uuid.New(), uuid.New()
	require.NoError(t, s.Create(first, "a", mgl64.Vec3{40, 0, 0}, mgl64.QuatIdent()))
	require.NoError(t, s.Create(second, "b", mgl64.Vec3{1, 0, 0}, mgl64.QuatIdent()))

	got := s.Nearby(mgl64.Vec3{20, 0, 0}, 25)
	require.Len(t, got, 2)
	assert.Equal(t, first, got[0].ID)
	assert.Equal(t, second, got[1].ID)
}

func TestRegionsAround(t *testing.T) {
	assert.Len(t, regionsAround(16, 16, 1), 1)
	assert.Len(t, regionsAround(0, 0, 1), 4)
	assert.Equal(t, regionKey{rx: -1, rz: 0}, regionOf(-0.5, 0))
}
