package population

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/udisondev/populace/internal/protocol"
)

// EntityFactory owns the world representation of spawned objects.
type EntityFactory interface {
	Create(id uuid.UUID, candidateID string, pos mgl64.Vec3, rot mgl64.Quat) error
	Destroy(id uuid.UUID) error
	IsValid(id uuid.UUID) bool
	// MarkDontPersist excludes the entity from save data; spawned objects
	// are regenerated instead of saved.
	MarkDontPersist(id uuid.UUID)
}

// SpawnedEntity is one object placed by the controller. Candidate and Zone
// are kept for diagnostics only.
type SpawnedEntity struct {
	ID        uuid.UUID
	Candidate string
	Zone      string
	Pos       mgl64.Vec3
	Rot       mgl64.Quat
	SpawnedAt time.Time
}

// ToWire converts the entity to its sync payload.
func (e SpawnedEntity) ToWire() protocol.Entity {
	return protocol.Entity{
		ID:        e.ID.String(),
		Candidate: e.Candidate,
		Zone:      e.Zone,
		Pos:       [3]float64{e.Pos.X(), e.Pos.Y(), e.Pos.Z()},
		Rot:       [4]float64{e.Rot.W, e.Rot.X(), e.Rot.Y(), e.Rot.Z()},
	}
}

// EntityFromWire converts a sync payload to an entity.
func EntityFromWire(w protocol.Entity) (SpawnedEntity, error) {
	id, err := uuid.Parse(w.ID)
	if err != nil {
		return SpawnedEntity{}, fmt.Errorf("parsing entity id %q: %w", w.ID, err)
	}
	return SpawnedEntity{
		ID:        id,
		Candidate: w.Candidate,
		Zone:      w.Zone,
		Pos:       mgl64.Vec3{w.Pos[0], w.Pos[1], w.Pos[2]},
		Rot:       mgl64.Quat{W: w.Rot[0], V: mgl64.Vec3{w.Rot[1], w.Rot[2], w.Rot[3]}},
	}, nil
}

func snapshotPayload(entities []SpawnedEntity) protocol.Snapshot {
	out := protocol.Snapshot{Entities: make([]protocol.Entity, 0, len(entities))}
	for _, e := range entities {
		out.Entities = append(out.Entities, e.ToWire())
	}
	return out
}
