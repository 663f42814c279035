package world

import (
	"sync"

	"github.com/google/uuid"
)

// region holds the entities whose position falls inside one grid square.
type region struct {
	entities sync.Map // map[uuid.UUID]*Entity
}

func (r *region) add(e *Entity) {
	r.entities.Store(e.ID, e)
}

func (r *region) remove(id uuid.UUID) {
	r.entities.Delete(id)
}

// forEach iterates entities until fn returns false.
func (r *region) forEach(fn func(*Entity) bool) {
	r.entities.Range(func(_, value any) bool {
		return fn(value.(*Entity))
	})
}
