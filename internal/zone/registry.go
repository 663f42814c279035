package zone

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const gridSize = 64.0 // world units per index cell

type gridKey struct {
	gx, gz int32
}

// Registry holds the baseline candidate table and every registered zone,
// with a coarse grid index for containment lookups.
//
// Zones are registered once per session and never removed. The registry is
// owned by the host; it is not safe for registration concurrent with lookups.
type Registry struct {
	baseline []Candidate
	zones    []*Zone
	byName   map[string]*Zone
	grid     map[gridKey][]*Zone
}

// NewRegistry creates a registry with the given baseline candidate table.
func NewRegistry(baseline []Candidate) (*Registry, error) {
	b := make([]Candidate, 0, len(baseline))
	for _, c := range baseline {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("baseline table: %w", err)
		}
		c.Zone = ""
		b = append(b, c)
	}

	return &Registry{
		baseline: b,
		byName:   make(map[string]*Zone),
		grid:     make(map[gridKey][]*Zone),
	}, nil
}

// Register adds a zone. Registering a name that is already known is a no-op
// and returns false, so re-entering a zone never replaces its table.
func (r *Registry) Register(z *Zone) (bool, error) {
	if z == nil {
		return false, fmt.Errorf("%w: nil zone", ErrInvalidZone)
	}
	if z.name == "" {
		return false, fmt.Errorf("%w: empty name", ErrInvalidZone)
	}
	if _, ok := r.byName[z.name]; ok {
		slog.Debug("zone already registered", "zone", z.name)
		return false, nil
	}

	r.zones = append(r.zones, z)
	r.byName[z.name] = z
	r.index(z)

	ids := make([]string, 0, len(z.candidates))
	for _, c := range z.candidates {
		ids = append(ids, c.ID)
	}
	slog.Info("spawn zone registered",
		"zone", z.name,
		"shape", z.shape,
		"shelter", z.shelter,
		"candidates", ids)

	return true, nil
}

// Baseline returns the baseline candidate table. Callers must not modify it.
func (r *Registry) Baseline() []Candidate { return r.baseline }

// Zones returns registered zones in registration order.
func (r *Registry) Zones() []*Zone { return r.zones }

// Zone returns a zone by name.
func (r *Registry) Zone(name string) (*Zone, bool) {
	z, ok := r.byName[name]
	return z, ok
}

// Len returns the number of registered zones.
func (r *Registry) Len() int { return len(r.zones) }

// ZonesAt returns all zones containing p, in registration order.
func (r *Registry) ZonesAt(p mgl64.Vec3) []*Zone {
	var result []*Zone
	for _, z := range r.grid[keyFor(p[0], p[2])] {
		if z.Contains(p) {
			result = append(result, z)
		}
	}
	return result
}

// CandidatesAt returns a fresh slice: the baseline table followed by the
// tables of every zone containing p.
func (r *Registry) CandidatesAt(p mgl64.Vec3) []Candidate {
	zones := r.ZonesAt(p)

	n := len(r.baseline)
	for _, z := range zones {
		n += len(z.candidates)
	}

	result := make([]Candidate, 0, n)
	result = append(result, r.baseline...)
	for _, z := range zones {
		result = append(result, z.candidates...)
	}
	return result
}

// ShelteredAt reports whether p lies inside any shelter zone.
func (r *Registry) ShelteredAt(p mgl64.Vec3) bool {
	for _, z := range r.ZonesAt(p) {
		if z.shelter {
			return true
		}
	}
	return false
}

// index adds z to every grid cell its bounding box touches. Cells keep
// registration order because zones are appended in that order.
func (r *Registry) index(z *Zone) {
	minX, minZ, maxX, maxZ := z.bounds()
	lo := keyFor(minX, minZ)
	hi := keyFor(maxX, maxZ)

	for gx := lo.gx; gx <= hi.gx; gx++ {
		for gz := lo.gz; gz <= hi.gz; gz++ {
			key := gridKey{gx: gx, gz: gz}
			r.grid[key] = append(r.grid[key], z)
		}
	}
}

func keyFor(x, z float64) gridKey {
	return gridKey{
		gx: int32(math.Floor(x / gridSize)),
		gz: int32(math.Floor(z / gridSize)),
	}
}
