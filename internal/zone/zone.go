// Package zone implements spawn zones with geometric bounds and the
// registry that merges their candidate tables with the baseline table.
package zone

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// Zone shape names accepted in configuration.
const (
	ShapeCuboid   = "Cuboid"
	ShapeCylinder = "Cylinder"
	ShapeNPoly    = "NPoly"
)

var (
	// ErrInvalidZone is returned for a nil zone, an empty name or broken geometry.
	ErrInvalidZone = errors.New("invalid zone")
	// ErrInvalidCandidate is returned for an empty candidate ID or a chance outside 0..100.
	ErrInvalidCandidate = errors.New("invalid spawn candidate")
)

// Candidate is a spawnable object type with its spawn chance (0..100).
// Zone is empty for baseline candidates.
type Candidate struct {
	ID     string
	Chance int
	Zone   string
}

// Validate checks candidate invariants.
func (c Candidate) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidCandidate)
	}
	if c.Chance < 0 || c.Chance > 100 {
		return fmt.Errorf("%w: %s chance %d out of range 0..100", ErrInvalidCandidate, c.ID, c.Chance)
	}
	return nil
}

// Zone is a named region exposing an additional candidate table.
// Horizontal geometry lives on the XZ plane, MinY..MaxY bounds it vertically.
type Zone struct {
	name    string
	shape   string
	minY    float64
	maxY    float64
	nodesX  []float64
	nodesZ  []float64
	radius  float64 // Cylinder only
	shelter bool

	candidates []Candidate
}

// Spec describes a zone before construction.
type Spec struct {
	Name       string
	Shape      string
	Nodes      [][2]float64 // (x, z) pairs; Cylinder uses the first as center
	MinY, MaxY float64
	Radius     float64
	Shelter    bool
	Candidates []Candidate
}

// New builds a zone from spec, validating geometry and candidates.
// Candidates get their Zone field set to the zone name.
func New(s Spec) (*Zone, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidZone)
	}
	if s.MinY > s.MaxY {
		return nil, fmt.Errorf("%w: %s min_y %.1f > max_y %.1f", ErrInvalidZone, s.Name, s.MinY, s.MaxY)
	}

	shape, ok := parseShape(s.Shape)
	if !ok {
		return nil, fmt.Errorf("%w: %s unknown shape %q", ErrInvalidZone, s.Name, s.Shape)
	}
	switch shape {
	case ShapeCuboid:
		if len(s.Nodes) < 2 {
			return nil, fmt.Errorf("%w: %s cuboid needs 2+ nodes", ErrInvalidZone, s.Name)
		}
	case ShapeCylinder:
		if len(s.Nodes) < 1 || s.Radius <= 0 {
			return nil, fmt.Errorf("%w: %s cylinder needs a center and radius > 0", ErrInvalidZone, s.Name)
		}
	case ShapeNPoly:
		if len(s.Nodes) < 3 {
			return nil, fmt.Errorf("%w: %s polygon needs 3+ nodes", ErrInvalidZone, s.Name)
		}
	}

	z := &Zone{
		name:    s.Name,
		shape:   shape,
		minY:    s.MinY,
		maxY:    s.MaxY,
		radius:  s.Radius,
		shelter: s.Shelter,
		nodesX:  make([]float64, len(s.Nodes)),
		nodesZ:  make([]float64, len(s.Nodes)),
	}
	for i, n := range s.Nodes {
		z.nodesX[i] = n[0]
		z.nodesZ[i] = n[1]
	}

	z.candidates = make([]Candidate, 0, len(s.Candidates))
	for _, c := range s.Candidates {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("zone %s: %w", s.Name, err)
		}
		c.Zone = s.Name
		z.candidates = append(z.candidates, c)
	}

	return z, nil
}

// parseShape maps a configured shape name, in any letter case, to its
// canonical form. Empty means cuboid.
func parseShape(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ShapeCuboid, true
	}
	for _, shape := range []string{ShapeCuboid, ShapeCylinder, ShapeNPoly} {
		if strings.EqualFold(name, shape) {
			return shape, true
		}
	}
	return "", false
}

// Name returns the zone name.
func (z *Zone) Name() string { return z.name }

// Shape returns the zone shape name.
func (z *Zone) Shape() string { return z.shape }

// Shelter reports whether agents inside this zone are excluded from spawning.
func (z *Zone) Shelter() bool { return z.shelter }

// Candidates returns the zone's candidate table. Callers must not modify it.
func (z *Zone) Candidates() []Candidate { return z.candidates }

// Contains checks if point p is inside the zone geometry.
// Cuboid uses an axis-aligned box over the nodes, Cylinder a center+radius
// circle and NPoly ray casting. Boundaries count as inside.
func (z *Zone) Contains(p mgl64.Vec3) bool {
	x, y, zc := p[0], p[1], p[2]
	if y < z.minY || y > z.maxY {
		return false
	}

	switch z.shape {
	case ShapeCuboid:
		return z.containsCuboid(x, zc)
	case ShapeCylinder:
		return z.containsCylinder(x, zc)
	default:
		return z.containsNPoly(x, zc)
	}
}

// bounds returns the horizontal bounding box of the zone.
func (z *Zone) bounds() (minX, minZ, maxX, maxZ float64) {
	if z.shape == ShapeCylinder {
		cx, cz := z.nodesX[0], z.nodesZ[0]
		return cx - z.radius, cz - z.radius, cx + z.radius, cz + z.radius
	}

	minX, maxX = z.nodesX[0], z.nodesX[0]
	minZ, maxZ = z.nodesZ[0], z.nodesZ[0]
	for i := 1; i < len(z.nodesX); i++ {
		minX = min(minX, z.nodesX[i])
		maxX = max(maxX, z.nodesX[i])
		minZ = min(minZ, z.nodesZ[i])
		maxZ = max(maxZ, z.nodesZ[i])
	}
	return minX, minZ, maxX, maxZ
}

func (z *Zone) containsCuboid(x, zc float64) bool {
	minX, minZ, maxX, maxZ := z.bounds()
	return x >= minX && x <= maxX && zc >= minZ && zc <= maxZ
}

func (z *Zone) containsCylinder(x, zc float64) bool {
	dx := x - z.nodesX[0]
	dz := zc - z.nodesZ[0]
	return dx*dx+dz*dz <= z.radius*z.radius
}

// containsNPoly is the even-odd ray casting test; a point on an edge is inside.
func (z *Zone) containsNPoly(x, zc float64) bool {
	n := len(z.nodesX)
	inside := false
	j := n - 1

	for i := range n {
		xi, zi := z.nodesX[i], z.nodesZ[i]
		xj, zj := z.nodesX[j], z.nodesZ[j]

		if (zi > zc) != (zj > zc) {
			cross := (x-xi)*(zj-zi) - (xj-xi)*(zc-zi)
			if cross == 0 {
				return true
			}
			if (cross < 0) != (zj-zi < 0) {
				inside = !inside
			}
		} else if zi == zc && zj == zc && x >= min(xi, xj) && x <= max(xi, xj) {
			// horizontal edge
			return true
		}
		j = i
	}

	return inside
}
