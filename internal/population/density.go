package population

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Agent is a moving point the population is maintained around.
type Agent struct {
	ID  string
	Pos mgl64.Vec3
}

type cell struct {
	x, z int
}

// EstimateDensity translates every offset by each agent's truncated (x, z)
// position and counts the distinct cells, so overlapping neighbourhoods are
// counted once. area = cells × step², density = live / area.
// With no agents both results are zero.
func EstimateDensity(agents []Agent, offsets []GridOffset, step, live int) (area, density float64) {
	if len(agents) == 0 || len(offsets) == 0 {
		return 0, 0
	}

	cells := make(map[cell]struct{}, len(offsets)*len(agents))
	for _, a := range agents {
		ax, az := int(a.Pos.X()), int(a.Pos.Z())
		for _, o := range offsets {
			cells[cell{x: ax + o.X, z: az + o.Z}] = struct{}{}
		}
	}

	area = float64(len(cells)) * UnitArea(step)
	return area, float64(live) / area
}

// TargetDensity is the density a disk of radius holding maxEntities objects has.
func TargetDensity(radius int, maxEntities float64) float64 {
	if radius <= 0 {
		return 0
	}
	return maxEntities / (math.Pi * float64(radius) * float64(radius))
}

// SpawnPermitted reports whether the sampled area is below target density.
func SpawnPermitted(area, density, target float64) bool {
	return area > 0 && density < target
}
