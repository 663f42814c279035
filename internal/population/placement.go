package population

import (
	"math"
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/udisondev/populace/internal/scene"
)

const (
	DefaultProbeHeight   = 6.0
	DefaultProbeDistance = 10.0
)

var down = mgl64.Vec3{0, -1, 0}

// Placement is a validated spawn point on a surface.
type Placement struct {
	Point  mgl64.Vec3
	Normal mgl64.Vec3
	Layer  scene.Layer
}

// Placer probes the scene downward near an agent for a spawn point.
type Placer struct {
	scene    scene.Query
	mask     scene.Layer
	height   float64
	distance float64
	rng      *rand.Rand
}

// NewPlacer creates a placer. Non-positive height or distance use the defaults.
func NewPlacer(q scene.Query, mask scene.Layer, height, distance float64, rng *rand.Rand) *Placer {
	if height <= 0 {
		height = DefaultProbeHeight
	}
	if distance <= 0 {
		distance = DefaultProbeDistance
	}
	return &Placer{scene: q, mask: mask, height: height, distance: distance, rng: rng}
}

// TryPlace picks a random offset inside a disk of radius U(1, radius) around
// agentPos and probes straight down from height units above it. A miss
// returns false and is not an error.
func (p *Placer) TryPlace(agentPos mgl64.Vec3, radius int) (Placement, bool) {
	off := p.randomOffset(float64(radius))
	origin := agentPos.Add(mgl64.Vec3{off.X(), p.height, off.Y()})

	hit, ok := p.scene.Probe(origin, down, p.distance, p.mask)
	if !ok {
		return Placement{}, false
	}
	return Placement{Point: hit.Point, Normal: hit.Normal, Layer: hit.Layer}, true
}

// randomOffset returns a point uniform in the unit disk scaled by U(1, radius).
func (p *Placer) randomOffset(radius float64) mgl64.Vec2 {
	theta := p.rng.Float64() * 2 * math.Pi
	r := math.Sqrt(p.rng.Float64())

	scale := 1.0
	if radius > 1 {
		scale = 1 + p.rng.Float64()*(radius-1)
	}
	return mgl64.Vec2{math.Cos(theta) * r * scale, math.Sin(theta) * r * scale}
}
