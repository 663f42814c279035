// Package scene answers directional probes against a composite of surfaces
// (noise terrain, water planes, boxes) filtered by collision layer.
package scene

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// Layer is a collision layer bit.
type Layer uint32

const (
	LayerTerrain Layer = 1 << iota
	LayerWater
	LayerStructure
	LayerDebris
)

// AllLayers matches every layer.
const AllLayers = ^Layer(0)

var layerNames = map[string]Layer{
	"terrain":   LayerTerrain,
	"water":     LayerWater,
	"structure": LayerStructure,
	"debris":    LayerDebris,
}

// ParseLayers folds layer names into one mask.
func ParseLayers(names []string) (Layer, error) {
	var mask Layer
	for _, n := range names {
		l, ok := layerNames[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return 0, fmt.Errorf("unknown layer %q", n)
		}
		mask |= l
	}
	return mask, nil
}

// Excluding returns a mask that hits everything but the excluded layers.
func Excluding(excluded Layer) Layer {
	return AllLayers &^ excluded
}

// Hit is the result of a successful probe.
type Hit struct {
	Point    mgl64.Vec3
	Normal   mgl64.Vec3
	Distance float64
	Layer    Layer
}

// Query is the scene probe used for placement.
type Query interface {
	// Probe casts from origin along dir up to maxDist against layers in mask.
	Probe(origin, dir mgl64.Vec3, maxDist float64, mask Layer) (Hit, bool)
}

// Surface is one collidable piece of the scene.
// Surfaces are one-sided: a ray starting inside or below them does not hit.
type Surface interface {
	Layer() Layer
	Intersect(origin, dir mgl64.Vec3, maxDist float64) (Hit, bool)
}

// World is a static composite of surfaces. Surfaces are added during setup
// and read concurrently afterwards.
type World struct {
	surfaces []Surface
}

// NewWorld creates a scene from surfaces.
func NewWorld(surfaces ...Surface) *World {
	return &World{surfaces: surfaces}
}

// Add appends a surface. Not safe once probes are running.
func (w *World) Add(s Surface) {
	w.surfaces = append(w.surfaces, s)
}

// Probe returns the nearest hit among surfaces whose layer is in mask.
func (w *World) Probe(origin, dir mgl64.Vec3, maxDist float64, mask Layer) (Hit, bool) {
	if maxDist <= 0 || dir.Len() == 0 {
		return Hit{}, false
	}
	dir = dir.Normalize()

	var (
		best  Hit
		found bool
	)
	for _, s := range w.surfaces {
		if s.Layer()&mask == 0 {
			continue
		}
		h, ok := s.Intersect(origin, dir, maxDist)
		if !ok {
			continue
		}
		if !found || h.Distance < best.Distance {
			best = h
			found = true
		}
	}
	return best, found
}

// Plane is a horizontal surface at height Y, hit only from above.
type Plane struct {
	Y     float64
	layer Layer
}

// NewPlane creates a horizontal plane on the given layer.
func NewPlane(y float64, layer Layer) *Plane {
	return &Plane{Y: y, layer: layer}
}

func (p *Plane) Layer() Layer { return p.layer }

func (p *Plane) Intersect(origin, dir mgl64.Vec3, maxDist float64) (Hit, bool) {
	if dir[1] >= 0 || origin[1] < p.Y {
		return Hit{}, false
	}
	t := (origin[1] - p.Y) / -dir[1]
	if t > maxDist {
		return Hit{}, false
	}
	return Hit{
		Point:    origin.Add(dir.Mul(t)),
		Normal:   mgl64.Vec3{0, 1, 0},
		Distance: t,
		Layer:    p.layer,
	}, true
}

// Box is an axis-aligned solid, e.g. a building footprint.
type Box struct {
	Min, Max mgl64.Vec3
	layer    Layer
}

// NewBox creates a box from two corners.
func NewBox(a, b mgl64.Vec3, layer Layer) *Box {
	return &Box{
		Min:   mgl64.Vec3{min(a[0], b[0]), min(a[1], b[1]), min(a[2], b[2])},
		Max:   mgl64.Vec3{max(a[0], b[0]), max(a[1], b[1]), max(a[2], b[2])},
		layer: layer,
	}
}

func (b *Box) Layer() Layer { return b.layer }

// Intersect uses the slab method; the entry face gives the normal.
func (b *Box) Intersect(origin, dir mgl64.Vec3, maxDist float64) (Hit, bool) {
	tEnter, tExit := math.Inf(-1), math.Inf(1)
	axis := -1

	for i := range 3 {
		if dir[i] == 0 {
			if origin[i] < b.Min[i] || origin[i] > b.Max[i] {
				return Hit{}, false
			}
			continue
		}
		t1 := (b.Min[i] - origin[i]) / dir[i]
		t2 := (b.Max[i] - origin[i]) / dir[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tEnter {
			tEnter = t1
			axis = i
		}
		tExit = min(tExit, t2)
	}

	if axis < 0 || tEnter > tExit || tEnter < 0 || tEnter > maxDist {
		return Hit{}, false
	}

	var n mgl64.Vec3
	if dir[axis] > 0 {
		n[axis] = -1
	} else {
		n[axis] = 1
	}

	return Hit{
		Point:    origin.Add(dir.Mul(tEnter)),
		Normal:   n,
		Distance: tEnter,
		Layer:    b.layer,
	}, true
}
