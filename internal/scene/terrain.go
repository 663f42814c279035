package scene

import (
	"github.com/go-gl/mathgl/mgl64"
	opensimplex "github.com/ojrac/opensimplex-go"
)

const (
	marchStep      = 0.25
	refineSteps    = 24
	normalEpsilon  = 0.1
	defaultOctaves = 4
)

// TerrainConfig shapes the generated heightfield.
type TerrainConfig struct {
	Seed        int64
	BaseHeight  float64 // mean ground height
	Amplitude   float64 // max deviation from BaseHeight
	Frequency   float64 // base noise frequency per world unit
	Octaves     int
	Persistence float64
}

// Terrain is a procedural heightfield on the terrain layer.
type Terrain struct {
	cfg   TerrainConfig
	noise opensimplex.Noise
}

// NewTerrain creates a heightfield from seeded simplex noise.
func NewTerrain(cfg TerrainConfig) *Terrain {
	if cfg.Octaves <= 0 {
		cfg.Octaves = defaultOctaves
	}
	if cfg.Persistence <= 0 {
		cfg.Persistence = 0.5
	}
	if cfg.Frequency <= 0 {
		cfg.Frequency = 0.01
	}
	return &Terrain{
		cfg:   cfg,
		noise: opensimplex.NewNormalized(cfg.Seed),
	}
}

func (t *Terrain) Layer() Layer { return LayerTerrain }

// Height returns ground height at (x, z).
func (t *Terrain) Height(x, z float64) float64 {
	n := octaveNoise(t.noise, x, z, t.cfg.Octaves, t.cfg.Frequency, t.cfg.Persistence)
	return t.cfg.BaseHeight + t.cfg.Amplitude*(2*n-1)
}

// Normal returns the surface normal at (x, z) from central differences.
func (t *Terrain) Normal(x, z float64) mgl64.Vec3 {
	dx := (t.Height(x+normalEpsilon, z) - t.Height(x-normalEpsilon, z)) / (2 * normalEpsilon)
	dz := (t.Height(x, z+normalEpsilon) - t.Height(x, z-normalEpsilon)) / (2 * normalEpsilon)
	return mgl64.Vec3{-dx, 1, -dz}.Normalize()
}

// Intersect marches the ray in fixed steps until it crosses the ground,
// then bisects the last step. A ray starting under the ground misses.
func (t *Terrain) Intersect(origin, dir mgl64.Vec3, maxDist float64) (Hit, bool) {
	above := func(d float64) float64 {
		p := origin.Add(dir.Mul(d))
		return p[1] - t.Height(p[0], p[2])
	}

	if above(0) < 0 {
		return Hit{}, false
	}

	prev := 0.0
	for d := marchStep; ; d += marchStep {
		if d > maxDist {
			d = maxDist
		}
		if above(d) <= 0 {
			lo, hi := prev, d
			for range refineSteps {
				mid := (lo + hi) / 2
				if above(mid) > 0 {
					lo = mid
				} else {
					hi = mid
				}
			}
			p := origin.Add(dir.Mul(hi))
			p[1] = t.Height(p[0], p[2])
			return Hit{
				Point:    p,
				Normal:   t.Normal(p[0], p[2]),
				Distance: hi,
				Layer:    LayerTerrain,
			}, true
		}
		if d >= maxDist {
			return Hit{}, false
		}
		prev = d
	}
}

// octaveNoise layers several frequencies of normalized noise into [0, 1].
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for range octaves {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
