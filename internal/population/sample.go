package population

import "sync"

// GridOffset is a cell coordinate relative to an agent on the XZ plane.
type GridOffset struct {
	X, Z int
}

type sampleKey struct {
	radius, step int
}

// SampleCache memoizes the offsets lying inside a circle, keyed by
// (radius, step). Cached slices are shared and must not be modified.
type SampleCache struct {
	mu   sync.Mutex
	memo map[sampleKey][]GridOffset
}

// NewSampleCache creates an empty cache.
func NewSampleCache() *SampleCache {
	return &SampleCache{memo: make(map[sampleKey][]GridOffset)}
}

// OffsetsInCircle returns the memoized offsets for (radius, step),
// computing them on first use.
func (c *SampleCache) OffsetsInCircle(radius, step int) []GridOffset {
	key := sampleKey{radius: radius, step: step}

	c.mu.Lock()
	defer c.mu.Unlock()

	if offs, ok := c.memo[key]; ok {
		return offs
	}
	offs := OffsetsInCircle(radius, step)
	c.memo[key] = offs
	return offs
}

// Len returns the number of memoized (radius, step) entries.
func (c *SampleCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.memo)
}

// OffsetsInCircle lists every multiple of step in [-radius-step, radius+step]
// on both axes whose squared distance from the origin is strictly less than
// radius². Returns nil for a non-positive step.
func OffsetsInCircle(radius, step int) []GridOffset {
	if step <= 0 || radius <= 0 {
		return nil
	}

	limit := radius + step
	lo := -(limit / step) * step
	r2 := radius * radius

	var offs []GridOffset
	for x := lo; x <= limit; x += step {
		for z := lo; z <= limit; z += step {
			if x*x+z*z < r2 {
				offs = append(offs, GridOffset{X: x, Z: z})
			}
		}
	}
	return offs
}

// UnitArea is the area one sample cell stands for.
func UnitArea(step int) float64 {
	return float64(step) * float64(step)
}
