package population

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
)

func TestDensity_ScenarioA(t *testing.T) {
	offs := OffsetsInCircle(50, 4)
	agents := []Agent{{ID: "a", Pos: mgl64.Vec3{0, 0, 0}}}

	target := TargetDensity(50, 10)
	assert.InDelta(t, 10/(math.Pi*2500), target, 1e-12)
	assert.InDelta(t, 0.00127, target, 1e-5)

	area, density := EstimateDensity(agents, offs, 4, 0)
	assert.InDelta(t, float64(len(offs))*16, area, 1e-9)
	assert.Zero(t, density)
	assert.True(t, SpawnPermitted(area, density, target))
}

func TestDensity_NoAgents(t *testing.T) {
	area, density := EstimateDensity(nil, OffsetsInCircle(50, 4), 4, 3)
	assert.Zero(t, area)
	assert.Zero(t, density)
	assert.False(t, SpawnPermitted(area, density, TargetDensity(50, 10)))
}

func TestDensity_OrderInvariant(t *testing.T) {
	offs := OffsetsInCircle(20, 4)
	a := Agent{ID: "a", Pos: mgl64.Vec3{0, 0, 0}}
	b := Agent{ID: "b", Pos: mgl64.Vec3{13.7, 4, -9.2}}
	c := Agent{ID: "c", Pos: mgl64.Vec3{-30, 0, 22.5}}

	wantArea, wantDensity := EstimateDensity([]Agent{a, b, c}, offs, 4, 7)
	assert.Positive(t, wantArea)

	for _, order := range [][]Agent{{a, c, b}, {b, a, c}, {b, c, a}, {c, a, b}, {c, b, a}} {
		area, density := EstimateDensity(order, offs, 4, 7)
		assert.InDelta(t, wantArea, area, 1e-9)
		assert.InDelta(t, wantDensity, density, 1e-12)
	}
}

func TestDensity_Clustering(t *testing.T) {
	const r = 20
	offs := OffsetsInCircle(r, 4)

	area := func(points ...mgl64.Vec3) float64 {
		agents := make([]Agent, len(points))
		for i, p := range points {
			agents[i] = Agent{Pos: p}
		}
		a, _ := EstimateDensity(agents, offs, 4, 0)
		return a
	}

	p1 := mgl64.Vec3{0, 0, 0}
	tests := []struct {
		name string
		p2   mgl64.Vec3
	}{
		{"same spot", mgl64.Vec3{0, 0, 0}},
		{"aligned neighbour", mgl64.Vec3{8, 0, 0}},
		{"off-grid neighbour", mgl64.Vec3{5.9, 3, -7.1}},
		{"almost 2r apart", mgl64.Vec3{2*r - 1, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			both := area(p1, tt.p2)
			assert.LessOrEqual(t, both, area(p1)+area(tt.p2))
			assert.GreaterOrEqual(t, both, area(p1))
		})
	}

	assert.InDelta(t, area(p1), area(p1, p1), 1e-9, "a duplicated agent adds nothing")
	assert.Less(t, area(p1, mgl64.Vec3{8, 0, 0}), 2*area(p1), "aligned overlap is deduplicated")
	assert.InDelta(t, 2*area(p1), area(p1, mgl64.Vec3{500, 0, 0}), 1e-9, "disjoint neighbourhoods add up")
}

func TestDensity_Truncation(t *testing.T) {
	offs := OffsetsInCircle(4, 4)
	a, _ := EstimateDensity([]Agent{{Pos: mgl64.Vec3{0.9, 0, 0.9}}, {Pos: mgl64.Vec3{-0.9, 0, -0.2}}}, offs, 4, 0)
	assert.InDelta(t, 16.0, a, 1e-9, "both agents truncate to cell 0,0")
}

func TestTargetDensity(t *testing.T) {
	assert.Zero(t, TargetDensity(0, 10))
	assert.Zero(t, TargetDensity(50, 0))
	assert.InDelta(t, 3/(math.Pi*16), TargetDensity(4, 3), 1e-12)
}
