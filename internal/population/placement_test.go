package population

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/populace/internal/scene"
)

func TestTryPlace_Hit(t *testing.T) {
	ground := scene.NewWorld(scene.NewPlane(0, scene.LayerTerrain))
	p := NewPlacer(ground, scene.AllLayers, 0, 0, testRand())

	agent := mgl64.Vec3{10, 0, -20}
	for range 500 {
		pl, ok := p.TryPlace(agent, 50)
		require.True(t, ok)
		assert.InDelta(t, 0, pl.Point.Y(), 1e-9)
		assert.Equal(t, mgl64.Vec3{0, 1, 0}, pl.Normal)
		assert.Equal(t, scene.LayerTerrain, pl.Layer)

		flat := mgl64.Vec2{pl.Point.X() - agent.X(), pl.Point.Z() - agent.Z()}
		assert.LessOrEqual(t, flat.Len(), 50.0)
	}
}

func TestTryPlace_ScenarioD_Miss(t *testing.T) {
	p := NewPlacer(scene.NewWorld(), scene.AllLayers, 0, 0, testRand())
	_, ok := p.TryPlace(mgl64.Vec3{}, 50)
	assert.False(t, ok)
}

func TestTryPlace_ProbeLimits(t *testing.T) {
	tests := []struct {
		name   string
		ground float64
		layer  scene.Layer
		mask   scene.Layer
		want   bool
	}{
		{"ground within reach", -3, scene.LayerTerrain, scene.AllLayers, true},
		{"ground exactly at reach", -4, scene.LayerTerrain, scene.AllLayers, true},
		{"ground too deep", -5, scene.LayerTerrain, scene.AllLayers, false},
		{"ground above probe origin", 7, scene.LayerTerrain, scene.AllLayers, false},
		{"excluded layer", 0, scene.LayerWater, scene.Excluding(scene.LayerWater), false},
		{"included layer", 0, scene.LayerWater, scene.Excluding(scene.LayerDebris), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := scene.NewWorld(scene.NewPlane(tt.ground, tt.layer))
			p := NewPlacer(w, tt.mask, DefaultProbeHeight, DefaultProbeDistance, testRand())
			_, ok := p.TryPlace(mgl64.Vec3{}, 50)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestTryPlace_NearestSurface(t *testing.T) {
	w := scene.NewWorld(
		scene.NewPlane(0, scene.LayerTerrain),
		scene.NewBox(mgl64.Vec3{-100, 0, -100}, mgl64.Vec3{100, 2, 100}, scene.LayerStructure),
	)
	p := NewPlacer(w, scene.AllLayers, 0, 0, testRand())

	pl, ok := p.TryPlace(mgl64.Vec3{}, 50)
	require.True(t, ok)
	assert.InDelta(t, 2, pl.Point.Y(), 1e-9)
	assert.Equal(t, scene.LayerStructure, pl.Layer)
}

func TestRandomOffset(t *testing.T) {
	p := NewPlacer(scene.NewWorld(), scene.AllLayers, 0, 0, testRand())

	var far bool
	for range 2000 {
		off := p.randomOffset(50)
		assert.LessOrEqual(t, off.Len(), 50.0)
		if off.Len() > 25 {
			far = true
		}
	}
	assert.True(t, far, "offsets reach the outer half of the disk")

	for range 100 {
		assert.LessOrEqual(t, p.randomOffset(0.5).Len(), 1.0, "tiny radius still scales by 1")
	}
}
