package population

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlways(t *testing.T) {
	scale, ok := Always{}.SpawnScale()
	assert.True(t, ok)
	assert.Equal(t, 1.0, scale)
}

func TestStageProgress(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		wantScale float64
		wantOK    bool
	}{
		{"before start", 5, 0, false},
		{"at start", 10, 0, true},
		{"halfway", 15, 0.5, true},
		{"at end", 20, 1, true},
		{"past end", 100, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.value
			s := StageProgress{Value: func() float64 { return v }, Start: 10, End: 20}
			scale, ok := s.SpawnScale()
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.wantScale, scale, 1e-12)
		})
	}
}

func TestStageProgress_NoSource(t *testing.T) {
	scale, ok := StageProgress{Start: 10, End: 20}.SpawnScale()
	assert.True(t, ok)
	assert.Equal(t, 1.0, scale)
}

func TestInverseLerp(t *testing.T) {
	assert.InDelta(t, 0.25, InverseLerp(0, 4, 1), 1e-12)
	assert.Equal(t, 0.0, InverseLerp(0, 4, -3))
	assert.Equal(t, 1.0, InverseLerp(0, 4, 9))
	assert.Equal(t, 1.0, InverseLerp(3, 3, 3))
	assert.Equal(t, 0.0, InverseLerp(3, 3, 2))
	assert.InDelta(t, 0.75, InverseLerp(4, 0, 1), 1e-12, "reversed range")
}
