package population

// Conditions gate spawning and scale the entity cap.
type Conditions interface {
	// SpawnScale returns the cap multiplier in [0, 1] and whether spawning
	// is active at all.
	SpawnScale() (float64, bool)
}

// Always is active at full scale.
type Always struct{}

func (Always) SpawnScale() (float64, bool) { return 1, true }

// StageProgress ramps spawning in with a world progress value: inactive
// below Start, scaled linearly up to full at End.
type StageProgress struct {
	Value      func() float64
	Start, End float64
}

func (s StageProgress) SpawnScale() (float64, bool) {
	if s.Value == nil {
		return 1, true
	}
	v := s.Value()
	if v < s.Start {
		return 0, false
	}
	return InverseLerp(s.Start, s.End, v), true
}

// InverseLerp returns where v sits between a and b, clamped to [0, 1].
func InverseLerp(a, b, v float64) float64 {
	if a == b {
		if v >= b {
			return 1
		}
		return 0
	}
	t := (v - a) / (b - a)
	switch {
	case t < 0:
		return 0
	case t > 1:
		return 1
	default:
		return t
	}
}
