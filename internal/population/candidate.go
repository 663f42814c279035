package population

import (
	"math/rand/v2"
	"slices"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/udisondev/populace/internal/zone"
)

// DefaultMaxTries bounds candidate selection.
const DefaultMaxTries = 200

// CandidateSource yields the candidate table applicable at a point.
type CandidateSource interface {
	CandidatesAt(p mgl64.Vec3) []zone.Candidate
}

// Selector picks a candidate by retrying uniform draws against each
// candidate's chance.
type Selector struct {
	source   CandidateSource
	maxTries int
	rng      *rand.Rand
}

// NewSelector creates a selector. A negative maxTries means DefaultMaxTries.
func NewSelector(source CandidateSource, maxTries int, rng *rand.Rand) *Selector {
	if maxTries < 0 {
		maxTries = DefaultMaxTries
	}
	return &Selector{source: source, maxTries: maxTries, rng: rng}
}

// Select draws a uniformly random candidate from the pool at p and accepts
// it when a 0..99 roll is below its chance. A rejected candidate leaves the
// local pool. Returns false once the pool is empty or maxTries draws failed.
func (s *Selector) Select(p mgl64.Vec3) (zone.Candidate, bool) {
	pool := slices.Clone(s.source.CandidatesAt(p))

	for tries := 0; len(pool) > 0 && tries < s.maxTries; tries++ {
		i := s.rng.IntN(len(pool))
		c := pool[i]
		if s.rng.IntN(100) < c.Chance {
			return c, true
		}
		pool = slices.Delete(pool, i, i+1)
	}
	return zone.Candidate{}, false
}
