package world

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// Ground gives the surface height at (x, z).
type Ground interface {
	Height(x, z float64) float64
}

// WandererConfig tunes the demo agent.
type WandererConfig struct {
	Start    mgl64.Vec3
	Speed    float64       // units per second
	Tick     time.Duration // step interval
	Turn     float64       // max heading change per step, radians
	Reach    float64       // pickup distance, 0 disables pickups
	Bound    float64       // max distance from Start
	MaxSteps int           // 0 = unlimited
}

// Wanderer is a local agent doing a random walk over the ground. With a
// non-zero Reach it also picks up store entities it walks into.
type Wanderer struct {
	cfg    WandererConfig
	ground Ground
	store  *Store
	rng    *rand.Rand

	mu      sync.RWMutex
	pos     mgl64.Vec3
	heading float64
}

// NewWanderer creates a wanderer at cfg.Start snapped to the ground.
// store may be nil.
func NewWanderer(cfg WandererConfig, ground Ground, store *Store, rng *rand.Rand) *Wanderer {
	if cfg.Tick <= 0 {
		cfg.Tick = 100 * time.Millisecond
	}
	if cfg.Turn <= 0 {
		cfg.Turn = math.Pi / 8
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	w := &Wanderer{
		cfg:     cfg,
		ground:  ground,
		store:   store,
		rng:     rng,
		heading: rng.Float64() * 2 * math.Pi,
	}
	w.pos = w.snap(cfg.Start)
	return w
}

// Position returns the current position.
func (w *Wanderer) Position() mgl64.Vec3 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pos
}

// Start walks until ctx is canceled (blocks).
func (w *Wanderer) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Tick)
	defer ticker.Stop()

	slog.Info("wanderer started", "pos", w.Position(), "speed", w.cfg.Speed)

	steps := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("wanderer stopping", "pos", w.Position())
			return ctx.Err()
		case <-ticker.C:
			w.Step(w.cfg.Tick)
			steps++
			if w.cfg.MaxSteps > 0 && steps >= w.cfg.MaxSteps {
				return nil
			}
		}
	}
}

// Step advances the walk by dt and returns the number of pickups.
func (w *Wanderer) Step(dt time.Duration) int {
	w.mu.Lock()
	w.heading += (w.rng.Float64()*2 - 1) * w.cfg.Turn
	dist := w.cfg.Speed * dt.Seconds()
	next := w.pos.Add(mgl64.Vec3{math.Cos(w.heading) * dist, 0, math.Sin(w.heading) * dist})

	if w.cfg.Bound > 0 {
		flat := mgl64.Vec2{next.X() - w.cfg.Start.X(), next.Z() - w.cfg.Start.Z()}
		if flat.Len() > w.cfg.Bound {
			// turn back towards the start
			w.heading += math.Pi
			next = w.pos
		}
	}
	w.pos = w.snap(next)
	pos := w.pos
	w.mu.Unlock()

	return w.pickup(pos)
}

func (w *Wanderer) pickup(pos mgl64.Vec3) int {
	if w.store == nil || w.cfg.Reach <= 0 {
		return 0
	}
	n := 0
	for _, e := range w.store.Nearby(pos, w.cfg.Reach) {
		if w.store.Pickup(e.ID) {
			n++
			slog.Debug("agent picked up entity", "id", e.ID, "candidate", e.Candidate)
		}
	}
	return n
}

func (w *Wanderer) snap(p mgl64.Vec3) mgl64.Vec3 {
	if w.ground == nil {
		return p
	}
	return mgl64.Vec3{p.X(), w.ground.Height(p.X(), p.Z()), p.Z()}
}
