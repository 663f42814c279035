package world

import (
	"sync"
	"time"
)

// Progress is a world development value that grows linearly with time,
// e.g. a terraforming index. It gates population stages.
type Progress struct {
	mu      sync.Mutex
	base    float64
	rate    float64 // per second
	started time.Time
	now     func() time.Time
}

// NewProgress starts at initial and grows by rate per second.
func NewProgress(initial, rate float64) *Progress {
	return &Progress{base: initial, rate: rate, started: time.Now(), now: time.Now}
}

// Value returns the current value.
func (p *Progress) Value() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.base + p.rate*p.now().Sub(p.started).Seconds()
}

// Set resets the value and restarts growth from it.
func (p *Progress) Set(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = v
	p.started = p.now()
}
