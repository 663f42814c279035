package world

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/udisondev/populace/internal/messaging"
	"github.com/udisondev/populace/internal/population"
)

// Locator reports a live position.
type Locator interface {
	Position() mgl64.Vec3
}

// RemoteAgent is the last known position of an observer's agent.
type RemoteAgent struct {
	Peer      messaging.PeerID
	Name      string
	Pos       mgl64.Vec3
	UpdatedAt time.Time
}

// AgentTracker combines the local agent with mirrored remote agents.
type AgentTracker struct {
	localName string
	local     Locator // nil = no local agent

	mu     sync.RWMutex
	remote map[messaging.PeerID]RemoteAgent
	now    func() time.Time
}

// NewAgentTracker creates a tracker. local may be nil, e.g. on a dedicated host.
func NewAgentTracker(localName string, local Locator) *AgentTracker {
	return &AgentTracker{
		localName: localName,
		local:     local,
		remote:    make(map[messaging.PeerID]RemoteAgent),
		now:       time.Now,
	}
}

// Agents returns the local agent first, then remote agents by peer ID.
func (t *AgentTracker) Agents() []population.Agent {
	t.mu.RLock()
	out := make([]population.Agent, 0, len(t.remote)+1)
	if t.local != nil {
		out = append(out, population.Agent{ID: t.localName, Pos: t.local.Position()})
	}
	for _, r := range t.sortedRemotesLocked() {
		out = append(out, population.Agent{ID: r.ID(), Pos: r.Pos})
	}
	t.mu.RUnlock()
	return out
}

// SetRemote records a remote agent position.
func (t *AgentTracker) SetRemote(peer messaging.PeerID, name string, pos mgl64.Vec3) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remote[peer] = RemoteAgent{Peer: peer, Name: name, Pos: pos, UpdatedAt: t.now()}
}

// RemoveRemote forgets a remote agent.
func (t *AgentTracker) RemoveRemote(peer messaging.PeerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.remote, peer)
}

// Remotes returns remote agents ordered by peer ID.
func (t *AgentTracker) Remotes() []RemoteAgent {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sortedRemotesLocked()
}

func (t *AgentTracker) sortedRemotesLocked() []RemoteAgent {
	out := make([]RemoteAgent, 0, len(t.remote))
	for _, r := range t.remote {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b RemoteAgent) int {
		switch {
		case a.Peer < b.Peer:
			return -1
		case a.Peer > b.Peer:
			return 1
		}
		return 0
	})
	return out
}

// ID is the agent ID the controller sees: the reported name, or the peer.
func (r RemoteAgent) ID() string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("peer-%d", r.Peer)
}
