package world

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/udisondev/populace/internal/messaging"
	"github.com/udisondev/populace/internal/protocol"
)

// HostSender sends a message to the session host.
type HostSender interface {
	SendHost(function string, payload []byte) error
}

// Reporter periodically tells the host where the local agent is, so the
// host keeps a population around observers too.
type Reporter struct {
	sender   HostSender
	locator  Locator
	name     string
	interval time.Duration
}

// NewReporter creates a reporter. A non-positive interval means one second.
func NewReporter(sender HostSender, locator Locator, name string, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = time.Second
	}
	return &Reporter{sender: sender, locator: locator, name: name, interval: interval}
}

// Start reports until ctx is canceled (blocks). Sends made outside the
// observer role are skipped quietly.
func (r *Reporter) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Report(); err != nil {
				slog.Warn("reporting agent position", "error", err)
			}
		}
	}
}

// Report sends the current position once.
func (r *Reporter) Report() error {
	p := r.locator.Position()
	payload, err := protocol.Encode(protocol.AgentMoved{
		Name: r.name,
		Pos:  [3]float64{p.X(), p.Y(), p.Z()},
	})
	if err != nil {
		return err
	}

	err = r.sender.SendHost(protocol.FunctionAgentMoved, payload)
	if errors.Is(err, messaging.ErrNotObserver) || errors.Is(err, messaging.ErrNoTransport) {
		return nil
	}
	return err
}
