// Package messaging is a registerable-function message fabric between the
// session host and its observers. Handlers are registered by function name;
// frames carry the function name and an opaque payload.
//
// Usage: create a Bus, register handlers, attach a Transport and set the
// role. Register FunctionClientConnected / FunctionClientDisconnected to be
// told when a peer joins or leaves.
package messaging

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Reserved function names for connection lifecycle events. Their handlers
// receive the peer ID and an empty payload.
const (
	FunctionClientConnected    = "ClientConnected"
	FunctionClientDisconnected = "ClientDisconnected"
)

// PeerID identifies a connected process. The host is always HostPeerID.
type PeerID uint64

// HostPeerID is the peer ID under which observers see the host.
const HostPeerID PeerID = 0

var (
	ErrNilHandler    = errors.New("nil message handler")
	ErrEmptyFunction = errors.New("empty function name")
	ErrNotHost       = errors.New("not running as host")
	ErrNotObserver   = errors.New("not running as observer")
	ErrNoTransport   = errors.New("no transport attached")
	ErrUnknownPeer   = errors.New("unknown peer")
	ErrPeerBusy      = errors.New("peer send queue full")
)

// Handler handles one received message. A returned error or a panic is
// logged with sender and function context and never propagated.
type Handler func(from PeerID, payload []byte) error

// Transport moves encoded frames between peers.
type Transport interface {
	Send(to PeerID, frame []byte) error
	SendAll(frame []byte, except ...PeerID) error
}

// Stats receives delivery counters. All methods must be cheap and safe for
// concurrent use.
type Stats interface {
	MessageDelivered(function string)
	HandlerFailed(function string)
	FrameDropped(reason string)
}

type nopStats struct{}

func (nopStats) MessageDelivered(string) {}
func (nopStats) HandlerFailed(string)    {}
func (nopStats) FrameDropped(string)     {}

// Bus dispatches received frames to registered handlers and sends frames
// through the attached transport according to the current role.
type Bus struct {
	role  atomic.Int32
	stats Stats

	mu        sync.RWMutex
	handlers  map[string][]Handler
	transport Transport

	debug atomic.Bool
}

// NewBus creates a bus in the unconnected role. stats may be nil.
func NewBus(stats Stats) *Bus {
	if stats == nil {
		stats = nopStats{}
	}
	return &Bus{
		stats:    stats,
		handlers: make(map[string][]Handler),
	}
}

// SetDebug enables logging of messages that have no handler.
func (b *Bus) SetDebug(on bool) { b.debug.Store(on) }

// Role returns the current role.
func (b *Bus) Role() Role { return Role(b.role.Load()) }

// SetRole switches the role used to gate sends.
func (b *Bus) SetRole(r Role) {
	old := Role(b.role.Swap(int32(r)))
	if old != r {
		slog.Info("messaging role changed", "from", old, "to", r)
	}
}

// SetTransport attaches the transport used for outgoing frames.
func (b *Bus) SetTransport(t Transport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transport = t
}

// RegisterFunction adds a handler for a function name. Several handlers may
// share a name; they run in registration order.
func (b *Bus) RegisterFunction(function string, h Handler) error {
	if function == "" {
		return ErrEmptyFunction
	}
	if h == nil {
		return fmt.Errorf("registering %s: %w", function, ErrNilHandler)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[function] = append(b.handlers[function], h)
	return nil
}

// Broadcast calls function with payload on every observer. Host only.
func (b *Bus) Broadcast(function string, payload []byte) error {
	t, err := b.requireRole(RoleHost, function)
	if err != nil {
		return err
	}
	frame, err := EncodeFrame(function, payload)
	if err != nil {
		return err
	}
	return t.SendAll(frame)
}

// SendTo calls function with payload on one observer. Host only.
func (b *Bus) SendTo(peer PeerID, function string, payload []byte) error {
	t, err := b.requireRole(RoleHost, function)
	if err != nil {
		return err
	}
	frame, err := EncodeFrame(function, payload)
	if err != nil {
		return err
	}
	return t.Send(peer, frame)
}

// SendAllExcept calls function with payload on every observer but one. Host only.
func (b *Bus) SendAllExcept(peer PeerID, function string, payload []byte) error {
	t, err := b.requireRole(RoleHost, function)
	if err != nil {
		return err
	}
	frame, err := EncodeFrame(function, payload)
	if err != nil {
		return err
	}
	return t.SendAll(frame, peer)
}

// SendHost calls function with payload on the host. Observer only.
func (b *Bus) SendHost(function string, payload []byte) error {
	t, err := b.requireRole(RoleObserver, function)
	if err != nil {
		return err
	}
	frame, err := EncodeFrame(function, payload)
	if err != nil {
		return err
	}
	return t.Send(HostPeerID, frame)
}

// HandleFrame decodes a raw frame received from a peer and delivers it.
func (b *Bus) HandleFrame(from PeerID, frame []byte) {
	function, payload, err := DecodeFrame(frame)
	if err != nil {
		b.stats.FrameDropped("decode")
		slog.Warn("dropping undecodable frame", "from", from, "size", len(frame), "error", err)
		return
	}
	b.Deliver(from, function, payload)
}

// Deliver runs every handler registered for function. Each handler is
// isolated: a failure is logged and the remaining handlers still run.
func (b *Bus) Deliver(from PeerID, function string, payload []byte) {
	b.mu.RLock()
	hs := b.handlers[function]
	b.mu.RUnlock()

	if len(hs) == 0 {
		if b.debug.Load() {
			slog.Warn("no handler for received message",
				"from", from,
				"function", function,
				"payload_len", len(payload))
		}
		return
	}

	for _, h := range hs {
		if err := safeCall(h, from, payload); err != nil {
			b.stats.HandlerFailed(function)
			slog.Error("message handler failed",
				"from", from,
				"function", function,
				"payload_len", len(payload),
				"error", err)
			continue
		}
		b.stats.MessageDelivered(function)
	}
}

// PeerConnected notifies FunctionClientConnected handlers.
func (b *Bus) PeerConnected(peer PeerID) {
	b.Deliver(peer, FunctionClientConnected, nil)
}

// PeerDisconnected notifies FunctionClientDisconnected handlers.
func (b *Bus) PeerDisconnected(peer PeerID) {
	b.Deliver(peer, FunctionClientDisconnected, nil)
}

func (b *Bus) requireRole(want Role, function string) (Transport, error) {
	if got := b.Role(); got != want {
		if want == RoleHost {
			return nil, fmt.Errorf("calling %s as %s: %w", function, got, ErrNotHost)
		}
		return nil, fmt.Errorf("calling %s as %s: %w", function, got, ErrNotObserver)
	}

	b.mu.RLock()
	t := b.transport
	b.mu.RUnlock()
	if t == nil {
		return nil, fmt.Errorf("calling %s: %w", function, ErrNoTransport)
	}
	return t, nil
}

func safeCall(h Handler, from PeerID, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(from, payload)
}
