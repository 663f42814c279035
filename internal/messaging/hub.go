package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// HubConfig tunes the host side websocket transport.
type HubConfig struct {
	SendQueueSize    int           // per-peer outbox capacity
	WriteTimeout     time.Duration // per-write deadline
	ReadTimeout      time.Duration // idle peer disconnect
	HandshakeTimeout time.Duration // time allowed for the hello frame
	InboundRate      float64       // frames per second per peer, 0 = unlimited
	InboundBurst     int
	PasswordHash     string // bcrypt hash; empty = open session
}

// DefaultHubConfig returns HubConfig with sensible defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SendQueueSize:    256,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      60 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		InboundRate:      50,
		InboundBurst:     100,
	}
}

// Hub is the host transport: it accepts observer connections over
// websocket and keeps one ordered outbox per peer.
type Hub struct {
	bus      *Bus
	cfg      HubConfig
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	peers map[PeerID]*hubPeer

	nextID atomic.Uint64
}

type hubPeer struct {
	id        PeerID
	name      string
	conn      *websocket.Conn
	out       chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

func (p *hubPeer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

// NewHub creates a hub delivering received frames to bus.
func NewHub(bus *Bus, cfg HubConfig) *Hub {
	def := DefaultHubConfig()
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}

	return &Hub{
		bus: bus,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		peers: make(map[PeerID]*hubPeer),
	}
}

// Handler returns the HTTP handler that upgrades observer connections.
func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		p, err := h.handshake(conn)
		if err != nil {
			slog.Warn("observer handshake failed", "remote", r.RemoteAddr, "error", err)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
				time.Now().Add(time.Second))
			_ = conn.Close()
			return
		}

		h.mu.Lock()
		h.peers[p.id] = p
		h.mu.Unlock()

		slog.Info("observer connected", "peer", p.id, "name", p.name, "remote", r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go h.writeLoop(ctx, p)

		h.bus.PeerConnected(p.id)
		h.readLoop(p)

		h.mu.Lock()
		delete(h.peers, p.id)
		h.mu.Unlock()
		p.close()

		slog.Info("observer disconnected", "peer", p.id, "name", p.name)
		h.bus.PeerDisconnected(p.id)
	}
}

func (h *Hub) handshake(conn *websocket.Conn) (*hubPeer, error) {
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.HandshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading hello: %w", err)
	}

	var hi hello
	if err := decodeControl(msg, functionHello, &hi); err != nil {
		return nil, err
	}
	if h.cfg.PasswordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(h.cfg.PasswordHash), []byte(hi.Password)); err != nil {
			return nil, errors.New("bad password")
		}
	}

	id := PeerID(h.nextID.Add(1))
	frame, err := encodeControl(functionWelcome, &welcome{PeerID: id})
	if err != nil {
		return nil, err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, fmt.Errorf("writing welcome: %w", err)
	}

	name := hi.Name
	if name == "" {
		name = fmt.Sprintf("peer-%d", id)
	}
	return &hubPeer{
		id:   id,
		name: name,
		conn: conn,
		out:  make(chan []byte, h.cfg.SendQueueSize),
		done: make(chan struct{}),
	}, nil
}

func (h *Hub) readLoop(p *hubPeer) {
	var limiter *rate.Limiter
	if h.cfg.InboundRate > 0 {
		burst := max(h.cfg.InboundBurst, 1)
		limiter = rate.NewLimiter(rate.Limit(h.cfg.InboundRate), burst)
	}

	for {
		_ = p.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
		_, msg, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		if limiter != nil && !limiter.Allow() {
			h.bus.stats.FrameDropped("rate_limit")
			continue
		}
		h.bus.HandleFrame(p.id, msg)
	}
}

func (h *Hub) writeLoop(ctx context.Context, p *hubPeer) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case frame := <-p.out:
			_ = p.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := p.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				slog.Warn("write to observer failed", "peer", p.id, "error", err)
				p.close()
				return
			}
		}
	}
}

// Send queues a frame for one peer. A full queue drops the frame.
func (h *Hub) Send(to PeerID, frame []byte) error {
	h.mu.RLock()
	p, ok := h.peers[to]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("sending to %d: %w", to, ErrUnknownPeer)
	}
	return h.enqueue(p, frame)
}

// SendAll queues a frame for every peer except the listed ones.
// Peers with full queues miss the frame; the first such error is returned.
func (h *Hub) SendAll(frame []byte, except ...PeerID) error {
	h.mu.RLock()
	targets := make([]*hubPeer, 0, len(h.peers))
	for id, p := range h.peers {
		skip := false
		for _, e := range except {
			if e == id {
				skip = true
				break
			}
		}
		if !skip {
			targets = append(targets, p)
		}
	}
	h.mu.RUnlock()

	var firstErr error
	for _, p := range targets {
		if err := h.enqueue(p, frame); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *Hub) enqueue(p *hubPeer, frame []byte) error {
	select {
	case <-p.done:
		return fmt.Errorf("sending to %d: %w", p.id, ErrUnknownPeer)
	default:
	}

	select {
	case p.out <- frame:
		return nil
	default:
		h.bus.stats.FrameDropped("queue_full")
		return fmt.Errorf("sending to %d: %w", p.id, ErrPeerBusy)
	}
}

// Peers returns connected peer IDs in ascending order.
func (h *Hub) Peers() []PeerID {
	h.mu.RLock()
	ids := make([]PeerID, 0, len(h.peers))
	for id := range h.peers {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close disconnects every peer.
func (h *Hub) Close() {
	h.mu.RLock()
	peers := make([]*hubPeer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	for _, p := range peers {
		_ = p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "host shutting down"),
			time.Now().Add(time.Second))
		p.close()
	}
}
