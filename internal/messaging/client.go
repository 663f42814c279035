package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ClientConfig tunes the observer side websocket transport.
type ClientConfig struct {
	Name             string
	Password         string
	SendQueueSize    int
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
}

// Client is the observer transport: one connection to the host.
type Client struct {
	bus  *Bus
	cfg  ClientConfig
	conn *websocket.Conn
	id   PeerID

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the host sync endpoint and completes the handshake.
func Dial(ctx context.Context, url string, bus *Bus, cfg ClientConfig) (*Client, error) {
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing host %s: %w", url, err)
	}

	frame, err := encodeControl(functionHello, &hello{Name: cfg.Name, Password: cfg.Password})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sending hello: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(cfg.HandshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("reading welcome: %w", err)
	}
	var w welcome
	if err := decodeControl(msg, functionWelcome, &w); err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Time{})

	slog.Info("connected to host", "url", url, "peer", w.PeerID)

	return &Client{
		bus:  bus,
		cfg:  cfg,
		conn: conn,
		id:   w.PeerID,
		out:  make(chan []byte, cfg.SendQueueSize),
		done: make(chan struct{}),
	}, nil
}

// PeerID returns the ID the host assigned to this observer.
func (c *Client) PeerID() PeerID { return c.id }

// Run pumps frames until the connection drops or ctx is canceled.
// Received frames are delivered to the bus in arrival order.
func (c *Client) Run(ctx context.Context) error {
	go c.writeLoop(ctx)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	c.bus.PeerConnected(HostPeerID)
	defer c.bus.PeerDisconnected(HostPeerID)

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading from host: %w", err)
		}
		c.bus.HandleFrame(HostPeerID, msg)
	}
}

func (c *Client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case frame := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				slog.Warn("write to host failed", "error", err)
				c.Close()
				return
			}
		}
	}
}

// Send queues a frame for the host. Observers can only reach the host.
func (c *Client) Send(to PeerID, frame []byte) error {
	if to != HostPeerID {
		return fmt.Errorf("sending to %d: %w", to, ErrUnknownPeer)
	}
	select {
	case <-c.done:
		return fmt.Errorf("sending to host: %w", ErrUnknownPeer)
	default:
	}
	select {
	case c.out <- frame:
		return nil
	default:
		c.bus.stats.FrameDropped("queue_full")
		return fmt.Errorf("sending to host: %w", ErrPeerBusy)
	}
}

// SendAll sends to the host unless it is excluded.
func (c *Client) SendAll(frame []byte, except ...PeerID) error {
	for _, e := range except {
		if e == HostPeerID {
			return nil
		}
	}
	return c.Send(HostPeerID, frame)
}

// Close closes the connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.conn.Close()
	})
}
