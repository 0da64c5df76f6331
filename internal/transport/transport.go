// Package transport receives game server pushes over a WebSocket and feeds
// them to the dispatcher in arrival order.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/shadowhunters/boardview/internal/dispatcher"
	"github.com/shadowhunters/boardview/pkg/streaming"
)

// ErrGaveUp is returned by Run after MaxAttempts consecutive failed dials.
var ErrGaveUp = errors.New("transport: reconnect attempts exhausted")

// Commands are the envelope types the game server may push. User input
// (activate) and lifecycle requests (save) never arrive over this socket.
var Commands = []string{streaming.TypeInit, streaming.TypeUpdate}

// Dispatcher is the part of the dispatcher the client needs.
type Dispatcher interface {
	Enqueue(ctx context.Context, e dispatcher.Event) error
}

// Config holds transport settings.
type Config struct {
	URL            string
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Logger         *slog.Logger
}

// Client is a reconnecting WebSocket reader.
type Client struct {
	cfg  Config
	d    Dispatcher
	dial func(ctx context.Context, url string) (*ws.Conn, error)
}

// New creates a transport client.
func New(cfg Config, d Dispatcher) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		cfg: cfg,
		d:   d,
		dial: func(ctx context.Context, url string) (*ws.Conn, error) {
			conn, _, err := ws.DefaultDialer.DialContext(ctx, url, nil)
			return conn, err
		},
	}
}

// Run connects and reads until ctx is cancelled. A dropped connection is
// re-dialed with exponential backoff; the attempt counter resets after
// every successful connection.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.cfg.InitialBackoff
	failures := 0

	for {
		conn, err := c.dial(ctx, c.cfg.URL)
		if err == nil {
			failures = 0
			backoff = c.cfg.InitialBackoff
			c.cfg.Logger.Info("Transport connected", "url", c.cfg.URL)
			err = c.readLoop(ctx, conn)
		}
		if ctx.Err() != nil {
			return nil
		}

		failures++
		if failures >= c.cfg.MaxAttempts {
			return fmt.Errorf("%w: %v", ErrGaveUp, err)
		}
		c.cfg.Logger.Warn("Transport disconnected, retrying", "error", err, "attempt", failures, "backoff", backoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
}

// readLoop forwards every envelope to the dispatcher until the connection
// fails or ctx is cancelled.
func (c *Client) readLoop(ctx context.Context, conn *ws.Conn) error {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.forward(ctx, data)
	}
}

// forward hands one envelope to the dispatcher. It waits while the inbox is
// full, so a burst of snapshots slows the reader down instead of losing any.
func (c *Client) forward(ctx context.Context, data []byte) {
	var env streaming.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.cfg.Logger.Warn("Dropping malformed envelope", "error", err)
		return
	}
	if !slices.Contains(Commands, env.Type) {
		c.cfg.Logger.Warn("Ignoring envelope not accepted from the server", "type", env.Type)
		return
	}

	err := c.d.Enqueue(ctx, dispatcher.Event{
		Command:   env.Type,
		Payload:   env.Payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		c.cfg.Logger.Warn("Envelope not dispatched", "type", env.Type, "error", err)
	}
}
