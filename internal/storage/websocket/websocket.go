// Package websocket streams session data to a remote renderer over a
// WebSocket connection.
package websocket

import (
	"log/slog"
	"time"

	"github.com/shadowhunters/boardview/pkg/core"
	"github.com/shadowhunters/boardview/pkg/streaming"
)

const defaultAckTimeout = 10 * time.Second

// Config holds WebSocket backend configuration.
type Config struct {
	URL        string
	Secret     string
	AckTimeout time.Duration
	Logger     *slog.Logger
}

// Backend streams snapshots and change sets to the renderer.
// It implements storage.Backend but not storage.Uploadable.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket storage backend.
func New(cfg Config) *Backend {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = defaultAckTimeout
	}
	return &Backend{
		conn: newConnection(cfg.Logger),
		cfg:  cfg,
	}
}

// Init connects to the renderer.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the renderer.
func (b *Backend) Close() error {
	return b.conn.close()
}

// Connected reports whether the socket is currently open.
func (b *Backend) Connected() bool {
	return b.conn.connected()
}

func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := streaming.Marshal(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// StartSession announces the session and waits for the renderer's ack.
func (b *Backend) StartSession(s *core.Session) error {
	data, err := streaming.Marshal(streaming.TypeStartSession, streaming.StartSessionPayload{Session: s})
	if err != nil {
		return err
	}

	b.conn.mu.Lock()
	b.conn.cachedStartMsg = data
	b.conn.mu.Unlock()

	return b.conn.sendAndWait(data, streaming.TypeStartSession, b.cfg.AckTimeout)
}

// EndSession sends end_session and waits for the renderer's ack.
func (b *Backend) EndSession(s *core.Session) error {
	data, err := streaming.Marshal(streaming.TypeEndSession, streaming.StartSessionPayload{Session: s})
	if err == nil {
		err = b.conn.sendAndWait(data, streaming.TypeEndSession, b.cfg.AckTimeout)
	}

	b.conn.mu.Lock()
	b.conn.cachedStartMsg = nil
	b.conn.mu.Unlock()

	return err
}

// RecordSnapshot forwards the raw snapshot.
func (b *Backend) RecordSnapshot(seq uint64, s *core.Snapshot) error {
	return b.sendEnvelope(streaming.TypeSnapshot, streaming.SnapshotPayload{Seq: seq, Snapshot: s})
}

// RecordChangeSet forwards the change set for drawing.
func (b *Backend) RecordChangeSet(cs *core.ChangeSet) error {
	return b.sendEnvelope(streaming.TypeChangeSet, cs)
}
