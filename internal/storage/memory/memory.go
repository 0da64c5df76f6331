// internal/storage/memory/memory.go
package memory

import (
	"errors"
	"sync"

	"github.com/shadowhunters/boardview/internal/config"
	"github.com/shadowhunters/boardview/pkg/core"
)

// ErrNoSession is returned when recording before StartSession.
var ErrNoSession = errors.New("no session started")

// SnapshotEntry is one recorded inbound snapshot
type SnapshotEntry struct {
	Seq      uint64        `json:"seq"`
	Snapshot core.Snapshot `json:"snapshot"`
}

// Backend keeps session data in memory and exports it to JSON on EndSession
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session

	snapshots  []SnapshotEntry
	changeSets []core.ChangeSet

	idCounter      uint
	lastExportPath string
	lastExportMeta core.UploadMetadata
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session and resets all collections
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	s.ID = b.idCounter

	cp := *s
	b.session = &cp
	b.snapshots = nil
	b.changeSets = nil
	return nil
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	if s != nil {
		b.session.EndTime = s.EndTime
	}
	return b.exportJSON()
}

// RecordSnapshot stores an inbound snapshot
func (b *Backend) RecordSnapshot(seq uint64, s *core.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	b.snapshots = append(b.snapshots, SnapshotEntry{Seq: seq, Snapshot: *s})
	return nil
}

// RecordChangeSet stores an outbound change set
func (b *Backend) RecordChangeSet(cs *core.ChangeSet) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	b.changeSets = append(b.changeSets, *cs)
	return nil
}

// Session returns a copy of the current session.
func (b *Backend) Session() (core.Session, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.session == nil {
		return core.Session{}, false
	}
	return *b.session, true
}

// ChangeSets returns the recorded change sets in order.
func (b *Backend) ChangeSets() []core.ChangeSet {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]core.ChangeSet, len(b.changeSets))
	copy(out, b.changeSets)
	return out
}

// Snapshots returns the recorded snapshots in order.
func (b *Backend) Snapshots() []SnapshotEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]SnapshotEntry, len(b.snapshots))
	copy(out, b.snapshots)
	return out
}

// GetExportedFilePath returns the path of the last exported archive.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata returns metadata describing the last export.
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportMeta
}
