// internal/storage/storage.go
package storage

import "github.com/shadowhunters/boardview/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management (StartSession assigns ID to the passed pointer
	// when the backend has one)
	StartSession(s *core.Session) error
	EndSession(s *core.Session) error

	// Recording
	RecordSnapshot(seq uint64, s *core.Snapshot) error
	RecordChangeSet(cs *core.ChangeSet) error
}

// Uploadable is an optional interface for storage backends that produce
// archive files suitable for upload.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}

// Nop discards everything. Used when storage is disabled.
type Nop struct{}

func (Nop) Init() error { return nil }
func (Nop) Close() error { return nil }
func (Nop) StartSession(*core.Session) error { return nil }
func (Nop) EndSession(*core.Session) error { return nil }
func (Nop) RecordSnapshot(uint64, *core.Snapshot) error { return nil }
func (Nop) RecordChangeSet(*core.ChangeSet) error { return nil }
