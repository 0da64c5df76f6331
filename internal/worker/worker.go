package worker

import (
	"context"
	"errors"
	"time"

	"github.com/shadowhunters/boardview/internal/cache"
	"github.com/shadowhunters/boardview/internal/channel"
	"github.com/shadowhunters/boardview/internal/influx"
	"github.com/shadowhunters/boardview/internal/logging"
	"github.com/shadowhunters/boardview/internal/parser"
	"github.com/shadowhunters/boardview/internal/reconcile"
	"github.com/shadowhunters/boardview/internal/session"
	"github.com/shadowhunters/boardview/internal/storage"
	"github.com/shadowhunters/boardview/pkg/core"
)

var (
	// ErrNotInitialized is returned for update, activate and save before init.
	ErrNotInitialized = errors.New("session not initialized")
	// ErrAlreadyInitialized is returned for a second init without a save in between.
	ErrAlreadyInitialized = errors.New("session already initialized")
)

// Uploader sends an exported session archive somewhere durable.
type Uploader interface {
	Upload(ctx context.Context, filePath string, meta core.UploadMetadata) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Parser     *parser.Parser
	Engine     reconcile.Config
	Session    *session.Context
	Cache      *cache.ViewCache
	Feed       *channel.Fanout[core.ChangeSet]
	Influx     *influx.Manager
	LogManager *logging.SlogManager
	Uploader   Uploader
	Tag        string
	Now        func() time.Time
}

// Manager owns the reconciliation engine for the current session. Every
// method is called from the dispatcher goroutine, so no locking is needed.
type Manager struct {
	deps    Dependencies
	backend storage.Backend
	engine  *reconcile.Engine
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.Parser == nil {
		deps.Parser = parser.NewParser(nil)
	}
	if deps.Session == nil {
		deps.Session = session.NewContext()
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewViewCache()
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if backend == nil {
		backend = storage.Nop{}
	}
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

// Initialized reports whether init has been handled for the current session.
func (m *Manager) Initialized() bool {
	return m.engine != nil
}

// Backend returns the storage backend the manager records into.
func (m *Manager) Backend() storage.Backend {
	return m.backend
}
