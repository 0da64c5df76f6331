// Package postgres implements the storage.Backend interface on a PostgreSQL
// database configured under db.*.
package postgres

import (
	"fmt"
	"time"

	"github.com/shadowhunters/boardview/internal/database"
	"github.com/shadowhunters/boardview/internal/logging"
	gormstorage "github.com/shadowhunters/boardview/internal/storage/gorm"

	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the Postgres storage backend.
// DB is optional; when nil Init connects using the db.* config keys.
type Dependencies struct {
	DB            *gorm.DB
	LogManager    *logging.SlogManager
	WriteInterval time.Duration
}

// Backend wraps the GORM backend with Postgres connection management.
type Backend struct {
	*gormstorage.Backend
	deps Dependencies
}

// New creates a new Postgres storage backend.
func New(deps Dependencies) *Backend {
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			DB:            deps.DB,
			LogManager:    deps.LogManager,
			WriteInterval: deps.WriteInterval,
		}),
		deps: deps,
	}
}

// Init connects if needed, then migrates and starts the writer.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := database.OpenPostgres()
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		b.deps.DB = db
		b.Backend = gormstorage.New(gormstorage.Dependencies{
			DB:            db,
			LogManager:    b.deps.LogManager,
			WriteInterval: b.deps.WriteInterval,
		})
	}
	return b.Backend.Init()
}
