package postgres

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shadowhunters/boardview/internal/database"
	"github.com/shadowhunters/boardview/internal/storage"
	"github.com/shadowhunters/boardview/pkg/core"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

func TestInit_Unreachable(t *testing.T) {
	viper.Set("db.host", "127.0.0.1")
	viper.Set("db.port", "1")
	viper.Set("db.username", "boardview")
	viper.Set("db.database", "boardview")
	t.Cleanup(viper.Reset)

	b := New(Dependencies{})
	err := b.Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to postgres")
}

func TestInit_InjectedDB(t *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "pg.db"))
	require.NoError(t, err)

	b := New(Dependencies{DB: db, WriteInterval: time.Hour})
	require.NoError(t, b.Init())
	defer b.Close()

	s := &core.Session{UUID: "pg", StartTime: time.Now()}
	require.NoError(t, b.StartSession(s))
	assert.NotZero(t, s.ID)
	assert.Same(t, db, b.DB())
}
