package testutil

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/cveintel/internal/database"
)

// TestDBOption customises the behaviour of MustOpenTestDB.
type TestDBOption func(*testDBConfig)

type testDBConfig struct {
	autoMigrate  bool
	maxOpenConns int
	onDisk       bool
}

// WithAutoMigrate enables automatic schema migration after opening the test database.
func WithAutoMigrate() TestDBOption {
	return func(cfg *testDBConfig) {
		cfg.autoMigrate = true
	}
}

// WithMaxOpenConns overrides the pool size. SQLite in-memory databases serialise writers, so
// the default of one connection keeps concurrent tests free of "database is locked" errors.
func WithMaxOpenConns(n int) TestDBOption {
	return func(cfg *testDBConfig) {
		if n > 0 {
			cfg.maxOpenConns = n
		}
	}
}

// WithFileDatabase backs the test database with a WAL-mode file in t.TempDir() instead of
// shared-cache memory, so several pooled connections can write concurrently.
func WithFileDatabase() TestDBOption {
	return func(cfg *testDBConfig) {
		cfg.onDisk = true
	}
}

// MustOpenTestDB opens an isolated SQLite database for a single test, in memory by default.
// The returned connection is automatically closed via t.Cleanup.
func MustOpenTestDB(t *testing.T, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	cfg := testDBConfig{maxOpenConns: 1}
	for _, opt := range opts {
		opt(&cfg)
	}

	dbCfg := database.Config{
		Driver:       "sqlite",
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString()),
		MaxOpenConns: cfg.maxOpenConns,
	}
	if cfg.onDisk {
		dbCfg.DSN = ""
		dbCfg.Path = filepath.Join(t.TempDir(), uuid.NewString()+".sqlite")
	}

	db, err := database.Open(dbCfg)
	require.NoError(t, err)

	if cfg.autoMigrate {
		require.NoError(t, database.AutoMigrate(db))
	}

	t.Cleanup(func() {
		_ = database.Close(db)
	})

	return db
}
