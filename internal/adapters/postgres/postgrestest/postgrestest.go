// Package postgrestest opens a throwaway SQLite database carrying the relay
// schema so repository code can be exercised without a Postgres server.
package postgrestest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/adapters/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Open(t testing.TB) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps transactions and savepoints on the same handle.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, postgres.AutoMigrate(db))
	return db
}

func Repositories(t testing.TB) (*gorm.DB, postgres.Repositories) {
	t.Helper()
	db := Open(t)
	return db, postgres.NewRepositories(db, postgres.Options{LockingClaim: true})
}
