package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/cveintel/internal/models"
)

func TestAutoMigrateCreatesIntelTables(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrate(db))

	migrator := db.Migrator()
	require.True(t, migrator.HasTable(&models.IntelRecord{}))
	require.True(t, migrator.HasTable(&models.CacheEntry{}))
	require.True(t, migrator.HasIndex(&models.IntelRecord{}, "idx_intel_records_key"))
	require.True(t, migrator.HasColumn(&models.IntelRecord{}, "tenant_key"))
}

func TestAutoMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrate(db))
	require.NoError(t, AutoMigrate(db))
}

func TestAutoMigrateRejectsNilHandle(t *testing.T) {
	require.Error(t, AutoMigrate(nil))
}
