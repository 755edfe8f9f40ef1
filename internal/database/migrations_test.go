package database

import (
	"math"
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestOpenSQLiteCreatesNotesTableAndRecordsVersion(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "notes.db")

	database, err := OpenSQLite(databasePath, zap.NewNop())
	require.NoError(testContext, err)

	require.True(testContext, database.Migrator().HasTable("notes"), "notes table")
	for _, column := range []string{"uid", "content", "is_pinned", "created_at", "deleted_at"} {
		assert.True(testContext, database.Migrator().HasColumn("notes", column), "notes.%s column", column)
	}

	version, err := AppliedVersion(database)
	require.NoError(testContext, err)
	assert.Equal(testContext, SchemaVersion, version)
}

func TestApplyMigrationsIsIdempotent(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "idempotent.db")

	_, err := OpenSQLite(databasePath, zap.NewNop())
	require.NoError(testContext, err, "first open")
	database, err := OpenSQLite(databasePath, zap.NewNop())
	require.NoError(testContext, err, "second open")

	var count int64
	require.NoError(testContext, database.Model(&migrationRecord{}).Count(&count).Error)
	assert.Equal(testContext, int64(len(migrationDefinitions())), count)
}

func TestApplyMigrationsNormalizesDeletedAtSentinel(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "sentinel.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	require.NoError(testContext, err)
	require.NoError(testContext, database.AutoMigrate(&migrationRecord{}))
	require.NoError(testContext, createNotesTable(database))
	require.NoError(testContext, database.Create(&migrationRecord{Version: 1, Name: migrationCreateNotes, AppliedAtSeconds: 1}).Error)

	require.NoError(testContext, database.Exec("INSERT INTO notes (content, is_pinned, created_at, deleted_at) VALUES (?, ?, ?, ?), (?, ?, ?, ?)",
		"a:b", false, 1000, int64(math.MaxInt64),
		"c:d", true, 2000, 5000,
	).Error)

	require.NoError(testContext, applyMigrations(database, zap.NewNop()))

	type row struct {
		UID       int64
		DeletedAt *int64
	}
	var rows []row
	require.NoError(testContext, database.Raw("SELECT uid, deleted_at FROM notes ORDER BY uid").Scan(&rows).Error)
	require.Len(testContext, rows, 2)
	assert.Nil(testContext, rows[0].DeletedAt, "sentinel becomes NULL")
	require.NotNil(testContext, rows[1].DeletedAt, "scheduled deletion preserved")
	assert.Equal(testContext, int64(5000), *rows[1].DeletedAt)

	var record migrationRecord
	require.NoError(testContext, database.Where("version = ?", 2).Take(&record).Error)
	assert.NotZero(testContext, record.AppliedAtSeconds)
}
