package database

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SchemaVersion is the version of the newest migration. It increments with every change to
// the column shape of the notes table.
const SchemaVersion = 2

const (
	migrationCreateNotes            = "create_notes"
	migrationNormalizeDeletedAtNull = "normalize_deleted_at_sentinel"
)

type migrationRecord struct {
	Version          int    `gorm:"column:version;primaryKey;autoIncrement:false"`
	Name             string `gorm:"column:name;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	version int
	name    string
	apply   func(*gorm.DB) error
}

func migrationDefinitions() []migrationDefinition {
	return []migrationDefinition{
		{version: 1, name: migrationCreateNotes, apply: createNotesTable},
		{version: 2, name: migrationNormalizeDeletedAtNull, apply: normalizeDeletedAtSentinel},
	}
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	for _, migration := range migrationDefinitions() {
		var record migrationRecord
		err := db.Where("version = ?", migration.version).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return fmt.Errorf("migration %d %s: %w", migration.version, migration.name, err)
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Version: migration.version, Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.Int("version", migration.version), zap.String("migration", migration.name))
		}
	}
	return nil
}

// AppliedVersion returns the highest migration version recorded in db, or 0 for a fresh database.
func AppliedVersion(db *gorm.DB) (int, error) {
	var version *int
	if err := db.Model(&migrationRecord{}).Select("MAX(version)").Scan(&version).Error; err != nil {
		return 0, err
	}
	if version == nil {
		return 0, nil
	}
	return *version, nil
}

func createNotesTable(db *gorm.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS notes (
			uid INTEGER PRIMARY KEY AUTOINCREMENT,
			content TEXT,
			is_pinned NUMERIC NOT NULL DEFAULT 0,
			created_at INTEGER,
			deleted_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_deleted_at ON notes(deleted_at)`,
	}
	for _, statement := range statements {
		if err := db.Exec(statement).Error; err != nil {
			return err
		}
	}
	return nil
}

// Older exports used the maximum int64 value to mean "never deleted".
func normalizeDeletedAtSentinel(db *gorm.DB) error {
	return db.Exec("UPDATE notes SET deleted_at = NULL WHERE deleted_at >= ?", int64(math.MaxInt64)).Error
}
