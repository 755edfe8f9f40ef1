// Package storage persists encrypted note records and publishes the active set to watchers.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MarcoPoloResearchLab/notevault/internal/clock"
	"github.com/MarcoPoloResearchLab/notevault/internal/failure"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errInvalidBatch    = errors.New("batch size must be positive")
	noOpLogger         = zap.NewNop()
)

const (
	opStoreNew       = "storage.new"
	opInsertOrUpdate = "storage.insert_or_update"
	opFetchActive    = "storage.fetch_active"
	opFetchPinned    = "storage.fetch_pinned"
	opUpdateContent  = "storage.update_content"
	opSetPinned      = "storage.set_pinned"
	opDeleteByID     = "storage.delete_by_id"
	opDeleteAll      = "storage.delete_all"
	opPurge          = "storage.purge"
	opPurgeExpired   = "storage.purge_expired"
)

const activeCondition = "(deleted_at IS NULL OR deleted_at > ?)"

// StoreConfig configures a Store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    clock.Clock
	Logger   *zap.Logger
}

// Store is the record table plus a change feed. Safe for concurrent use.
type Store struct {
	db     *gorm.DB
	clock  clock.Clock
	logger *zap.Logger

	mu          sync.Mutex
	nextWatcher int
	watchers    map[int]chan struct{}
}

// NewStore validates cfg and constructs a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, failure.Storage(opStoreNew, errMissingDatabase)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{
		db:       cfg.Database,
		clock:    clk,
		logger:   logger,
		watchers: make(map[int]chan struct{}),
	}, nil
}

// InsertOrUpdate upserts records by uid in one transaction. Records with UID 0 are assigned
// an id, written back into the slice.
func (s *Store) InsertOrUpdate(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for index := range records {
			record := &records[index]
			if record.UID == 0 {
				if err := tx.Create(record).Error; err != nil {
					return err
				}
				continue
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "uid"}},
				UpdateAll: true,
			}).Create(record).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return s.fail(opInsertOrUpdate, "transaction_failed", err, zap.Int("record_count", len(records)))
	}
	s.notify()
	return nil
}

// FetchActive returns records whose deleted_at is NULL or later than now, in uid order.
func (s *Store) FetchActive(ctx context.Context) ([]Record, error) {
	var records []Record
	if err := s.db.WithContext(ctx).
		Where(activeCondition, clock.NowMillis(s.clock)).
		Order("uid ASC").
		Find(&records).Error; err != nil {
		return nil, s.fail(opFetchActive, "query_failed", err)
	}
	return records, nil
}

// FetchPinned returns active pinned records in uid order.
func (s *Store) FetchPinned(ctx context.Context) ([]Record, error) {
	var records []Record
	if err := s.db.WithContext(ctx).
		Where(activeCondition, clock.NowMillis(s.clock)).
		Where("is_pinned = ?", true).
		Order("uid ASC").
		Find(&records).Error; err != nil {
		return nil, s.fail(opFetchPinned, "query_failed", err)
	}
	return records, nil
}

// Watch emits the active set immediately and again after every mutation or Invalidate.
// Pending signals coalesce, so a slow reader sees the latest state rather than every step.
// The channel closes when ctx is done.
func (s *Store) Watch(ctx context.Context) <-chan failure.Result[[]Record] {
	signal := make(chan struct{}, 1)
	signal <- struct{}{}

	s.mu.Lock()
	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = signal
	s.mu.Unlock()

	out := make(chan failure.Result[[]Record])
	go func() {
		defer close(out)
		defer s.unwatch(id)
		for {
			select {
			case <-ctx.Done():
				return
			case <-signal:
			}
			records, err := s.FetchActive(ctx)
			var result failure.Result[[]Record]
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				result = failure.Fail[[]Record](err)
			} else {
				result = failure.Ok(records)
			}
			select {
			case <-ctx.Done():
				return
			case out <- result:
			}
		}
	}()
	return out
}

// Invalidate re-triggers every watcher without a mutation.
func (s *Store) Invalidate() {
	s.notify()
}

// UpdateContent overwrites the mutable fields of one record. A missing id is not an error.
func (s *Store) UpdateContent(ctx context.Context, id int64, content *string, isPinned bool, deletedAt *int64) error {
	result := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("uid = ?", id).
		Updates(map[string]any{
			"content":    content,
			"is_pinned":  isPinned,
			"deleted_at": deletedAt,
		})
	if result.Error != nil {
		return s.fail(opUpdateContent, "update_failed", result.Error, zap.Int64("note_id", id))
	}
	s.notify()
	return nil
}

// SetPinned changes only the pin flag of one record.
func (s *Store) SetPinned(ctx context.Context, id int64, pinned bool) error {
	if err := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("uid = ?", id).
		Update("is_pinned", pinned).Error; err != nil {
		return s.fail(opSetPinned, "update_failed", err, zap.Int64("note_id", id))
	}
	s.notify()
	return nil
}

// DeleteByID soft-deletes one record by setting deleted_at to now.
func (s *Store) DeleteByID(ctx context.Context, id int64) error {
	if err := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("uid = ?", id).
		Update("deleted_at", clock.NowMillis(s.clock)).Error; err != nil {
		return s.fail(opDeleteByID, "update_failed", err, zap.Int64("note_id", id))
	}
	s.notify()
	return nil
}

// DeleteAll soft-deletes every active record.
func (s *Store) DeleteAll(ctx context.Context) error {
	now := clock.NowMillis(s.clock)
	if err := s.db.WithContext(ctx).
		Model(&Record{}).
		Where(activeCondition, now).
		Update("deleted_at", now).Error; err != nil {
		return s.fail(opDeleteAll, "update_failed", err)
	}
	s.notify()
	return nil
}

// Purge physically removes one record.
func (s *Store) Purge(ctx context.Context, id int64) error {
	if err := s.db.WithContext(ctx).
		Where("uid = ?", id).
		Delete(&Record{}).Error; err != nil {
		return s.fail(opPurge, "delete_failed", err, zap.Int64("note_id", id))
	}
	s.notify()
	return nil
}

// PurgeExpired removes up to batchSize records deleted at or before olderThanMillis and
// reports how many rows went away.
func (s *Store) PurgeExpired(ctx context.Context, olderThanMillis int64, batchSize int) (int, error) {
	if batchSize <= 0 {
		return 0, failure.Storage(opPurgeExpired, errInvalidBatch)
	}
	result := s.db.WithContext(ctx).Exec(
		"DELETE FROM notes WHERE uid IN (SELECT uid FROM notes WHERE deleted_at IS NOT NULL AND deleted_at <= ? ORDER BY uid LIMIT ?)",
		olderThanMillis, batchSize,
	)
	if result.Error != nil {
		return 0, s.fail(opPurgeExpired, "delete_failed", result.Error)
	}
	// Purged rows were already invisible, so watchers need no signal.
	return int(result.RowsAffected), nil
}

func (s *Store) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, signal := range s.watchers {
		select {
		case signal <- struct{}{}:
		default:
		}
	}
}

func (s *Store) unwatch(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watchers, id)
}

func (s *Store) fail(operation, reason string, err error, fields ...zap.Field) error {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}
	attrs = append(attrs, fields...)
	s.logger.Error("storage error", attrs...)
	return failure.Storage(operation, fmt.Errorf("%s: %w", reason, err))
}
