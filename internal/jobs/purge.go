// Package jobs holds background maintenance for the note store.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/notevault/internal/clock"
	"go.uber.org/zap"
)

var errMissingStore = errors.New("purge store is required")

// ExpiredRecordStore hard-deletes rows whose deletion time is at or before a cutoff.
type ExpiredRecordStore interface {
	PurgeExpired(ctx context.Context, olderThanMillis int64, batchSize int) (int, error)
}

// Config holds configuration for the purge job.
type Config struct {
	RetentionPeriod time.Duration // How long soft-deleted notes are kept
	Schedule        time.Duration // How often to run
	BatchSize       int           // Rows removed per statement
	BatchDelay      time.Duration // Pause between batches
	RunTimeout      time.Duration // Upper bound for one run
	Clock           clock.Clock
	Logger          *zap.Logger
}

// DefaultConfig keeps soft-deleted notes for 30 days and checks hourly.
func DefaultConfig() Config {
	return Config{
		RetentionPeriod: 30 * 24 * time.Hour,
		Schedule:        time.Hour,
		BatchSize:       500,
		BatchDelay:      50 * time.Millisecond,
		RunTimeout:      5 * time.Minute,
	}
}

// PurgeJob periodically removes notes that were soft-deleted longer than the retention period.
type PurgeJob struct {
	store           ExpiredRecordStore
	retentionPeriod time.Duration
	schedule        time.Duration
	batchSize       int
	batchDelay      time.Duration
	runTimeout      time.Duration
	clock           clock.Clock
	logger          *zap.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewPurgeJob fills unset fields from DefaultConfig.
func NewPurgeJob(store ExpiredRecordStore, cfg Config) (*PurgeJob, error) {
	if store == nil {
		return nil, errMissingStore
	}
	defaults := DefaultConfig()
	if cfg.RetentionPeriod < 0 {
		cfg.RetentionPeriod = defaults.RetentionPeriod
	}
	if cfg.Schedule <= 0 {
		cfg.Schedule = defaults.Schedule
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = defaults.BatchDelay
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaults.RunTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &PurgeJob{
		store:           store,
		retentionPeriod: cfg.RetentionPeriod,
		schedule:        cfg.Schedule,
		batchSize:       cfg.BatchSize,
		batchDelay:      cfg.BatchDelay,
		runTimeout:      cfg.RunTimeout,
		clock:           cfg.Clock,
		logger:          cfg.Logger,
		stopCh:          make(chan struct{}),
		done:            make(chan struct{}),
	}, nil
}

// Start runs one purge immediately and then on every schedule tick.
func (j *PurgeJob) Start() {
	j.logger.Info("starting purge job",
		zap.Duration("retention", j.retentionPeriod),
		zap.Duration("schedule", j.schedule))
	go j.loop()
}

// Stop ends the loop and waits for an in-flight run. Safe to call more than once, but only
// after Start.
func (j *PurgeJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.stopCh)
	})
	<-j.done
}

func (j *PurgeJob) loop() {
	defer close(j.done)
	j.run()

	ticker := time.NewTicker(j.schedule)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			j.run()
		case <-j.stopCh:
			j.logger.Info("purge job stopped")
			return
		}
	}
}

func (j *PurgeJob) run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.runTimeout)
	defer cancel()
	go func() {
		select {
		case <-j.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	if _, err := j.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		j.logger.Error("purge run failed", zap.String("operation", "jobs.purge"), zap.Error(err))
	}
}

// RunOnce deletes every eligible row in batches and returns how many were removed.
func (j *PurgeJob) RunOnce(ctx context.Context) (int, error) {
	cutoff := j.clock.Now().Add(-j.retentionPeriod)
	total := 0
	for {
		deleted, err := j.store.PurgeExpired(ctx, cutoff.UnixMilli(), j.batchSize)
		if err != nil {
			return total, err
		}
		total += deleted
		if deleted < j.batchSize {
			break
		}
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-time.After(j.batchDelay):
		}
	}
	if total > 0 {
		j.logger.Info("purge complete",
			zap.Int("deleted_count", total),
			zap.String("cutoff_time", cutoff.UTC().Format(time.RFC3339)))
	}
	return total, nil
}
