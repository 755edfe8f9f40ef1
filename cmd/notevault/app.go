package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/notevault/internal/clock"
	"github.com/MarcoPoloResearchLab/notevault/internal/config"
	"github.com/MarcoPoloResearchLab/notevault/internal/crypto"
	"github.com/MarcoPoloResearchLab/notevault/internal/database"
	"github.com/MarcoPoloResearchLab/notevault/internal/keystore"
	"github.com/MarcoPoloResearchLab/notevault/internal/notes"
	"github.com/MarcoPoloResearchLab/notevault/internal/storage"
	"github.com/MarcoPoloResearchLab/notevault/internal/transfer"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// application holds the wired note stack shared by every subcommand.
type application struct {
	config     config.AppConfig
	logger     *zap.Logger
	clock      clock.Clock
	db         *gorm.DB
	store      *storage.Store
	repository *notes.Repository
}

func newApplication(cfg config.AppConfig, logger *zap.Logger, clk clock.Clock) (*application, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.Real{}
	}

	variant, err := keystore.ParseVariant(cfg.KeyVariant)
	if err != nil {
		return nil, err
	}
	backend, err := keystore.NewBackendFromConfig(cfg.KeystoreType, cfg.KeystoreDir)
	if err != nil {
		return nil, err
	}
	keys, err := keystore.NewManager(keystore.Config{
		Backend:      backend,
		SharedSecret: cfg.SharedSecret,
	})
	if err != nil {
		return nil, err
	}
	if err := keys.EnsureKey(); err != nil {
		if variant == keystore.VariantSecure {
			return nil, fmt.Errorf("secure key unavailable: %w", err)
		}
		logger.Warn("secure key unavailable", zap.String("operation", "keystore.ensure"), zap.Error(err))
	}

	engine, err := crypto.NewEngine(crypto.Config{Keys: keys, Variant: variant})
	if err != nil {
		return nil, err
	}
	mapper, err := notes.NewMapper(engine)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(cfg.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewStore(storage.StoreConfig{Database: db, Clock: clk, Logger: logger})
	if err != nil {
		closeDatabase(db)
		return nil, err
	}
	codec, err := transfer.NewCodec[storage.Record](transfer.CodecConfig{Directory: cfg.CacheDir})
	if err != nil {
		closeDatabase(db)
		return nil, err
	}
	repository, err := notes.NewRepository(notes.RepositoryConfig{
		Store:  store,
		Mapper: mapper,
		Crypto: engine,
		Codec:  codec,
		Clock:  clk,
		Logger: logger,
	})
	if err != nil {
		closeDatabase(db)
		return nil, err
	}

	logger.Info("note vault ready",
		zap.String("database", cfg.DatabasePath),
		zap.String("key_variant", variant.String()))

	return &application{
		config:     cfg,
		logger:     logger,
		clock:      clk,
		db:         db,
		store:      store,
		repository: repository,
	}, nil
}

func (a *application) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// firstNotes waits for the first emission of the active note stream.
func (a *application) firstNotes(ctx context.Context) ([]notes.Note, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	select {
	case result, ok := <-a.repository.FetchAllNotes(streamCtx):
		if !ok {
			return nil, errors.New("note stream closed before first emission")
		}
		list, valid := result.Value()
		if !valid {
			return nil, result.Err()
		}
		return list, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func closeDatabase(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
