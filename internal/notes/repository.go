package notes

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/notevault/internal/clock"
	"github.com/MarcoPoloResearchLab/notevault/internal/failure"
	"github.com/MarcoPoloResearchLab/notevault/internal/storage"
	"go.uber.org/zap"
)

var (
	errMissingStore  = errors.New("record store is required")
	errMissingMapper = errors.New("mapper is required")
	errMissingCodec  = errors.New("codec is required")
	noOpLogger       = zap.NewNop()
)

const (
	opRepositoryNew  = "notes.repository.new"
	opFetchAllNotes  = "notes.fetch_all"
	opFetchPinned    = "notes.fetch_pinned"
	opAddNote        = "notes.add"
	opUpdateNote     = "notes.update"
	opDeleteNote     = "notes.delete"
	opDeleteAllNotes = "notes.delete_all"
	opPurgeNote      = "notes.purge"
	opSetPinned      = "notes.set_pinned"
	opExportNotes    = "notes.export"
	opImportNotes    = "notes.import"
)

// RecordStore is the persistence surface the repository drives.
type RecordStore interface {
	InsertOrUpdate(ctx context.Context, records []storage.Record) error
	FetchActive(ctx context.Context) ([]storage.Record, error)
	FetchPinned(ctx context.Context) ([]storage.Record, error)
	Watch(ctx context.Context) <-chan failure.Result[[]storage.Record]
	UpdateContent(ctx context.Context, id int64, content *string, isPinned bool, deletedAt *int64) error
	SetPinned(ctx context.Context, id int64, pinned bool) error
	DeleteByID(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) error
	Purge(ctx context.Context, id int64) error
	Invalidate()
}

// RecordCodec moves encrypted records to and from a file.
type RecordCodec interface {
	ToFile(records []storage.Record) (string, error)
	FromFile(path string) ([]storage.Record, error)
}

// RepositoryConfig wires a Repository.
type RepositoryConfig struct {
	Store  RecordStore
	Mapper *Mapper
	Crypto Cipher
	Codec  RecordCodec
	Clock  clock.Clock
	Logger *zap.Logger
}

// Repository is the single entry point for note operations. Every error it returns is a
// *failure.Error of exactly one kind.
type Repository struct {
	store  RecordStore
	mapper *Mapper
	crypto Cipher
	codec  RecordCodec
	clock  clock.Clock
	logger *zap.Logger
}

// NewRepository validates cfg and constructs a Repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Store == nil {
		return nil, failure.Storage(opRepositoryNew, errMissingStore)
	}
	if cfg.Mapper == nil {
		return nil, failure.Encryption(opRepositoryNew, errMissingMapper)
	}
	if cfg.Crypto == nil {
		return nil, failure.Encryption(opRepositoryNew, errMissingCipher)
	}
	if cfg.Codec == nil {
		return nil, failure.Serialization(opRepositoryNew, errMissingCodec)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Repository{
		store:  cfg.Store,
		mapper: cfg.Mapper,
		crypto: cfg.Crypto,
		codec:  cfg.Codec,
		clock:  clk,
		logger: logger,
	}, nil
}

// FetchAllNotes streams the decrypted active note set. A batch with any undecryptable
// record is reported as an encryption failure naming the failed uids, never as a partial list.
// The channel closes when ctx is done.
func (r *Repository) FetchAllNotes(ctx context.Context) <-chan failure.Result[[]Note] {
	records := r.store.Watch(ctx)
	out := make(chan failure.Result[[]Note])
	go func() {
		defer close(out)
		for emission := range records {
			var result failure.Result[[]Note]
			if batch, ok := emission.Value(); ok {
				result = r.mapEmission(batch)
			} else {
				err := r.normalize(opFetchAllNotes, "watch_failed", failure.KindStorage, emission.Err())
				result = failure.Fail[[]Note](err)
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

func (r *Repository) mapEmission(records []storage.Record) failure.Result[[]Note] {
	notes, batchErr := r.mapper.ToDomainList(records)
	if batchErr != nil {
		err := failure.Encryption(opFetchAllNotes, batchErr)
		r.logError(opFetchAllNotes, "decrypt_failed", err, zap.Int64s("note_ids", batchErr.UIDs()))
		return failure.Fail[[]Note](err)
	}
	return failure.Ok(notes)
}

// FetchPinnedNotes returns the active pinned notes once.
func (r *Repository) FetchPinnedNotes(ctx context.Context) ([]Note, error) {
	records, err := r.store.FetchPinned(ctx)
	if err != nil {
		return nil, r.normalize(opFetchPinned, "query_failed", failure.KindStorage, err)
	}
	notes, batchErr := r.mapper.ToDomainList(records)
	if batchErr != nil {
		err := failure.Encryption(opFetchPinned, batchErr)
		r.logError(opFetchPinned, "decrypt_failed", err, zap.Int64s("note_ids", batchErr.UIDs()))
		return nil, err
	}
	return notes, nil
}

// AddNote encrypts and persists note. A missing CreatedAt is stamped with the current time.
func (r *Repository) AddNote(ctx context.Context, note Note) error {
	if note.CreatedAt == nil {
		now := clock.NowMillis(r.clock)
		note.CreatedAt = &now
	}
	record, err := r.mapper.ToStorage(note)
	if err != nil {
		return r.normalize(opAddNote, "encrypt_failed", failure.KindEncryption, err)
	}
	if err := r.store.InsertOrUpdate(ctx, []storage.Record{record}); err != nil {
		return r.normalize(opAddNote, "insert_failed", failure.KindStorage, err)
	}
	return nil
}

// UpdateNote re-encrypts message and overwrites the note's mutable fields.
func (r *Repository) UpdateNote(ctx context.Context, id int64, message *string, isPinned bool, deletedAt *int64) error {
	envelope, err := r.crypto.Encrypt(message)
	if err != nil {
		return r.normalize(opUpdateNote, "encrypt_failed", failure.KindEncryption, err, zap.Int64("note_id", id))
	}
	if err := r.store.UpdateContent(ctx, id, &envelope, isPinned, normalizeDeletedAt(deletedAt)); err != nil {
		return r.normalize(opUpdateNote, "update_failed", failure.KindStorage, err, zap.Int64("note_id", id))
	}
	return nil
}

// SetPinned switches the pin flag of one note.
func (r *Repository) SetPinned(ctx context.Context, id int64, pinned bool) error {
	if err := r.store.SetPinned(ctx, id, pinned); err != nil {
		return r.normalize(opSetPinned, "update_failed", failure.KindStorage, err, zap.Int64("note_id", id))
	}
	return nil
}

// DeleteNote soft-deletes one note.
func (r *Repository) DeleteNote(ctx context.Context, id int64) error {
	if err := r.store.DeleteByID(ctx, id); err != nil {
		return r.normalize(opDeleteNote, "delete_failed", failure.KindStorage, err, zap.Int64("note_id", id))
	}
	return nil
}

// DeleteAllNotes soft-deletes every active note.
func (r *Repository) DeleteAllNotes(ctx context.Context) error {
	if err := r.store.DeleteAll(ctx); err != nil {
		return r.normalize(opDeleteAllNotes, "delete_failed", failure.KindStorage, err)
	}
	return nil
}

// PurgeNote removes one note permanently.
func (r *Repository) PurgeNote(ctx context.Context, id int64) error {
	if err := r.store.Purge(ctx, id); err != nil {
		return r.normalize(opPurgeNote, "purge_failed", failure.KindStorage, err, zap.Int64("note_id", id))
	}
	return nil
}

// PrepareToExportNotes writes the current encrypted records to the export file and returns its path.
func (r *Repository) PrepareToExportNotes(ctx context.Context) (string, error) {
	records, err := r.store.FetchActive(ctx)
	if err != nil {
		return "", r.normalize(opExportNotes, "query_failed", failure.KindStorage, err)
	}
	path, err := r.codec.ToFile(records)
	if err != nil {
		return "", r.normalize(opExportNotes, "write_failed", failure.KindSerialization, err)
	}
	r.logger.Info("notes exported", zap.String("path", path), zap.Int("record_count", len(records)))
	return path, nil
}

// ImportNotes inserts the encrypted records stored at path without re-encrypting them.
func (r *Repository) ImportNotes(ctx context.Context, path string) error {
	records, err := r.codec.FromFile(path)
	if err != nil {
		return r.normalize(opImportNotes, "read_failed", failure.KindSerialization, err, zap.String("path", path))
	}
	for index := range records {
		records[index].DeletedAt = normalizeDeletedAt(records[index].DeletedAt)
	}
	if err := r.store.InsertOrUpdate(ctx, records); err != nil {
		return r.normalize(opImportNotes, "insert_failed", failure.KindStorage, err, zap.String("path", path))
	}
	r.logger.Info("notes imported", zap.String("path", path), zap.Int("record_count", len(records)))
	return nil
}

// Refresh asks every FetchAllNotes stream to re-evaluate the active set.
func (r *Repository) Refresh() {
	r.store.Invalidate()
}

// normalize keeps an existing taxonomy error or wraps err as fallback, then logs it.
func (r *Repository) normalize(operation, reason string, fallback failure.Kind, err error, fields ...zap.Field) error {
	normalized := failure.Ensure(fallback, operation, err)
	r.logError(operation, reason, normalized, fields...)
	return normalized
}

func (r *Repository) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if kind, ok := failure.KindOf(err); ok {
		attrs = append(attrs, zap.String("kind", string(kind)))
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	r.logger.Error("notes repository error", attrs...)
}
