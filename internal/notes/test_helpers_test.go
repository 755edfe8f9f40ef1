package notes

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/notevault/internal/clock"
	"github.com/MarcoPoloResearchLab/notevault/internal/crypto"
	"github.com/MarcoPoloResearchLab/notevault/internal/database"
	"github.com/MarcoPoloResearchLab/notevault/internal/failure"
	"github.com/MarcoPoloResearchLab/notevault/internal/keystore"
	"github.com/MarcoPoloResearchLab/notevault/internal/storage"
	"github.com/MarcoPoloResearchLab/notevault/internal/transfer"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const receiveTimeout = 2 * time.Second

func strPtr(value string) *string { return &value }
func int64Ptr(value int64) *int64  { return &value }

type repositoryFixture struct {
	repository *Repository
	store      *storage.Store
	engine     *crypto.Engine
	clock      *clock.Stub
	exportDir  string
}

func mustEngine(t *testing.T) *crypto.Engine {
	t.Helper()
	manager, err := keystore.NewManager(keystore.Config{Backend: keystore.NewMemoryBackend()})
	require.NoError(t, err)
	engine, err := crypto.NewEngine(crypto.Config{Keys: manager, Variant: keystore.VariantExportable})
	require.NoError(t, err)
	return engine
}

func mustMapper(t *testing.T, cipher Cipher) *Mapper {
	t.Helper()
	mapper, err := NewMapper(cipher)
	require.NoError(t, err)
	return mapper
}

func newRepositoryFixture(t *testing.T, logger *zap.Logger) repositoryFixture {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "notes.db"), zap.NewNop())
	require.NoError(t, err)
	stub := clock.NewStub(time.UnixMilli(100_000))
	store, err := storage.NewStore(storage.StoreConfig{Database: db, Clock: stub})
	require.NoError(t, err)
	exportDir := t.TempDir()
	codec, err := transfer.NewCodec[storage.Record](transfer.CodecConfig{Directory: exportDir})
	require.NoError(t, err)
	engine := mustEngine(t)
	repository, err := NewRepository(RepositoryConfig{
		Store:  store,
		Mapper: mustMapper(t, engine),
		Crypto: engine,
		Codec:  codec,
		Clock:  stub,
		Logger: logger,
	})
	require.NoError(t, err)
	return repositoryFixture{repository: repository, store: store, engine: engine, clock: stub, exportDir: exportDir}
}

func receiveNotes(t *testing.T, stream <-chan failure.Result[[]Note]) failure.Result[[]Note] {
	t.Helper()
	select {
	case result, ok := <-stream:
		require.True(t, ok, "note stream closed")
		return result
	case <-time.After(receiveTimeout):
		t.Fatalf("timed out waiting for notes")
	}
	return failure.Result[[]Note]{}
}

func mustNotes(t *testing.T, result failure.Result[[]Note]) []Note {
	t.Helper()
	notes, ok := result.Value()
	require.True(t, ok, "unexpected failure: %v", result.Err())
	return notes
}

func writeTransferFile(t *testing.T, name string, records []storage.Record) string {
	t.Helper()
	codec, err := transfer.NewCodec[storage.Record](transfer.CodecConfig{Directory: t.TempDir(), FileName: name})
	require.NoError(t, err)
	path, err := codec.ToFile(records)
	require.NoError(t, err)
	return path
}

func messages(notes []Note) []string {
	out := make([]string, 0, len(notes))
	for _, note := range notes {
		out = append(out, note.Text())
	}
	return out
}

// stubStore fails every call with err, for boundary normalization tests.
type stubStore struct {
	err error
}

func (s stubStore) InsertOrUpdate(context.Context, []storage.Record) error { return s.err }
func (s stubStore) FetchActive(context.Context) ([]storage.Record, error)  { return nil, s.err }
func (s stubStore) FetchPinned(context.Context) ([]storage.Record, error)  { return nil, s.err }
func (s stubStore) Watch(ctx context.Context) <-chan failure.Result[[]storage.Record] {
	out := make(chan failure.Result[[]storage.Record], 1)
	out <- failure.Fail[[]storage.Record](s.err)
	close(out)
	return out
}
func (s stubStore) UpdateContent(context.Context, int64, *string, bool, *int64) error { return s.err }
func (s stubStore) SetPinned(context.Context, int64, bool) error                      { return s.err }
func (s stubStore) DeleteByID(context.Context, int64) error                           { return s.err }
func (s stubStore) DeleteAll(context.Context) error                                   { return s.err }
func (s stubStore) Purge(context.Context, int64) error                                { return s.err }
func (s stubStore) Invalidate()                                                       {}
