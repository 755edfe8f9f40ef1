package transfer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/notevault/internal/failure"
	"github.com/MarcoPoloResearchLab/notevault/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(value string) *string { return &value }
func int64Ptr(value int64) *int64  { return &value }

func TestToFileWritesIndentedWireFormat(t *testing.T) {
	dir := t.TempDir()
	codec, err := NewCodec[storage.Record](CodecConfig{Directory: dir})
	require.NoError(t, err)

	path, err := codec.ToFile([]storage.Record{{UID: 1, Content: strPtr("iv:ct"), CreatedAt: int64Ptr(1000)}})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultFileName), path)

	payload, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"uid":1,"content":"iv:ct","isPinned":false,"createdAt":1000,"deletedAt":null}]`, string(payload))
	assert.True(t, strings.HasPrefix(string(payload), "[\n  {"))
}

func TestToFileOverwritesAndLeavesNoStagingFiles(t *testing.T) {
	dir := t.TempDir()
	codec, err := NewCodec[storage.Record](CodecConfig{Directory: dir, FileName: "backup.json"})
	require.NoError(t, err)

	_, err = codec.ToFile([]storage.Record{{UID: 1}, {UID: 2}})
	require.NoError(t, err)
	path, err := codec.ToFile([]storage.Record{{UID: 3}})
	require.NoError(t, err)

	records, err := codec.FromFile(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(3), records[0].UID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "backup.json", entries[0].Name())
}

func TestToFileEncodesNilAsEmptyArray(t *testing.T) {
	codec, err := NewCodec[storage.Record](CodecConfig{Directory: t.TempDir()})
	require.NoError(t, err)

	path, err := codec.ToFile(nil)
	require.NoError(t, err)
	payload, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(payload))
}

func TestFromFileRoundTrip(t *testing.T) {
	codec, err := NewCodec[storage.Record](CodecConfig{Directory: t.TempDir()})
	require.NoError(t, err)

	original := []storage.Record{
		{UID: 1, Content: strPtr("a:b"), IsPinned: true, CreatedAt: int64Ptr(1000)},
		{UID: 2, Content: nil, CreatedAt: int64Ptr(2000), DeletedAt: int64Ptr(9000)},
	}
	path, err := codec.ToFile(original)
	require.NoError(t, err)

	decoded, err := codec.FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestFromFileFailures(t *testing.T) {
	dir := t.TempDir()
	codec, err := NewCodec[storage.Record](CodecConfig{Directory: dir})
	require.NoError(t, err)

	_, err = codec.FromFile(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, failure.ErrSerialization)

	malformed := filepath.Join(dir, "malformed.json")
	require.NoError(t, os.WriteFile(malformed, []byte(`[{"uid": "oops"`), 0o600))
	_, err = codec.FromFile(malformed)
	assert.ErrorIs(t, err, failure.ErrSerialization)
}

func TestToFileFailsWhenDirectoryIsAFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	codec, err := NewCodec[storage.Record](CodecConfig{Directory: filepath.Join(blocker, "exports")})
	require.NoError(t, err)
	_, err = codec.ToFile([]storage.Record{{UID: 1}})
	assert.ErrorIs(t, err, failure.ErrSerialization)
}

func TestNewCodecRequiresDirectory(t *testing.T) {
	_, err := NewCodec[storage.Record](CodecConfig{})
	assert.Error(t, err)
}
