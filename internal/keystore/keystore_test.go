package keystore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportableKeyIsDeterministicAcrossManagers(t *testing.T) {
	first, err := NewManager(Config{Backend: NewMemoryBackend()})
	require.NoError(t, err)
	second, err := NewManager(Config{Backend: NewMemoryBackend()})
	require.NoError(t, err)

	a, err := first.Key(VariantExportable)
	require.NoError(t, err)
	b, err := second.Key(VariantExportable)
	require.NoError(t, err)

	assert.Len(t, a, KeySize)
	assert.Equal(t, a, b)
}

func TestExportableKeyDependsOnSecret(t *testing.T) {
	first, err := NewManager(Config{Backend: NewMemoryBackend(), SharedSecret: "alpha"})
	require.NoError(t, err)
	second, err := NewManager(Config{Backend: NewMemoryBackend(), SharedSecret: "beta"})
	require.NoError(t, err)

	a, err := first.Key(VariantExportable)
	require.NoError(t, err)
	b, err := second.Key(VariantExportable)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEnsureKeyIsIdempotent(t *testing.T) {
	backend := NewMemoryBackend()
	manager, err := NewManager(Config{Backend: backend})
	require.NoError(t, err)

	require.NoError(t, manager.EnsureKey())
	first, err := manager.Key(VariantSecure)
	require.NoError(t, err)

	require.NoError(t, manager.EnsureKey())
	second, err := manager.Key(VariantSecure)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// A fresh manager over the same backend must reuse the stored key.
	other, err := NewManager(Config{Backend: backend})
	require.NoError(t, err)
	require.NoError(t, other.EnsureKey())
	third, err := other.Key(VariantSecure)
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

func TestSecureKeyUnavailableBeforeGeneration(t *testing.T) {
	manager, err := NewManager(Config{Backend: NewMemoryBackend()})
	require.NoError(t, err)

	_, err = manager.Key(VariantSecure)
	require.ErrorIs(t, err, ErrKeyUnavailable)
}

func TestEnsureKeyFailsWhenRandomSourceFails(t *testing.T) {
	manager, err := NewManager(Config{Backend: NewMemoryBackend(), Random: bytes.NewReader([]byte{1, 2})})
	require.NoError(t, err)

	err = manager.EnsureKey()
	require.ErrorIs(t, err, ErrKeyUnavailable)
}

func TestFileBackendPersistsKeyWithOwnerOnlyMode(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")
	backend := NewFileBackend(dir)

	_, err := backend.Load(KeyAlias)
	require.ErrorIs(t, err, ErrKeyNotFound)

	key := bytes.Repeat([]byte{7}, KeySize)
	require.NoError(t, backend.Store(KeyAlias, key))

	loaded, err := backend.Load(KeyAlias)
	require.NoError(t, err)
	assert.Equal(t, key, loaded)

	info, err := os.Stat(filepath.Join(dir, KeyAlias+keyFileExt))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(keyFileMode), info.Mode().Perm())

	err = backend.Store(KeyAlias, key)
	require.Error(t, err)
}

func TestParseVariant(t *testing.T) {
	tests := []struct {
		raw  string
		want Variant
	}{
		{"exportable", VariantExportable},
		{"", VariantExportable},
		{"SECURE", VariantSecure},
	}
	for _, tt := range tests {
		got, err := ParseVariant(tt.raw)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseVariant("hardware")
	assert.True(t, errors.Is(err, ErrUnknownVariant))
}

func TestNewBackendFromConfig(t *testing.T) {
	backend, err := NewBackendFromConfig("memory", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryBackend{}, backend)

	backend, err = NewBackendFromConfig("file", t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, backend)

	_, err = NewBackendFromConfig("file", "")
	assert.Error(t, err)
	_, err = NewBackendFromConfig("tpm", "x")
	assert.Error(t, err)
}
