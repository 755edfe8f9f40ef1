package keystore

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	keyDirMode  = 0o700
	keyFileMode = 0o600
	keyFileExt  = ".key"
)

// FileBackend keeps each key in its own owner-only file under a directory.
type FileBackend struct {
	dir string
}

var _ Backend = (*FileBackend)(nil)

// NewFileBackend returns a backend rooted at dir.
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

func (b *FileBackend) path(alias string) string {
	return filepath.Join(b.dir, alias+keyFileExt)
}

func (b *FileBackend) Load(alias string) ([]byte, error) {
	data, err := os.ReadFile(b.path(alias))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decoding key file: %w", err)
	}
	return key, nil
}

func (b *FileBackend) Store(alias string, key []byte) error {
	if err := os.MkdirAll(b.dir, keyDirMode); err != nil {
		return fmt.Errorf("creating keystore directory: %w", err)
	}
	// O_EXCL keeps an existing key from being overwritten by a racing writer.
	file, err := os.OpenFile(b.path(alias), os.O_WRONLY|os.O_CREATE|os.O_EXCL, keyFileMode)
	if err != nil {
		return fmt.Errorf("creating key file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(base64.StdEncoding.EncodeToString(key) + "\n"); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}
	return file.Sync()
}

// MemoryBackend keeps keys in memory. Safe for concurrent use.
type MemoryBackend struct {
	mu   sync.RWMutex
	keys map[string][]byte
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{keys: make(map[string][]byte)}
}

func (b *MemoryBackend) Load(alias string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	key, ok := b.keys[alias]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), key...), nil
}

func (b *MemoryBackend) Store(alias string, key []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.keys[alias]; ok {
		return fmt.Errorf("alias %q already exists", alias)
	}
	b.keys[alias] = append([]byte(nil), key...)
	return nil
}

// NewBackendFromConfig creates a Backend for the configured type.
func NewBackendFromConfig(kind, dir string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "file", "":
		if strings.TrimSpace(dir) == "" {
			return nil, fmt.Errorf("keystore directory is required for file backend")
		}
		return NewFileBackend(dir), nil
	case "memory":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown keystore type: %q", kind)
	}
}
