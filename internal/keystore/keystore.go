// Package keystore owns the lifecycle of the symmetric note key.
//
// Two variants exist. The exportable key is derived deterministically from a shared
// secret, so ciphertext exported from one installation decrypts on another. The
// secure key is random, generated once and kept in a Backend under a fixed alias;
// nothing in this module exports it.
package keystore

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

// Variant selects which key the Manager hands out.
type Variant int

const (
	// VariantExportable is the deterministic, shared-secret-derived key.
	VariantExportable Variant = iota
	// VariantSecure is the random key kept in the keystore backend.
	VariantSecure
)

const (
	// KeyAlias names the secure key inside the backend.
	KeyAlias = "notes_key"
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	// DefaultSharedSecret is used when no shared secret is configured.
	DefaultSharedSecret = "12345678901234567890123456789012"

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// exportSalt is fixed so every installation derives the same exportable key.
var exportSalt = []byte("notevault/export-key/v1")

var (
	// ErrKeyUnavailable reports that a key could not be produced or loaded.
	ErrKeyUnavailable = errors.New("keystore: key unavailable")
	// ErrKeyNotFound is returned by backends when the alias does not exist.
	ErrKeyNotFound = errors.New("keystore: key not found")
	// ErrUnknownVariant reports an unsupported variant value.
	ErrUnknownVariant = errors.New("keystore: unknown key variant")
)

// ParseVariant maps a configuration value onto a Variant.
func ParseVariant(raw string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "exportable", "export", "":
		return VariantExportable, nil
	case "secure":
		return VariantSecure, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownVariant, raw)
	}
}

func (v Variant) String() string {
	switch v {
	case VariantExportable:
		return "exportable"
	case VariantSecure:
		return "secure"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// Backend persists raw key material by alias.
type Backend interface {
	// Load returns the key stored under alias or ErrKeyNotFound.
	Load(alias string) ([]byte, error)
	// Store saves key under alias, replacing nothing that already exists.
	Store(alias string, key []byte) error
}

// Config configures a Manager.
type Config struct {
	Backend      Backend
	SharedSecret string
	Random       io.Reader
}

// Manager hands out keys for both variants. Safe for concurrent use; returned
// slices must not be modified by callers.
type Manager struct {
	backend      Backend
	sharedSecret []byte
	random       io.Reader

	exportOnce sync.Once
	exportKey  []byte

	mu        sync.Mutex
	secureKey []byte
}

// NewManager constructs a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("%w: backend is required", ErrKeyUnavailable)
	}
	secret := cfg.SharedSecret
	if secret == "" {
		secret = DefaultSharedSecret
	}
	random := cfg.Random
	if random == nil {
		random = rand.Reader
	}
	return &Manager{
		backend:      cfg.Backend,
		sharedSecret: []byte(secret),
		random:       random,
	}, nil
}

// Key returns the key for variant.
func (m *Manager) Key(variant Variant) ([]byte, error) {
	switch variant {
	case VariantExportable:
		m.exportOnce.Do(func() {
			m.exportKey = argon2.IDKey(m.sharedSecret, exportSalt, argonTime, argonMemory, argonThreads, KeySize)
		})
		return m.exportKey, nil
	case VariantSecure:
		return m.loadSecure()
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownVariant, int(variant))
	}
}

// EnsureKey generates and stores the secure key unless the alias already exists.
func (m *Manager) EnsureKey() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.secureKey != nil {
		return nil
	}
	existing, err := m.backend.Load(KeyAlias)
	if err == nil {
		if len(existing) != KeySize {
			return fmt.Errorf("%w: stored key has %d bytes", ErrKeyUnavailable, len(existing))
		}
		m.secureKey = existing
		return nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(m.random, key); err != nil {
		return fmt.Errorf("%w: generating key: %v", ErrKeyUnavailable, err)
	}
	if err := m.backend.Store(KeyAlias, key); err != nil {
		return fmt.Errorf("%w: storing key: %v", ErrKeyUnavailable, err)
	}
	m.secureKey = key
	return nil
}

func (m *Manager) loadSecure() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.secureKey != nil {
		return m.secureKey, nil
	}
	key, err := m.backend.Load(KeyAlias)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: stored key has %d bytes", ErrKeyUnavailable, len(key))
	}
	m.secureKey = key
	return key, nil
}
