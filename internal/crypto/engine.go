// Package crypto seals note text into self-contained AES-256-GCM envelopes.
//
// An envelope is base64(iv) + ":" + base64(ciphertext||tag). Every Encrypt call uses
// a fresh random 12-byte IV. Errors never carry plaintext or key material.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MarcoPoloResearchLab/notevault/internal/failure"
	"github.com/MarcoPoloResearchLab/notevault/internal/keystore"
)

const (
	envelopeSeparator = ":"
	ivSize            = 12
	tagSize           = 16
)

var (
	errMissingKeySource = errors.New("key source is required")
	errNilEnvelope      = errors.New("envelope is nil")
	errEnvelopeShape    = errors.New("envelope must contain exactly two non-empty segments")
	errIVLength         = errors.New("unexpected iv length")
	errAuthentication   = errors.New("message authentication failed")
)

// KeySource supplies the symmetric key for a variant.
type KeySource interface {
	Key(variant keystore.Variant) ([]byte, error)
}

// Config configures an Engine.
type Config struct {
	Keys    KeySource
	Variant keystore.Variant
	Random  io.Reader
}

// Engine encrypts and decrypts note text. Safe for concurrent use.
type Engine struct {
	keys    KeySource
	variant keystore.Variant
	random  io.Reader
}

// NewEngine validates cfg and constructs an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Keys == nil {
		return nil, errMissingKeySource
	}
	random := cfg.Random
	if random == nil {
		random = rand.Reader
	}
	return &Engine{keys: cfg.Keys, variant: cfg.Variant, random: random}, nil
}

// Variant reports which key variant the engine uses.
func (e *Engine) Variant() keystore.Variant {
	return e.variant
}

// Encrypt seals plaintext. A nil plaintext is sealed as the empty string.
func (e *Engine) Encrypt(plaintext *string) (string, error) {
	const op = "crypto.encrypt"

	aead, err := e.aead()
	if err != nil {
		return "", failure.Encryption(op, err)
	}
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(e.random, iv); err != nil {
		return "", failure.Encryption(op, fmt.Errorf("generating iv: %w", err))
	}

	var message []byte
	if plaintext != nil {
		message = []byte(*plaintext)
	}
	sealed := aead.Seal(nil, iv, message, nil)

	return base64.StdEncoding.EncodeToString(iv) + envelopeSeparator + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens an envelope produced by Encrypt with the same key variant.
func (e *Engine) Decrypt(envelope *string) (string, error) {
	const op = "crypto.decrypt"

	if envelope == nil {
		return "", failure.Encryption(op, errNilEnvelope)
	}
	parts := strings.Split(*envelope, envelopeSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", failure.Encryption(op, errEnvelopeShape)
	}
	iv, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", failure.Encryption(op, fmt.Errorf("decoding iv: %w", err))
	}
	if len(iv) != ivSize {
		return "", failure.Encryption(op, fmt.Errorf("%w: %d", errIVLength, len(iv)))
	}
	sealed, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", failure.Encryption(op, fmt.Errorf("decoding ciphertext: %w", err))
	}
	if len(sealed) < tagSize {
		return "", failure.Encryption(op, errAuthentication)
	}

	aead, err := e.aead()
	if err != nil {
		return "", failure.Encryption(op, err)
	}
	// The underlying error from Open carries no detail worth keeping.
	plaintext, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", failure.Encryption(op, errAuthentication)
	}
	return string(plaintext), nil
}

func (e *Engine) aead() (cipher.AEAD, error) {
	key, err := e.keys.Key(e.variant)
	if err != nil {
		return nil, fmt.Errorf("loading %s key: %w", e.variant, err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return cipher.NewGCMWithTagSize(block, tagSize)
}
