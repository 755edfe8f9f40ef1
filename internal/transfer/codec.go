// Package transfer writes record batches to a JSON file and reads them back.
package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MarcoPoloResearchLab/notevault/internal/failure"
	"github.com/google/uuid"
)

// DefaultFileName is the export file name used when none is configured.
const DefaultFileName = "notes.json"

const (
	opToFile   = "transfer.to_file"
	opFromFile = "transfer.from_file"

	exportDirMode  = 0o700
	exportFileMode = 0o600
)

var errMissingDirectory = errors.New("export directory is required")

// CodecConfig configures a Codec.
type CodecConfig struct {
	Directory string
	FileName  string
}

// Codec serializes slices of T as an indented JSON array.
type Codec[T any] struct {
	directory string
	fileName  string
}

// NewCodec validates cfg and constructs a Codec.
func NewCodec[T any](cfg CodecConfig) (*Codec[T], error) {
	if cfg.Directory == "" {
		return nil, errMissingDirectory
	}
	fileName := cfg.FileName
	if fileName == "" {
		fileName = DefaultFileName
	}
	directory, err := filepath.Abs(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("resolving export directory: %w", err)
	}
	return &Codec[T]{directory: directory, fileName: fileName}, nil
}

// Path returns the absolute path ToFile writes to.
func (c *Codec[T]) Path() string {
	return filepath.Join(c.directory, c.fileName)
}

// ToFile writes records to Path, replacing any previous export atomically, and returns the path.
func (c *Codec[T]) ToFile(records []T) (string, error) {
	if records == nil {
		records = []T{}
	}
	payload, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", failure.Serialization(opToFile, fmt.Errorf("encoding records: %w", err))
	}
	if err := os.MkdirAll(c.directory, exportDirMode); err != nil {
		return "", failure.Serialization(opToFile, fmt.Errorf("creating export directory: %w", err))
	}

	staging, err := c.stagingPath()
	if err != nil {
		return "", failure.Serialization(opToFile, err)
	}
	if err := writeSynced(staging, payload); err != nil {
		_ = os.Remove(staging)
		return "", failure.Serialization(opToFile, err)
	}
	target := c.Path()
	if err := os.Rename(staging, target); err != nil {
		_ = os.Remove(staging)
		return "", failure.Serialization(opToFile, fmt.Errorf("finalizing export: %w", err))
	}
	return target, nil
}

// FromFile parses the JSON array stored at path.
func (c *Codec[T]) FromFile(path string) ([]T, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, failure.Serialization(opFromFile, fmt.Errorf("reading import file: %w", err))
	}
	var records []T
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, failure.Serialization(opFromFile, fmt.Errorf("decoding import file: %w", err))
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}

func (c *Codec[T]) stagingPath() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating staging name: %w", err)
	}
	return filepath.Join(c.directory, "."+c.fileName+"."+id.String()+".tmp"), nil
}

func writeSynced(path string, payload []byte) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, exportFileMode)
	if err != nil {
		return fmt.Errorf("creating staging file: %w", err)
	}
	if _, err := file.Write(payload); err != nil {
		file.Close()
		return fmt.Errorf("writing staging file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("syncing staging file: %w", err)
	}
	return file.Close()
}
