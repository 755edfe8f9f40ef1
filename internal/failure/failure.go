// Package failure defines the error taxonomy shared by the storage, crypto and
// transfer layers. Every error that crosses the repository boundary is an *Error
// of exactly one Kind.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	// KindStorage covers persistence I/O errors (disk, corruption, constraint violations).
	KindStorage Kind = "storage"
	// KindEncryption covers key unavailability, malformed envelopes and tag mismatches.
	KindEncryption Kind = "encryption"
	// KindSerialization covers malformed import files and export write errors.
	KindSerialization Kind = "serialization"
)

var (
	// ErrStorage matches any storage failure via errors.Is.
	ErrStorage = errors.New("storage failure")
	// ErrEncryption matches any encryption failure via errors.Is.
	ErrEncryption = errors.New("encryption failure")
	// ErrSerialization matches any serialization failure via errors.Is.
	ErrSerialization = errors.New("serialization failure")
)

// Error carries the failure kind, the operation that failed and the original cause.
type Error struct {
	kind  Kind
	op    string
	cause error
}

// New constructs a failure of the given kind.
func New(kind Kind, op string, cause error) *Error {
	return &Error{kind: kind, op: op, cause: cause}
}

// Storage wraps cause as a storage failure.
func Storage(op string, cause error) *Error {
	return New(KindStorage, op, cause)
}

// Encryption wraps cause as an encryption failure.
func Encryption(op string, cause error) *Error {
	return New(KindEncryption, op, cause)
}

// Serialization wraps cause as a serialization failure.
func Serialization(op string, cause error) *Error {
	return New(KindSerialization, op, cause)
}

func (e *Error) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %s failure", e.op, e.kind)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.op, e.kind, e.cause)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is lets errors.Is match the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrStorage:
		return e.kind == KindStorage
	case ErrEncryption:
		return e.kind == KindEncryption
	case ErrSerialization:
		return e.kind == KindSerialization
	}
	return false
}

// Kind returns the failure kind.
func (e *Error) Kind() Kind {
	return e.kind
}

// Op returns the operation code recorded at construction.
func (e *Error) Op() string {
	return e.op
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var failureErr *Error
	if errors.As(err, &failureErr) {
		return failureErr.kind, true
	}
	return "", false
}

// Ensure returns err unchanged when it already belongs to the taxonomy,
// otherwise wraps it with the fallback kind. A nil err stays nil.
func Ensure(fallback Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := KindOf(err); ok {
		return err
	}
	return New(fallback, op, err)
}
