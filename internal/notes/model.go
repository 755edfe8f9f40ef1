package notes

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NeverDeleted is the legacy deletedAt sentinel meaning "no deletion scheduled".
// It is normalized to nil on the way into storage.
const NeverDeleted int64 = math.MaxInt64

var (
	// ErrInvalidNoteID indicates that a note identifier is not a positive integer.
	ErrInvalidNoteID = errors.New("notes: invalid note id")
	// ErrInvalidTimestamp indicates that an epoch-millis value is negative.
	ErrInvalidTimestamp = errors.New("notes: invalid epoch millis")
)

// Note is the plaintext domain view of a stored record. ID is nil until first persist;
// DeletedAt is nil when no deletion is scheduled.
type Note struct {
	ID        *int64  `json:"id"`
	Message   *string `json:"message"`
	IsPinned  bool    `json:"isPinned"`
	CreatedAt *int64  `json:"createdAt"`
	DeletedAt *int64  `json:"deletedAt"`
}

// Text returns the message, or the empty string when unset.
func (n Note) Text() string {
	if n.Message == nil {
		return ""
	}
	return *n.Message
}

// Clone returns a deep copy so edits never alias a published note.
func (n Note) Clone() Note {
	clone := Note{IsPinned: n.IsPinned}
	clone.ID = copyInt64(n.ID)
	clone.CreatedAt = copyInt64(n.CreatedAt)
	clone.DeletedAt = copyInt64(n.DeletedAt)
	if n.Message != nil {
		message := *n.Message
		clone.Message = &message
	}
	return clone
}

// ParseNoteID validates raw input and returns the numeric note id.
func ParseNoteID(rawInput string) (int64, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	id, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNoteID, trimmed)
	}
	return id, nil
}

// ValidateDeletedAt rejects negative timestamps and folds the legacy sentinel into nil.
func ValidateDeletedAt(deletedAt *int64) (*int64, error) {
	if deletedAt == nil {
		return nil, nil
	}
	if *deletedAt < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTimestamp, *deletedAt)
	}
	return normalizeDeletedAt(deletedAt), nil
}

func normalizeDeletedAt(deletedAt *int64) *int64 {
	if deletedAt == nil || *deletedAt == NeverDeleted {
		return nil
	}
	return copyInt64(deletedAt)
}

func copyInt64(value *int64) *int64 {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
