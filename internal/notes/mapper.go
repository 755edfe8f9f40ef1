package notes

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/notevault/internal/storage"
)

var errMissingCipher = errors.New("cipher is required")

// Cipher seals and opens note text.
type Cipher interface {
	Encrypt(plaintext *string) (string, error)
	Decrypt(envelope *string) (string, error)
}

// ItemFailure names one record that could not be mapped.
type ItemFailure struct {
	UID int64
	Err error
}

// BatchError reports every item a list mapping could not convert.
type BatchError struct {
	Failures []ItemFailure
}

func (e *BatchError) Error() string {
	uids := make([]string, 0, len(e.Failures))
	for _, item := range e.Failures {
		uids = append(uids, fmt.Sprintf("%d", item.UID))
	}
	return fmt.Sprintf("%d of batch failed to map (uids: %s)", len(e.Failures), strings.Join(uids, ","))
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, item := range e.Failures {
		errs = append(errs, item.Err)
	}
	return errs
}

// UIDs lists the failed record ids in batch order.
func (e *BatchError) UIDs() []int64 {
	out := make([]int64, 0, len(e.Failures))
	for _, item := range e.Failures {
		out = append(out, item.UID)
	}
	return out
}

// Mapper converts between plaintext notes and encrypted records.
type Mapper struct {
	cipher Cipher
}

// NewMapper constructs a Mapper around cipher.
func NewMapper(cipher Cipher) (*Mapper, error) {
	if cipher == nil {
		return nil, errMissingCipher
	}
	return &Mapper{cipher: cipher}, nil
}

// ToStorage encrypts the note's message and copies the remaining fields.
func (m *Mapper) ToStorage(note Note) (storage.Record, error) {
	envelope, err := m.cipher.Encrypt(note.Message)
	if err != nil {
		return storage.Record{}, err
	}
	record := storage.Record{
		Content:   &envelope,
		IsPinned:  note.IsPinned,
		CreatedAt: copyInt64(note.CreatedAt),
		DeletedAt: normalizeDeletedAt(note.DeletedAt),
	}
	if note.ID != nil {
		record.UID = *note.ID
	}
	return record, nil
}

// ToDomain decrypts the record's content and copies the remaining fields.
func (m *Mapper) ToDomain(record storage.Record) (Note, error) {
	message, err := m.cipher.Decrypt(record.Content)
	if err != nil {
		return Note{}, err
	}
	uid := record.UID
	return Note{
		ID:        &uid,
		Message:   &message,
		IsPinned:  record.IsPinned,
		CreatedAt: copyInt64(record.CreatedAt),
		DeletedAt: normalizeDeletedAt(record.DeletedAt),
	}, nil
}

// ToDomainList maps every record it can. The returned *BatchError is nil when all succeed.
func (m *Mapper) ToDomainList(records []storage.Record) ([]Note, *BatchError) {
	notes := make([]Note, 0, len(records))
	var batch *BatchError
	for _, record := range records {
		note, err := m.ToDomain(record)
		if err != nil {
			if batch == nil {
				batch = &BatchError{}
			}
			batch.Failures = append(batch.Failures, ItemFailure{UID: record.UID, Err: err})
			continue
		}
		notes = append(notes, note)
	}
	return notes, batch
}

// ToStorageList maps every note it can. Failed items are reported by their ID, or 0 when unset.
func (m *Mapper) ToStorageList(notes []Note) ([]storage.Record, *BatchError) {
	records := make([]storage.Record, 0, len(notes))
	var batch *BatchError
	for _, note := range notes {
		record, err := m.ToStorage(note)
		if err != nil {
			if batch == nil {
				batch = &BatchError{}
			}
			var uid int64
			if note.ID != nil {
				uid = *note.ID
			}
			batch.Failures = append(batch.Failures, ItemFailure{UID: uid, Err: err})
			continue
		}
		records = append(records, record)
	}
	return records, batch
}
