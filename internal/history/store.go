// Package history persists translation records. Records are written once and
// never updated; they leave the store only through an explicit delete.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/snaplate/backend/internal/translate"
)

// Unavailable is shown for text fields that were never stored.
const Unavailable = "N/A"

// ErrStorage wraps every failure of the underlying storage engine.
var ErrStorage = errors.New("history storage failure")

// Record is one persisted translation. Nil text fields mean the value was
// never stored.
type Record struct {
	ID               uuid.UUID
	Timestamp        time.Time
	DetectedLanguage *string
	TranslatedText   *string
	OriginalText     *string
	ImageData        []byte
}

// NewRecord pairs a successful result with its image under a fresh id.
func NewRecord(res translate.Result, image []byte, now time.Time) Record {
	return Record{
		ID:               uuid.New(),
		Timestamp:        StoredTime(now),
		DetectedLanguage: ptr(res.DetectedLanguage),
		TranslatedText:   ptr(res.TranslatedText),
		OriginalText:     ptr(res.OriginalText),
		ImageData:        image,
	}
}

// StoredTime is t as every Store keeps it: UTC at microsecond precision,
// the resolution of the database column.
func StoredTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Result rebuilds the translation, substituting Unavailable for missing text.
func (r Record) Result() translate.Result {
	return translate.Result{
		DetectedLanguage: textOrUnavailable(r.DetectedLanguage),
		TranslatedText:   textOrUnavailable(r.TranslatedText),
		OriginalText:     textOrUnavailable(r.OriginalText),
	}
}

// Store is the storage capability used by the capture pipeline and the
// history projector. There is deliberately no update operation.
type Store interface {
	// Insert appends rec with its timestamp reduced to StoredTime. It fails
	// with ErrStorage if the write fails or rec.ID already exists.
	Insert(ctx context.Context, rec Record) error
	// ListAll returns every record, newest first.
	ListAll(ctx context.Context) ([]Record, error)
	// DeleteByID removes the record with id; an unknown id is a no-op.
	DeleteByID(ctx context.Context, id uuid.UUID) error
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

func ptr(s string) *string { return &s }

func textOrUnavailable(s *string) string {
	if s == nil {
		return Unavailable
	}
	return *s
}
