package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TranslationRecord is the persisted row of one successful translation.
// Text columns are nullable; rows are never updated in place.
type TranslationRecord struct {
	bun.BaseModel `bun:"table:translation_records,alias:tr"`

	ID               uuid.UUID `bun:"id,pk,type:varchar(36)"`
	Timestamp        time.Time `bun:"timestamp,notnull"`
	DetectedLanguage *string   `bun:"detected_language"`
	TranslatedText   *string   `bun:"translated_text"`
	OriginalText     *string   `bun:"original_text"`
	ImageData        []byte    `bun:"image_data,type:blob,nullzero"`
}
