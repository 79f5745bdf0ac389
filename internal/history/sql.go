package history

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/snaplate/backend/internal/db/models"
)

// SQLStore keeps records in the translation_records table.
type SQLStore struct {
	db bun.IDB
}

func NewSQLStore(db bun.IDB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Insert(ctx context.Context, rec Record) error {
	row := toRow(rec)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return storageErr("insert "+rec.ID.String(), err)
	}
	return nil
}

// ListAll reads inside one transaction so a concurrent insert never yields a
// partial list.
func (s *SQLStore) ListAll(ctx context.Context) ([]Record, error) {
	var rows []models.TranslationRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().
			Model(&rows).
			OrderExpr("tr.timestamp DESC, tr.rowid DESC").
			Scan(ctx)
	})
	if err != nil {
		return nil, storageErr("list", err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, fromRow(row))
	}
	return records, nil
}

func (s *SQLStore) DeleteByID(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.NewDelete().
		Model((*models.TranslationRecord)(nil)).
		Where("id = ?", id.String()).
		Exec(ctx)
	if err != nil {
		return storageErr("delete "+id.String(), err)
	}
	return nil
}

func toRow(rec Record) models.TranslationRecord {
	return models.TranslationRecord{
		ID:               rec.ID,
		Timestamp:        StoredTime(rec.Timestamp),
		DetectedLanguage: rec.DetectedLanguage,
		TranslatedText:   rec.TranslatedText,
		OriginalText:     rec.OriginalText,
		ImageData:        rec.ImageData,
	}
}

func fromRow(row models.TranslationRecord) Record {
	return Record{
		ID:               row.ID,
		Timestamp:        StoredTime(row.Timestamp),
		DetectedLanguage: row.DetectedLanguage,
		TranslatedText:   row.TranslatedText,
		OriginalText:     row.OriginalText,
		ImageData:        row.ImageData,
	}
}
