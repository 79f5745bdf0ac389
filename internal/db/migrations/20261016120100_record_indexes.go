package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx,
			"CREATE INDEX IF NOT EXISTS idx_translation_records_timestamp ON translation_records(timestamp DESC)")
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx, "DROP INDEX IF EXISTS idx_translation_records_timestamp")
		return err
	})
}
