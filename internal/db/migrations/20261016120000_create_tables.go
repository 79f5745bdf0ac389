package migrations

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/snaplate/backend/internal/db/models"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		modelsList := []interface{}{
			(*models.User)(nil),
			(*models.Setting)(nil),
			(*models.TranslationRecord)(nil),
		}
		for _, model := range modelsList {
			if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		modelsList := []interface{}{
			(*models.TranslationRecord)(nil),
			(*models.Setting)(nil),
			(*models.User)(nil),
		}
		for _, model := range modelsList {
			if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}
