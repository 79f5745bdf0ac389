package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/snaplate/backend/internal/auth"
	"github.com/snaplate/backend/internal/db/migrations"
	"github.com/snaplate/backend/internal/db/models"
)

// Database owns the SQLite handle. It is opened once on start-up and closed
// on shutdown; stores receive it explicitly.
type Database struct {
	db *bun.DB
}

// Open creates the database file if needed and applies pending migrations.
func Open(ctx context.Context, path string, debug bool) (*Database, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("make db dir: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	bdb := bun.NewDB(sqlDB, sqlitedialect.New())
	if debug {
		bdb.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if _, err := migrations.Run(ctx, bdb); err != nil {
		bdb.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Database{db: bdb}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// DB returns the underlying bun handle for use by stores.
func (d *Database) DB() *bun.DB {
	return d.db
}

// EnsureAdmin creates the admin user when no admin exists yet.
func (d *Database) EnsureAdmin(ctx context.Context, username, password string) error {
	count, err := d.db.NewSelect().Model((*models.User)(nil)).Where("role = ?", "admin").Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = d.db.NewInsert().Model(&models.User{
		Username: username,
		Password: hash,
		Role:     "admin",
	}).Exec(ctx)
	return err
}

func (d *Database) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	u := new(models.User)
	if err := d.db.NewSelect().Model(u).Where("username = ?", username).Scan(ctx); err != nil {
		return nil, err
	}
	return u, nil
}

func (d *Database) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	u := new(models.User)
	if err := d.db.NewSelect().Model(u).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}
	return u, nil
}

// GetSetting returns a setting value by key, or defaultVal if not found
func (d *Database) GetSetting(ctx context.Context, key, defaultVal string) string {
	s := new(models.Setting)
	err := d.db.NewSelect().Model(s).Where("key = ?", key).Scan(ctx)
	if err != nil || s.Value == "" {
		return defaultVal
	}
	return s.Value
}

// SetSetting upserts a setting
func (d *Database) SetSetting(ctx context.Context, key, value string) error {
	_, err := d.db.NewInsert().
		Model(&models.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// GetAllSettings returns all settings as a map
func (d *Database) GetAllSettings(ctx context.Context) (map[string]string, error) {
	var rows []models.Setting
	if err := d.db.NewSelect().Model(&rows).Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	result := make(map[string]string, len(rows))
	for _, s := range rows {
		result[s.Key] = s.Value
	}
	return result, nil
}
