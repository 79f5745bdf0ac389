package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snaplate/backend/internal/auth"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	d, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestOpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "again.db")

	d, err := Open(ctx, path, false)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	d, err = Open(ctx, path, false)
	require.NoError(t, err)
	require.NoError(t, d.Close())
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	require.NoError(t, d.EnsureAdmin(ctx, "admin", "pw"))
	require.NoError(t, d.EnsureAdmin(ctx, "admin2", "pw2"), "second call is a no-op")

	u, err := d.GetUserByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", u.Role)
	assert.True(t, auth.CheckPassword("pw", u.Password))

	byID, err := d.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin", byID.Username)

	_, err = d.GetUserByUsername(ctx, "admin2")
	assert.Error(t, err)
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	assert.Equal(t, "English", d.GetSetting(ctx, "target_language", "English"))

	require.NoError(t, d.SetSetting(ctx, "target_language", "French"))
	require.NoError(t, d.SetSetting(ctx, "target_language", "German"))
	assert.Equal(t, "German", d.GetSetting(ctx, "target_language", "English"))

	all, err := d.GetAllSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"target_language": "German"}, all)
}
