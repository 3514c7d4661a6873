package config

import (
	"os"
	"strings"
	"testing"

	"github.com/Astemirdum/bookshelf-service/pkg/auth"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("DB_NAME", "")
	t.Setenv("CATALOG_DB_NAME", "")
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET") //nolint:errcheck

	_, err := load()
	require.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "change-me")
	_, err = load()
	require.ErrorIs(t, err, auth.ErrWeakSecret)

	secret := strings.Repeat("s", auth.MinSecretLen)
	t.Setenv("JWT_SECRET", secret)
	cfg, err := load()
	require.NoError(t, err)
	require.Equal(t, secret, cfg.Auth.Secret)
	require.Equal(t, "catalog", cfg.Database.NameDB)

	t.Setenv("CATALOG_DB_NAME", "bookshelf_catalog")
	cfg, err = load()
	require.NoError(t, err)
	require.Equal(t, "bookshelf_catalog", cfg.Database.NameDB)
}
