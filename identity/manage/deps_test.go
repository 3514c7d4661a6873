package manage

import (
	"testing"

	"github.com/Astemirdum/bookshelf-service/pkg/postgres"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMigrationTargets(t *testing.T) {
	t.Setenv("BLOG_DB_NAME", "")
	t.Setenv("CATALOG_DB_NAME", "")
	t.Setenv("IDENTITY_DB_NAME", "")
	t.Setenv("LIBRARY_DB_NAME", "bookshelf_library")
	shared := postgres.DB{Host: "db", NameDB: "bookshelf"}

	names := make(map[string]string)
	tables := make(map[string]string)
	for _, svc := range NewDeps(shared, zap.NewNop()).Services {
		names[svc] = dbFor(shared, svc, "").NameDB
		tables[svc] = migrationSets[svc].Table()
	}

	require.Equal(t, map[string]string{
		"blog":     "blog",
		"catalog":  "catalog",
		"identity": "identity",
		"library":  "bookshelf_library",
	}, names)
	require.Equal(t, map[string]string{
		"blog":     "blog_goose_db_version",
		"catalog":  "catalog_goose_db_version",
		"identity": "identity_goose_db_version",
		"library":  "library_goose_db_version",
	}, tables)

	cfg := dbFor(shared, "catalog", "catalog_test")
	require.Equal(t, "catalog_test", cfg.NameDB)
	require.Equal(t, "db", cfg.Host)
}
