package manage

import (
	"context"
	"fmt"
	"os"
	"strings"

	blogMigrations "github.com/Astemirdum/bookshelf-service/blog/migrations"
	catalogMigrations "github.com/Astemirdum/bookshelf-service/catalog/migrations"
	"github.com/Astemirdum/bookshelf-service/identity/internal/repository"
	"github.com/Astemirdum/bookshelf-service/identity/internal/service"
	identityMigrations "github.com/Astemirdum/bookshelf-service/identity/migrations"
	libraryMigrations "github.com/Astemirdum/bookshelf-service/library/migrations"
	"github.com/Astemirdum/bookshelf-service/pkg/auth"
	"github.com/Astemirdum/bookshelf-service/pkg/postgres"
	"go.uber.org/zap"
	"golang.org/x/term"
)

const identityService = "identity"

var migrationSets = map[string]postgres.Migrations{
	identityService: identityMigrations.Migrations,
	"catalog":       catalogMigrations.Migrations,
	"library":       libraryMigrations.Migrations,
	"blog":          blogMigrations.Migrations,
}

// dbFor picks the database a service's migrations run in. The shared
// DB_NAME is ignored so that one environment can serve every service.
func dbFor(db postgres.DB, svc, override string) postgres.DB {
	cfg := postgres.ServiceDB(db, svc)
	if override != "" {
		cfg.NameDB = override
	}
	return cfg
}

// NewDeps wires the commands to Postgres. Every service keeps its own
// database, named by --db, <SERVICE>_DB_NAME or the service name.
func NewDeps(db postgres.DB, log *zap.Logger) Deps {
	return Deps{
		Services: []string{"blog", "catalog", identityService, "library"},
		Migrate: func(ctx context.Context, svc, dbName string) error {
			cfg := dbFor(db, svc, dbName)
			pool, err := postgres.NewPostgresDB(ctx, &cfg, migrationSets[svc])
			if err != nil {
				return err
			}
			pool.Close()
			return nil
		},
		OpenUsers: func(ctx context.Context) (UserAdmin, func(), error) {
			cfg := dbFor(db, identityService, "")
			pool, err := postgres.NewPostgresDB(ctx, &cfg, identityMigrations.Migrations)
			if err != nil {
				return nil, nil, err
			}
			repo, err := repository.NewRepository(pool, log)
			if err != nil {
				pool.Close()
				return nil, nil, err
			}
			svc := service.NewService(repo, auth.NewTokenManager(auth.Config{}), nil, log)
			return svc, pool.Close, nil
		},
		ReadPassword: readPassword,
	}
}

func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
