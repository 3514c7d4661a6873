package app

import (
	"context"
	"fmt"

	"github.com/Astemirdum/bookshelf-service/library/config"
	"github.com/Astemirdum/bookshelf-service/library/internal/handler"
	"github.com/Astemirdum/bookshelf-service/library/internal/repository"
	"github.com/Astemirdum/bookshelf-service/library/internal/service"
	"github.com/Astemirdum/bookshelf-service/library/migrations"
	"github.com/Astemirdum/bookshelf-service/pkg/auth"
	"github.com/Astemirdum/bookshelf-service/pkg/identity"
	"github.com/Astemirdum/bookshelf-service/pkg/logger"
	"github.com/Astemirdum/bookshelf-service/pkg/postgres"
	"github.com/Astemirdum/bookshelf-service/pkg/server"
)

func Run(cfg *config.Config) error {
	log := logger.NewLogger(cfg.Log, "library")
	db, err := postgres.NewPostgresDB(context.Background(), &cfg.Database, migrations.Migrations)
	if err != nil {
		return fmt.Errorf("db init %v", err)
	}
	defer db.Close()

	repo, err := repository.NewRepository(db, log)
	if err != nil {
		return fmt.Errorf("repo %v", err)
	}
	svc := service.NewService(repo, log)
	identityClient := identity.NewClient(cfg.Identity, log)

	authn := identity.NewAuthenticator(auth.NewTokenManager(cfg.Auth), identityClient)
	h := handler.New(svc, identityClient, authn, log)
	srv := server.NewServer(cfg.Server, h.NewRouter())
	return srv.Serve(log)
}
