package app

import (
	"context"
	"fmt"

	"github.com/Astemirdum/bookshelf-service/identity/config"
	"github.com/Astemirdum/bookshelf-service/identity/internal/handler"
	"github.com/Astemirdum/bookshelf-service/identity/internal/repository"
	"github.com/Astemirdum/bookshelf-service/identity/internal/service"
	"github.com/Astemirdum/bookshelf-service/identity/migrations"
	"github.com/Astemirdum/bookshelf-service/pkg/auth"
	"github.com/Astemirdum/bookshelf-service/pkg/logger"
	"github.com/Astemirdum/bookshelf-service/pkg/minio"
	"github.com/Astemirdum/bookshelf-service/pkg/postgres"
	"github.com/Astemirdum/bookshelf-service/pkg/server"
	"go.uber.org/zap"
)

func Run(cfg *config.Config) error {
	log := logger.NewLogger(cfg.Log, "identity")
	db, err := postgres.NewPostgresDB(context.Background(), &cfg.Database, migrations.Migrations)
	if err != nil {
		return fmt.Errorf("db init %v", err)
	}
	defer db.Close()

	repo, err := repository.NewRepository(db, log)
	if err != nil {
		return fmt.Errorf("repo %v", err)
	}

	var photos service.PhotoStore
	if store, err := minio.NewStore(context.Background(), cfg.Minio); err != nil {
		log.Warn("minio unavailable, profile photos disabled", zap.Error(err))
	} else {
		photos = store
	}
	tokens := auth.NewTokenManager(cfg.Auth)
	svc := service.NewService(repo, tokens, photos, log)

	h := handler.New(svc, tokens, log)
	srv := server.NewServer(cfg.Server, h.NewRouter())
	return srv.Serve(log)
}
