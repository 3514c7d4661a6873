package app

import (
	"context"
	"fmt"

	"github.com/Astemirdum/bookshelf-service/blog/config"
	"github.com/Astemirdum/bookshelf-service/blog/internal/handler"
	"github.com/Astemirdum/bookshelf-service/blog/internal/repository"
	"github.com/Astemirdum/bookshelf-service/blog/internal/service"
	"github.com/Astemirdum/bookshelf-service/blog/internal/session"
	"github.com/Astemirdum/bookshelf-service/blog/migrations"
	"github.com/Astemirdum/bookshelf-service/pkg/identity"
	"github.com/Astemirdum/bookshelf-service/pkg/logger"
	"github.com/Astemirdum/bookshelf-service/pkg/postgres"
	"github.com/Astemirdum/bookshelf-service/pkg/redis"
	"github.com/Astemirdum/bookshelf-service/pkg/server"
)

func Run(cfg *config.Config) error {
	log := logger.NewLogger(cfg.Log, "blog")
	db, err := postgres.NewPostgresDB(context.Background(), &cfg.Database, migrations.Migrations)
	if err != nil {
		return fmt.Errorf("db init %v", err)
	}
	defer db.Close()

	repo, err := repository.NewRepository(db, log)
	if err != nil {
		return fmt.Errorf("repo %v", err)
	}
	rdb, err := redis.NewClient(context.Background(), cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis %v", err)
	}
	defer rdb.Close()

	svc := service.NewService(repo, log)
	identityClient := identity.NewClient(cfg.Identity, log)

	h := handler.New(svc, identityClient, session.NewStore(rdb), log)
	srv := server.NewServer(cfg.Server, h.NewRouter())
	return srv.Serve(log)
}
