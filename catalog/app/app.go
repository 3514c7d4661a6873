package app

import (
	"context"
	"fmt"

	"github.com/Astemirdum/bookshelf-service/catalog/config"
	"github.com/Astemirdum/bookshelf-service/catalog/internal/handler"
	"github.com/Astemirdum/bookshelf-service/catalog/internal/repository"
	"github.com/Astemirdum/bookshelf-service/catalog/internal/service"
	"github.com/Astemirdum/bookshelf-service/catalog/migrations"
	"github.com/Astemirdum/bookshelf-service/pkg/auth"
	"github.com/Astemirdum/bookshelf-service/pkg/identity"
	"github.com/Astemirdum/bookshelf-service/pkg/kafka"
	"github.com/Astemirdum/bookshelf-service/pkg/logger"
	"github.com/Astemirdum/bookshelf-service/pkg/postgres"
	"github.com/Astemirdum/bookshelf-service/pkg/server"
	"go.uber.org/zap"
)

func Run(cfg *config.Config) error {
	log := logger.NewLogger(cfg.Log, "catalog")
	db, err := postgres.NewPostgresDB(context.Background(), &cfg.Database, migrations.Migrations)
	if err != nil {
		return fmt.Errorf("db init %v", err)
	}
	defer db.Close()

	repo, err := repository.NewRepository(db, log)
	if err != nil {
		return fmt.Errorf("repo %v", err)
	}

	var events service.Publisher
	if cfg.Kafka.Enable {
		if producer, err := kafka.NewAsyncProducer(cfg.Kafka); err != nil {
			log.Warn("kafka unavailable, book events disabled", zap.Error(err))
		} else {
			publisher := kafka.NewPublisher(producer, kafka.BooksTopic, log)
			defer publisher.Close()
			events = publisher
		}
	}
	svc := service.NewService(repo, events, log)

	authn := identity.NewAuthenticator(auth.NewTokenManager(cfg.Auth), identity.NewClient(cfg.Identity, log))
	h := handler.New(svc, authn, log)
	srv := server.NewServer(cfg.Server, h.NewRouter())
	return srv.Serve(log)
}
