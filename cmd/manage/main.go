package main

import (
	"context"
	"fmt"
	stdLog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Astemirdum/bookshelf-service/identity/manage"
	"github.com/Astemirdum/bookshelf-service/pkg/logger"
	"github.com/Astemirdum/bookshelf-service/pkg/postgres"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
)

type config struct {
	Database postgres.DB
	Log      logger.Log
}

func main() {
	if err := godotenv.Load(); err != nil {
		stdLog.Println("no .env file, reading config from environment")
	}
	cfg := config{Log: logger.Log{LogLevel: zapcore.WarnLevel}}
	if err := envconfig.Process("", &cfg); err != nil {
		stdLog.Fatal("config ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := manage.NewRootCmd(manage.NewDeps(cfg.Database, logger.NewLogger(cfg.Log, "manage")))
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
