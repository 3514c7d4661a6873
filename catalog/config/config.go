package config

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/Astemirdum/bookshelf-service/pkg/auth"
	"github.com/Astemirdum/bookshelf-service/pkg/identity"
	"github.com/Astemirdum/bookshelf-service/pkg/kafka"
	"github.com/Astemirdum/bookshelf-service/pkg/logger"
	"github.com/Astemirdum/bookshelf-service/pkg/postgres"
	"github.com/Astemirdum/bookshelf-service/pkg/server"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server   server.HTTPServer `yaml:"server"`
	Database postgres.DB       `yaml:"db"`
	Auth     auth.Config       `json:"-"`
	Identity identity.Config   `yaml:"identity"`
	Kafka    kafka.Config      `yaml:"kafka"`
	Log      logger.Log        `yaml:"log"`
}

const serviceName = "catalog"

var (
	once sync.Once
	cfg  *Config
)

// NewConfig reads config from environment. Options set values the
// environment may still override.
func NewConfig(ops ...Option) *Config {
	once.Do(func() {
		config, err := load(ops...)
		if err != nil {
			log.Fatal("NewConfig ", err)
		}
		cfg = config
		printConfig(cfg)
	})

	return cfg
}

func load(ops ...Option) (*Config, error) {
	var config Config
	for _, op := range ops {
		op(&config)
	}
	if err := envconfig.Process("", &config); err != nil {
		return nil, err
	}
	if config.Database.NameDB == "" {
		config.Database = postgres.ServiceDB(config.Database, serviceName)
	}
	if err := config.Auth.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func printConfig(cfg *Config) {
	jscfg, _ := json.MarshalIndent(cfg, "", "	") //nolint:errcheck
	fmt.Println(string(jscfg))
}
