package config

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/Astemirdum/bookshelf-service/pkg/identity"
	"github.com/Astemirdum/bookshelf-service/pkg/logger"
	"github.com/Astemirdum/bookshelf-service/pkg/postgres"
	"github.com/Astemirdum/bookshelf-service/pkg/redis"
	"github.com/Astemirdum/bookshelf-service/pkg/server"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server   server.HTTPServer `yaml:"server"`
	Database postgres.DB       `yaml:"db"`
	Identity identity.Config   `yaml:"identity"`
	Redis    redis.Config      `yaml:"redis"`
	Log      logger.Log        `yaml:"log"`
}

const serviceName = "blog"

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
	return &config, nil
}

func printConfig(cfg *Config) {
	jscfg, _ := json.MarshalIndent(cfg, "", "	") //nolint:errcheck
	fmt.Println(string(jscfg))
}
