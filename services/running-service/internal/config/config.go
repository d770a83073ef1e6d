package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

// RunningServiceConfig holds the configuration of the running service.
type RunningServiceConfig struct {
	ServiceName string `env:"RUNNING_SERVICE_NAME"      envDefault:"running-service"`
	ServiceHost string `env:"RUNNING_SERVICE_HOST"      envDefault:"localhost"`
	HTTPAddr    string `env:"RUNNING_SERVICE_HTTP_ADDR" envDefault:":8080"`
	GRPCAddr    string `env:"RUNNING_SERVICE_GRPC_ADDR" envDefault:":9090"`
	LogLevel    string `env:"LOG_LEVEL"                 envDefault:"info"`

	Mongo  MongoConfig  `envPrefix:"MONGO_"`
	Redis  RedisConfig  `envPrefix:"REDIS_"`
	Consul ConsulConfig `envPrefix:"CONSUL_"`
	Token  TokenConfig  `envPrefix:"TOKEN_"`
}

type MongoConfig struct {
	URI              string        `env:"URI"               envDefault:"mongodb://localhost:27017"`
	Database         string        `env:"DATABASE"          envDefault:"running"`
	OperationTimeout time.Duration `env:"OPERATION_TIMEOUT" envDefault:"5s"`
}

// RedisConfig configures the token blacklist store. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// ConsulConfig configures service registration. An empty Addr disables it.
type ConsulConfig struct {
	Addr                string        `env:"ADDR"`
	HealthCheckInterval time.Duration `env:"HEALTH_CHECK_INTERVAL" envDefault:"10s"`
}

type TokenConfig struct {
	AccessTokenSecret string `env:"ACCESS_TOKEN_SECRET"`
	Issuer            string `env:"ISSUER"   envDefault:"running-tracker"`
	Audience          string `env:"AUDIENCE" envDefault:"running-tracker"`
}

// NewRunningServiceConfig parses the configuration from environment variables
// and terminates the process when it is invalid.
func NewRunningServiceConfig(logger *zerolog.Logger) *RunningServiceConfig {
	cfg, err := LoadRunningServiceConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load running service configuration")
	}

	return cfg
}

// LoadRunningServiceConfig parses and validates the configuration from environment variables.
func LoadRunningServiceConfig() (*RunningServiceConfig, error) {
	cfg, err := env.ParseAs[RunningServiceConfig]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *RunningServiceConfig) validate() error {
	if c.Mongo.URI == "" {
		return errors.New("missing MONGO_URI environment variable")
	}
	if c.Mongo.Database == "" {
		return errors.New("missing MONGO_DATABASE environment variable")
	}
	if c.Mongo.OperationTimeout <= 0 {
		return errors.New("MONGO_OPERATION_TIMEOUT must be positive")
	}
	if c.Token.AccessTokenSecret == "" {
		return errors.New("missing TOKEN_ACCESS_TOKEN_SECRET environment variable")
	}
	if c.HTTPAddr == "" {
		return errors.New("missing RUNNING_SERVICE_HTTP_ADDR environment variable")
	}
	if c.Consul.Addr != "" && c.GRPCAddr == "" {
		return errors.New("RUNNING_SERVICE_GRPC_ADDR is required when CONSUL_ADDR is set")
	}

	return nil
}
