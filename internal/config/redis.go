package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, required"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB, default=0"`

	// JobStream is the stream conversion jobs are added to and read from.
	JobStream     string `env:"REDIS_JOB_STREAM, default=conversion_jobs"`
	ConsumerGroup string `env:"REDIS_CONSUMER_GROUP, default=conversion_workers"`
}

func NewRedisConfigFromEnv() (*RedisConfig, error) {
	var cfg RedisConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}
	if cfg.JobStream == "" || cfg.ConsumerGroup == "" {
		return nil, fmt.Errorf("REDIS_JOB_STREAM and REDIS_CONSUMER_GROUP must not be empty")
	}
	return &cfg, nil
}
