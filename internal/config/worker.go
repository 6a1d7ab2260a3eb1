package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type WorkerConfig struct {
	// Consumer names this worker in the Redis consumer group. Defaults to the
	// hostname.
	Consumer string        `env:"WORKER_CONSUMER"`
	Block    time.Duration `env:"WORKER_BLOCK, default=5s"`
	Batch    int64         `env:"WORKER_BATCH, default=4"`

	// MetricsAddr is where /metrics is served. Empty disables the endpoint.
	MetricsAddr string `env:"WORKER_METRICS_ADDR, default=:9090"`
}

func NewWorkerConfigFromEnv() (*WorkerConfig, error) {
	var cfg WorkerConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if cfg.Consumer == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("failed to get hostname: %w", err)
		}
		cfg.Consumer = hostname
	}
	if cfg.Batch < 1 {
		return nil, fmt.Errorf("WORKER_BATCH must be positive, got %d", cfg.Batch)
	}
	return &cfg, nil
}
