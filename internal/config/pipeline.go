package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

type PipelineConfig struct {
	BlockSize      int `env:"AU_BLOCK_SIZE, default=8096"`
	BinaryCapacity int `env:"AU_BINARY_CAPACITY, default=16"`
	AudioCapacity  int `env:"AU_AUDIO_CAPACITY, default=16"`
}

func NewPipelineConfigFromEnv() (*PipelineConfig, error) {
	var cfg PipelineConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if cfg.BlockSize < 1 {
		return nil, fmt.Errorf("AU_BLOCK_SIZE must be positive, got %d", cfg.BlockSize)
	}
	if cfg.BinaryCapacity < 1 || cfg.AudioCapacity < 1 {
		return nil, fmt.Errorf("channel capacities must be positive, got binary=%d audio=%d", cfg.BinaryCapacity, cfg.AudioCapacity)
	}
	return &cfg, nil
}

type LogConfig struct {
	Level string `env:"AU_LOG_LEVEL, default=info"`
}

func NewLogConfigFromEnv() (*LogConfig, error) {
	var cfg LogConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if _, err := cfg.SlogLevel(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SlogLevel parses Level as one of debug, info, warn or error.
func (c *LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(c.Level))); err != nil {
		return 0, fmt.Errorf("invalid AU_LOG_LEVEL %q: %w", c.Level, err)
	}
	return level, nil
}
