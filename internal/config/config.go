package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all service configuration.
type Config struct {
	Pool struct {
		Owner        string `yaml:"owner"`
		Treasury     string `yaml:"treasury"`
		RewardWindow int64  `yaml:"reward_window_seconds"`
		// Per-symbol APR in basis points, keyed by coin symbol.
		AprBps map[string]uint16 `yaml:"apr_bps"`
		// Optional external token contracts, keyed by coin symbol.
		TokenAddresses map[string]string `yaml:"token_addresses"`
	} `yaml:"pool"`

	Farm struct {
		StartTime     int64  `yaml:"start_time"`
		Duration      int64  `yaml:"duration_seconds"`
		TotalEmission string `yaml:"total_emission"`
		BasePrice     uint64 `yaml:"base_price"`
		GrowthFactor  uint64 `yaml:"growth_factor"`
		TierSize      string `yaml:"tier_size"`
	} `yaml:"farm"`

	Schedule struct {
		AccrualCron  string `yaml:"accrual_cron"`
		PotEpochCron string `yaml:"pot_epoch_cron"`
		SnapshotCron string `yaml:"snapshot_cron"`
	} `yaml:"schedule"`

	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`

	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`

	Server struct {
		GRPCAddr    string `yaml:"grpc_addr"`
		HTTPAddr    string `yaml:"http_addr"`
		MetricsAddr string `yaml:"metrics_addr"`
	} `yaml:"server"`

	Channels struct {
		PersistBuffer    int `yaml:"persist_buffer"`
		ProjectionBuffer int `yaml:"projection_buffer"`
		EffectBuffer     int `yaml:"effect_buffer"`
		CommandBuffer    int `yaml:"command_buffer"`
	} `yaml:"channels"`
}

// Load reads config from a YAML file, then applies environment
// variable overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("STAKE_POOL_OWNER"); v != "" {
		cfg.Pool.Owner = v
	}
	if v := os.Getenv("STAKE_POOL_TREASURY"); v != "" {
		cfg.Pool.Treasury = v
	}
	if v := os.Getenv("STAKE_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("STAKE_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("STAKE_GRPC_ADDR"); v != "" {
		cfg.Server.GRPCAddr = v
	}
	if v := os.Getenv("STAKE_HTTP_ADDR"); v != "" {
		cfg.Server.HTTPAddr = v
	}
	if v := os.Getenv("STAKE_METRICS_ADDR"); v != "" {
		cfg.Server.MetricsAddr = v
	}
	if v := os.Getenv("STAKE_ACCRUAL_CRON"); v != "" {
		cfg.Schedule.AccrualCron = v
	}

	// Defaults
	if cfg.Pool.RewardWindow == 0 {
		cfg.Pool.RewardWindow = 86_400
	}
	if cfg.Farm.BasePrice == 0 {
		cfg.Farm.BasePrice = 25
	}
	if cfg.Farm.GrowthFactor == 0 {
		cfg.Farm.GrowthFactor = 13
	}
	if cfg.Farm.TierSize == "" {
		cfg.Farm.TierSize = "20000000"
	}
	if cfg.Farm.TotalEmission == "" {
		cfg.Farm.TotalEmission = "0"
	}
	if cfg.Schedule.AccrualCron == "" {
		cfg.Schedule.AccrualCron = "0 0 * * * *"
	}
	if cfg.Schedule.PotEpochCron == "" {
		cfg.Schedule.PotEpochCron = "0 0 0 * * *"
	}
	if cfg.Schedule.SnapshotCron == "" {
		cfg.Schedule.SnapshotCron = "0 */5 * * * *"
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.Server.GRPCAddr == "" {
		cfg.Server.GRPCAddr = ":9090"
	}
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = ":8080"
	}
	if cfg.Server.MetricsAddr == "" {
		cfg.Server.MetricsAddr = ":9100"
	}
	if cfg.Channels.PersistBuffer == 0 {
		cfg.Channels.PersistBuffer = 1024
	}
	if cfg.Channels.ProjectionBuffer == 0 {
		cfg.Channels.ProjectionBuffer = 4096
	}
	if cfg.Channels.EffectBuffer == 0 {
		cfg.Channels.EffectBuffer = 1024
	}
	if cfg.Channels.CommandBuffer == 0 {
		cfg.Channels.CommandBuffer = 1024
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Pool.Owner == "" {
		return fmt.Errorf("pool.owner is required")
	}
	if c.Pool.Treasury == "" {
		return fmt.Errorf("pool.treasury is required")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Pool.RewardWindow <= 0 {
		return fmt.Errorf("pool.reward_window_seconds must be positive")
	}
	return nil
}
