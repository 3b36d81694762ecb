package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Engine     EngineConfig     `yaml:"engine"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	Strategies StrategiesConfig `yaml:"strategies"`
	Trainer    TrainerConfig    `yaml:"trainer"`
	Health     HealthConfig     `yaml:"health"`
	Database   DatabaseConfig   `yaml:"database"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	MetricsPort     int           `yaml:"metrics_port"`
	LogLevel        string        `yaml:"log_level"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type EngineConfig struct {
	ConfidenceFloor float64       `yaml:"confidence_floor"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"`
	AnalysisRate    float64       `yaml:"analysis_rate"`
	AnalysisBurst   int           `yaml:"analysis_burst"`
}

type AnalysisConfig struct {
	MaxHistory     int     `yaml:"max_history"`
	MaxPoints      int     `yaml:"max_points"`
	EMAAlpha       float64 `yaml:"ema_alpha"`
	MaxConnections int     `yaml:"max_connections"`
}

type BreakerConfig struct {
	BaseThreshold     int           `yaml:"base_threshold"`
	LoadSensitivity   float64       `yaml:"load_sensitivity"`
	SuccessThreshold  int           `yaml:"success_threshold"`
	BreakDuration     time.Duration `yaml:"break_duration"`
	MaxHalfOpenProbes int           `yaml:"max_half_open_probes"`
}

type StrategiesConfig struct {
	MinHitRate     float64       `yaml:"min_hit_rate"`
	MinAccessCount int64         `yaml:"min_access_count"`
	MinBatch       int           `yaml:"min_batch"`
	MaxBatch       int           `yaml:"max_batch"`
	BatchWindow    time.Duration `yaml:"batch_window"`
	MinSamples     int           `yaml:"min_samples"`
	MaxLog         int           `yaml:"max_log"`
}

type TrainerConfig struct {
	Schedule    string  `yaml:"schedule"`
	MinSamples  int     `yaml:"min_samples"`
	MaxSamples  int     `yaml:"max_samples"`
	MinAccuracy float64 `yaml:"min_accuracy"`
	MinF1       float64 `yaml:"min_f1"`
}

type HealthConfig struct {
	PerformanceWeight float64 `yaml:"performance_weight"`
	ReliabilityWeight float64 `yaml:"reliability_weight"`
	ResourceWeight    float64 `yaml:"resource_weight"`
	FreshnessWeight   float64 `yaml:"freshness_weight"`
}

type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// Default returns the production defaults applied before file and
// environment overrides
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			MetricsPort:     9090,
			LogLevel:        "info",
			ShutdownTimeout: 30 * time.Second,
		},
		Engine: EngineConfig{
			ConfidenceFloor: 0.3,
			CacheTTL:        30 * time.Second,
			MaxRetries:      2,
			RetryBaseDelay:  10 * time.Millisecond,
			AnalysisRate:    50,
			AnalysisBurst:   100,
		},
		Analysis: AnalysisConfig{
			MaxHistory:     200,
			MaxPoints:      500,
			EMAAlpha:       0.3,
			MaxConnections: 10000,
		},
		Breaker: BreakerConfig{
			BaseThreshold:     5,
			LoadSensitivity:   0.5,
			SuccessThreshold:  3,
			BreakDuration:     30 * time.Second,
			MaxHalfOpenProbes: 3,
		},
		Strategies: StrategiesConfig{
			MinHitRate:     0.3,
			MinAccessCount: 10,
			MinBatch:       2,
			MaxBatch:       100,
			BatchWindow:    50 * time.Millisecond,
			MinSamples:     2,
			MaxLog:         1000,
		},
		Trainer: TrainerConfig{
			Schedule:    "*/15 * * * *",
			MinSamples:  20,
			MaxSamples:  5000,
			MinAccuracy: 0.6,
			MinF1:       0.5,
		},
		Health: HealthConfig{
			PerformanceWeight: 0.35,
			ReliabilityWeight: 0.35,
			ResourceWeight:    0.15,
			FreshnessWeight:   0.15,
		},
		Database: DatabaseConfig{Enabled: false},
	}
}

// Load reads a YAML file over the defaults, then applies environment
// overrides. A missing path is not an error: defaults plus environment
// apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	LoadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Server.Port)
	}
	if c.Engine.ConfidenceFloor < 0 || c.Engine.ConfidenceFloor > 1 {
		return fmt.Errorf("config: confidence floor %v outside [0,1]", c.Engine.ConfidenceFloor)
	}
	if c.Breaker.BaseThreshold <= 0 {
		return fmt.Errorf("config: breaker base threshold must be positive")
	}
	if c.Breaker.LoadSensitivity < 0 || c.Breaker.LoadSensitivity > 1 {
		return fmt.Errorf("config: load sensitivity %v outside [0,1]", c.Breaker.LoadSensitivity)
	}
	if c.Strategies.MaxBatch < c.Strategies.MinBatch {
		return fmt.Errorf("config: max batch %d below min batch %d",
			c.Strategies.MaxBatch, c.Strategies.MinBatch)
	}

	sum := c.Health.PerformanceWeight + c.Health.ReliabilityWeight +
		c.Health.ResourceWeight + c.Health.FreshnessWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("config: health weights sum to %v, want 1.0", sum)
	}

	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("config: database enabled without dsn")
	}
	return nil
}
