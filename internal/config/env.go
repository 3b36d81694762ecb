package config

import (
	"os"
	"strconv"
)

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv(cfg *Config) {
	if port := os.Getenv("REQTUNE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if port := os.Getenv("REQTUNE_METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.MetricsPort = p
		}
	}

	if logLevel := os.Getenv("REQTUNE_LOG_LEVEL"); logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}

	if floor := os.Getenv("REQTUNE_CONFIDENCE_FLOOR"); floor != "" {
		if f, err := strconv.ParseFloat(floor, 64); err == nil {
			cfg.Engine.ConfidenceFloor = f
		}
	}

	if dsn := os.Getenv("REQTUNE_DATABASE_DSN"); dsn != "" {
		cfg.Database.Enabled = true
		cfg.Database.DSN = dsn
	}

	if schedule := os.Getenv("REQTUNE_TRAINER_SCHEDULE"); schedule != "" {
		cfg.Trainer.Schedule = schedule
	}
}
