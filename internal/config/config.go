package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains all runtime settings for the collaboration relay.
type Config struct {
	BindAddr         string        `env:"DUOMINT_BIND_ADDR" envDefault:":4001"`
	AllowedOrigin    string        `env:"DUOMINT_ALLOWED_ORIGIN"`
	AllowAnyOrigin   bool          `env:"DUOMINT_ALLOW_ANY_ORIGIN" envDefault:"false"`
	SessionExpiry    time.Duration `env:"DUOMINT_SESSION_EXPIRY" envDefault:"2h"`
	SweepInterval    time.Duration `env:"DUOMINT_SWEEP_INTERVAL" envDefault:"30s"`
	CompletionDelay  time.Duration `env:"DUOMINT_COMPLETION_DELAY" envDefault:"60s"`
	ShutdownTimeout  time.Duration `env:"DUOMINT_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	MetricsNamespace string        `env:"DUOMINT_METRICS_NAMESPACE" envDefault:"duomint"`
	LogLevel         string        `env:"DUOMINT_LOG_LEVEL" envDefault:"info"`
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.SessionExpiry < time.Minute {
		return Config{}, fmt.Errorf("DUOMINT_SESSION_EXPIRY must be at least 1m")
	}
	if cfg.SweepInterval < time.Second {
		return Config{}, fmt.Errorf("DUOMINT_SWEEP_INTERVAL must be at least 1s")
	}
	if cfg.CompletionDelay < time.Second {
		return Config{}, fmt.Errorf("DUOMINT_COMPLETION_DELAY must be at least 1s")
	}
	return cfg, nil
}
