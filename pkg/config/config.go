package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime settings for the API server. Values come from the
// environment with sensible defaults so the binary runs without any setup.
type Config struct {
	Port          string        `envconfig:"PORT" default:"8080"`
	Env           string        `envconfig:"ENV" default:"development"`
	Debug         bool          `envconfig:"DEBUG" default:"false"`
	JWTSecret     string        `envconfig:"JWT_SECRET" default:"escrow-dev-secret"`
	DatabasePath  string        `envconfig:"DATABASE_PATH" default:"escrow.db"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1h"`
	EscrowWindow  time.Duration `envconfig:"ESCROW_WINDOW" default:"24h"`
}

// Load reads configuration from the environment, honouring a local .env file
// if one exists.
func Load() (*Config, error) {
	// Missing .env is fine, the environment may already be populated
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
