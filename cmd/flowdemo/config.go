package main

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the demo server settings, read from the environment and an
// optional .env file in the working directory.
type Config struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	SessionSecret   string        `env:"SESSION_SECRET,required"`
	SessionMaxAge   time.Duration `env:"SESSION_MAX_AGE" envDefault:"24h"`
	RedisAddr       string        `env:"REDIS_ADDR"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	StepTimeout     time.Duration `env:"STEP_TIMEOUT" envDefault:"5s"`
	MaxBodySize     int64         `env:"MAX_BODY_SIZE" envDefault:"1048576"`
	ThrottleRate    int           `env:"THROTTLE_RATE" envDefault:"50"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	TrustProxy      bool          `env:"TRUST_PROXY" envDefault:"false"`
	Debug           bool          `env:"DEBUG" envDefault:"false"`
}

// loadConfig reads .env when present, then parses the environment.
func loadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
