package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// DefaultJWTSecret is only suitable for local development.
const DefaultJWTSecret = "change-me"

type Config struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	DatabaseURL     string        `envconfig:"DATABASE_URL"`
	JWTSecret       string        `envconfig:"JWT_SECRET" default:"change-me"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"INFO"`
	FanoutBuffer    int           `envconfig:"FANOUT_BUFFER" default:"100"`
	MaxMessageSize  int64         `envconfig:"MAX_MESSAGE_SIZE" default:"1024"`
	CookieMaxAge    time.Duration `envconfig:"COOKIE_MAX_AGE" default:"720h"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads an optional .env file, then the environment. Variables already
// set in the environment win over the file.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("processing environment: %w", err)
	}
	if cfg.FanoutBuffer < 1 {
		return Config{}, fmt.Errorf("FANOUT_BUFFER must be positive, got %d", cfg.FanoutBuffer)
	}
	if cfg.MaxMessageSize < 1 {
		return Config{}, fmt.Errorf("MAX_MESSAGE_SIZE must be positive, got %d", cfg.MaxMessageSize)
	}
	return cfg, nil
}

func (c Config) Addr() string {
	return "0.0.0.0:" + c.Port
}
