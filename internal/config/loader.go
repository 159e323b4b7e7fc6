package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError describes a configuration failure with the stage it occurred in
// so startup logs point at the right layer (env parsing vs validation).
type ConfigError struct {
	Stage string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Stage, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load builds the Config from the process environment. A .env file, if
// present, seeds the environment first; real environment variables win.
// Validation failures are fatal to the caller: the service never runs with a
// missing webhook secret or database URL.
func Load() (*Config, error) {
	// All timestamp comparison in the event pipeline assumes UTC.
	time.Local = time.UTC

	// Best-effort: absent .env is the normal case outside local dev.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{Stage: "env", Err: err}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{Stage: "validation", Err: err}
	}

	return &cfg, nil
}
