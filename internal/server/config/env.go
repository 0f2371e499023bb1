package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// parseEnv overlays the OKAERI_* environment variables that are set.
func parseEnv(config *Config) {
	if err := env.Parse(config); err != nil {
		panic(fmt.Errorf("parse env: %w", err))
	}
}
