// Package config holds the shared configuration helpers for warden entry
// points. Daemon configuration comes from WARDEN_-prefixed environment
// variables, optionally overridden by flags.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv populates target from its `env` struct tags.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
