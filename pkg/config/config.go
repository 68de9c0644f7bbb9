// Package config provides YAML-based configuration loading with environment
// variable expansion.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Validator is an interface for configuration validation. Targets that
// implement it are validated after unmarshalling.
type Validator interface {
	Validate() error
}

// Load reads a YAML file into target, expanding ${VAR} references from the
// environment first.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), target); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	if v, ok := any(target).(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}

	return nil
}

// LoadIfExists loads the file when present and leaves target untouched when
// it does not exist, so callers can fall back to pre-populated defaults. The
// boolean reports whether the file was loaded.
func LoadIfExists[T any](filename string, target *T) (bool, error) {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := Load(filename, target); err != nil {
		return false, err
	}
	return true, nil
}
