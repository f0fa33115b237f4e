// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ErrExists is returned by WriteFile when the target exists and force is off.
var ErrExists = errors.New("config file already exists")

// WriteFile writes cfg as YAML atomically (temp file, fsync, rename).
func WriteFile(path string, cfg Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// EnsureDeviceID assigns a random device id when none is configured and
// reports whether it did.
func EnsureDeviceID(cfg *Config) bool {
	if cfg.Server.DeviceID != "" {
		return false
	}
	cfg.Server.DeviceID = uuid.NewString()
	return true
}
