// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads potproxy's static YAML configuration, matching
// the shape and LoadConfig/Validate convention of the teacher's
// proxy.Config.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for potproxy.
type Config struct {
	// RequestSocketPath is the external request socket's Unix path.
	RequestSocketPath string `yaml:"request_socket_path"`

	// PublishSocketPath is the external publish socket's Unix path.
	PublishSocketPath string `yaml:"publish_socket_path"`

	// EphemeralDir is the base directory under which each worker's
	// private per-store socket directory is created. Defaults to
	// os.TempDir() joined with "potproxy" when empty.
	EphemeralDir string `yaml:"ephemeral_dir"`

	// Stores maps store name to its worker's launch configuration.
	Stores map[string]StoreConfig `yaml:"stores"`
}

// StoreConfig is one store's worker process configuration.
type StoreConfig struct {
	// Binary is the path to the worker executable.
	Binary string `yaml:"binary"`

	// Args are fixed arguments appended after the three positional
	// arguments potproxy always passes (request endpoint, publish
	// endpoint, store name).
	Args []string `yaml:"args"`
}

// Load reads and parses a YAML configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.EphemeralDir == "" {
		cfg.EphemeralDir = os.TempDir() + "/potproxy"
	}

	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.RequestSocketPath == "" {
		return fmt.Errorf("request_socket_path is required")
	}
	if c.PublishSocketPath == "" {
		return fmt.Errorf("publish_socket_path is required")
	}
	if len(c.Stores) == 0 {
		return fmt.Errorf("at least one store must be configured")
	}
	for name, store := range c.Stores {
		if store.Binary == "" {
			return fmt.Errorf("store %q: binary is required", name)
		}
	}
	return nil
}
