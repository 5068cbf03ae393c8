// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


// Package config loads the YAML configuration file. Command line flags override its values
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mlnoga/xslit/internal/ops"
	"github.com/mlnoga/xslit/internal/ops/motion"
	"github.com/mlnoga/xslit/internal/ops/warp"
)

type Config struct {
	// Motion estimation, including feature extraction and RANSAC
	Motion motion.Params `yaml:"motion"`

	// Directory holding one persisted motion file per sequence
	MotionDir string `yaml:"motionDir"`

	Processing struct {
		// Maximum number of threads, zero or less for the number of physical cores
		Threads int `yaml:"threads"`

		// Out of bounds fill for warped frames, "zero" or "mean"
		Fill string `yaml:"fill"`
	} `yaml:"processing"`

	Output struct {
		// Output directory for composites
		Dir string `yaml:"dir"`

		// File suffix selecting the encoder, e.g. ".jpg" or ".png"
		Suffix string `yaml:"suffix"`

		// Optional log file in addition to stdout
		Log string `yaml:"log"`
	} `yaml:"output"`

	Server struct {
		Address string `yaml:"address"`
		Chroot  string `yaml:"chroot"`
		Setuid  int    `yaml:"setuid"`
	} `yaml:"server"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Motion = motion.DefaultParams()
	cfg.MotionDir = "Motion"
	cfg.Processing.Threads = ops.DefaultThreads()
	cfg.Processing.Fill = warp.FillZero.String()
	cfg.Output.Dir = "Results"
	cfg.Output.Suffix = ".jpg"
	cfg.Server.Address = ":8080"
	cfg.Server.Setuid = -1
	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	if configPath == "" {
		return cfg, nil
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// Checks value ranges that would otherwise fail deep inside a run
func (cfg *Config) Validate() error {
	if cfg.Motion.Ransac.Iterations <= 0 {
		return fmt.Errorf("ransac iterations must be positive, got %d", cfg.Motion.Ransac.Iterations)
	}
	if cfg.Motion.Ransac.InlierTol <= 0 {
		return fmt.Errorf("ransac inlier tolerance must be positive, got %g", cfg.Motion.Ransac.InlierTol)
	}
	if cfg.Motion.Features.MaxFeatures <= 0 {
		return fmt.Errorf("feature budget must be positive, got %d", cfg.Motion.Features.MaxFeatures)
	}
	if _, err := warp.ParseFillMode(cfg.Processing.Fill); err != nil {
		return err
	}
	return nil
}
