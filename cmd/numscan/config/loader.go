// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	// Global is a singleton instance
	Global NumscanConfig
	once   sync.Once

	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("invalid config")

	validate = validator.New()
)

// DefaultPath returns ~/.numscan/numscan.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".numscan", "numscan.yaml"), nil
}

// Load ensures the config is loaded into the Global variable. An empty
// path means DefaultPath.
func Load(path string) error {
	var err error
	once.Do(func() {
		Global, err = LoadFrom(path)
	})
	return err
}

// LoadFrom reads, defaults and validates the config at path, creating it
// with defaults when missing.
func LoadFrom(path string) (NumscanConfig, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return NumscanConfig{}, err
		}
		path = p
	}
	// create it if it doesn't exist
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "First run detected, creating the config at %s\n", path)
		if err := createDefault(path); err != nil {
			return NumscanConfig{}, err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return NumscanConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults so omitted keys keep their default
// values, then validates.
func Parse(data []byte) (NumscanConfig, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return NumscanConfig{}, fmt.Errorf("%w: parse: %w", ErrInvalid, err)
	}
	if err := Validate(cfg); err != nil {
		return NumscanConfig{}, err
	}
	return cfg, nil
}

// Validate checks struct tags across every section. The session range is
// checked later, once flags have been applied.
func Validate(cfg NumscanConfig) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := cfg.Retry.Validate(); err != nil {
		return fmt.Errorf("%w: retry: %w", ErrInvalid, err)
	}
	return nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
