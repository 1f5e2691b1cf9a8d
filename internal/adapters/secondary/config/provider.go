// Package config loads certifier node configuration from YAML files and the
// environment.
package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"github.com/sufield/certifier/internal/core/errors"
	"github.com/sufield/certifier/internal/core/ports"
)

// FileProvider loads a configuration from a single YAML file. Fields absent
// from the file keep their defaults.
type FileProvider struct{}

// NewFileProvider creates a file provider.
func NewFileProvider() *FileProvider {
	return &FileProvider{}
}

var _ ports.ConfigurationProvider = (*FileProvider)(nil)

// LoadConfiguration reads, decodes and validates the file at path.
func (p *FileProvider) LoadConfiguration(ctx context.Context, path string) (*ports.Configuration, error) {
	cleanPath, err := cleanConfigPath(path)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("configuration loading canceled: %w", err)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := ports.DefaultConfiguration()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in file %s: %w", path, err)
	}
	return config, nil
}

// GetDefaultConfiguration returns the built-in defaults: a simulated enclave,
// authentication purpose, no domains.
func (p *FileProvider) GetDefaultConfiguration(context.Context) *ports.Configuration {
	return ports.DefaultConfiguration()
}

func cleanConfigPath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", &errors.ValidationError{
			Field:   "path",
			Value:   path,
			Message: "configuration file path cannot be empty or whitespace",
		}
	}
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve config file path: %w", err)
	}
	return absPath, nil
}

// WriteConfiguration encodes config as YAML to path with mode 0600.
func WriteConfiguration(path string, config *ports.Configuration) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(config); err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write configuration %s: %w", path, err)
	}
	return nil
}
