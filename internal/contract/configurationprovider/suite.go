// Package configurationprovider provides the contract test suite for
// ConfigurationProvider implementations.
package configurationprovider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/certifier/internal/core/ports"
)

// Factory creates a new ConfigurationProvider implementation for testing.
type Factory func(t *testing.T) ports.ConfigurationProvider

// TestPaths provides test paths for configuration testing.
type TestPaths struct {
	ValidPath   string
	InvalidPath string
}

// Run executes the complete contract test suite against any ConfigurationProvider implementation.
func Run(t *testing.T, newImpl Factory, paths TestPaths) {
	ctx := context.Background()

	t.Run("load valid configuration", func(t *testing.T) {
		provider := newImpl(t)

		config, err := provider.LoadConfiguration(ctx, paths.ValidPath)
		require.NoError(t, err)
		require.NotNil(t, config)

		assert.NotEmpty(t, config.Node.EnclaveType)
		assert.NoError(t, config.Validate())
		_, err = config.RequiredStages()
		assert.NoError(t, err)
	})

	t.Run("load invalid configuration", func(t *testing.T) {
		provider := newImpl(t)

		config, err := provider.LoadConfiguration(ctx, paths.InvalidPath)
		assert.Error(t, err, "LoadConfiguration(%q) should fail", paths.InvalidPath)
		assert.Nil(t, config, "LoadConfiguration should return nil config on error")
	})

	t.Run("get default configuration", func(t *testing.T) {
		provider := newImpl(t)

		config := provider.GetDefaultConfiguration(ctx)
		// Contract: May return nil if provider doesn't support defaults
		if config == nil {
			t.Log("GetDefaultConfiguration returned nil - provider may not support defaults")
			return
		}
		assert.NoError(t, config.Validate())
		assert.Equal(t, ports.EnclaveSimulated, config.Node.EnclaveType)
	})

	t.Run("empty path rejected", func(t *testing.T) {
		provider := newImpl(t)

		_, err := provider.LoadConfiguration(ctx, "")
		assert.Error(t, err)
	})

	t.Run("whitespace path rejected", func(t *testing.T) {
		provider := newImpl(t)

		_, err := provider.LoadConfiguration(ctx, "   ")
		assert.Error(t, err)
	})

	t.Run("configuration validation edge cases", func(t *testing.T) {
		provider := newImpl(t)

		baseConfig := provider.GetDefaultConfiguration(ctx)
		if baseConfig == nil {
			t.Skip("Cannot obtain config for validation testing")
		}

		testCases := []struct {
			name   string
			modify func(ports.Configuration) *ports.Configuration
		}{
			{
				name: "unknown enclave type",
				modify: func(c ports.Configuration) *ports.Configuration {
					c.Node.EnclaveType = "tpm-enclave"
					return &c
				},
			},
			{
				name: "unknown purpose",
				modify: func(c ports.Configuration) *ports.Configuration {
					c.Node.Purpose = "mining"
					return &c
				},
			},
			{
				name: "duplicate domains",
				modify: func(c ports.Configuration) *ports.Configuration {
					d := ports.DomainConfig{Name: "datica-test"}
					d.Admission.Host, d.Admission.Port = "localhost", 8121
					d.Service.Host, d.Service.Port = "localhost", 8123
					c.SecondaryDomains = []ports.DomainConfig{d, d}
					return &c
				},
			},
			{
				name: "unknown stage",
				modify: func(c ports.Configuration) *ports.Configuration {
					c.Policy.RequiredStages = []string{"tertiary-certified"}
					return &c
				},
			},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				assert.Error(t, tc.modify(*baseConfig).Validate())
			})
		}
	})
}
