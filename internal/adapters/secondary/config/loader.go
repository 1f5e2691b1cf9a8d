package config

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/sufield/certifier/internal/core/ports"
)

// EnvPrefix prefixes every environment override, e.g.
// CERTIFIER_NODE_STORE_PATH overrides node.store_path.
const EnvPrefix = "CERTIFIER"

// Loader layers defaults, an optional config file, the environment and bound
// command-line flags, in increasing precedence.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader seeded with the default configuration.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, ports.DefaultConfiguration())
	return &Loader{v: v}
}

// Viper exposes the underlying instance so commands can bind their flags.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load reads path, when non-empty, and returns the validated configuration.
func (l *Loader) Load(path string) (*ports.Configuration, error) {
	if path != "" {
		cleanPath, err := cleanConfigPath(path)
		if err != nil {
			return nil, err
		}
		l.v.SetConfigFile(cleanPath)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var config ports.Configuration
	err := l.v.Unmarshal(&config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// setDefaults registers every scalar default so AutomaticEnv can override
// keys that the config file does not mention.
func setDefaults(v *viper.Viper, d *ports.Configuration) {
	v.SetDefault("node.enclave_type", d.Node.EnclaveType)
	v.SetDefault("node.purpose", d.Node.Purpose)
	v.SetDefault("node.store_path", d.Node.StorePath)
	v.SetDefault("node.measurement", d.Node.Measurement)
	v.SetDefault("node.platform_key_file", d.Node.PlatformKeyFile)
	v.SetDefault("policy.max_entries", d.Policy.MaxEntries)
	v.SetDefault("policy.required_stages", d.Policy.RequiredStages)
	v.SetDefault("policy.require_secondary", d.Policy.RequireSecondary)
	v.SetDefault("certifier.timeout", d.Certifier.Timeout)
	v.SetDefault("certifier.retries", d.Certifier.Retries)
	v.SetDefault("certifier.listen", d.Certifier.Listen)
	v.SetDefault("certifier.trusted_measurements", d.Certifier.TrustedMeasurements)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.address", d.Metrics.Address)
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
}
