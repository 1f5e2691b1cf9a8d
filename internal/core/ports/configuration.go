package ports

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sufield/certifier/internal/core/domain"
	"github.com/sufield/certifier/internal/core/errors"
)

// Enclave types understood by the node configuration.
const (
	EnclaveSimulated = "simulated-enclave"
	EnclaveSEV       = "sev-enclave"
	EnclaveGramine   = "gramine-enclave"
	EnclaveOE        = "oe-enclave"
)

// Configuration represents the complete configuration of a certifier node.
type Configuration struct {
	Node NodeConfig `yaml:"node" mapstructure:"node"`

	// PrimaryDomain is the domain the node must be certified by. Optional:
	// a node may only register domains at runtime.
	PrimaryDomain *DomainConfig `yaml:"primary_domain,omitempty" mapstructure:"primary_domain" validate:"omitempty"`

	// SecondaryDomains are certified independently after the primary.
	SecondaryDomains []DomainConfig `yaml:"secondary_domains,omitempty" mapstructure:"secondary_domains" validate:"dive"`

	Policy    PolicyConfig    `yaml:"policy" mapstructure:"policy"`
	Certifier CertifierConfig `yaml:"certifier" mapstructure:"certifier"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
}

// NodeConfig describes the enclave this node runs in.
type NodeConfig struct {
	EnclaveType string `yaml:"enclave_type" mapstructure:"enclave_type" validate:"required,oneof=simulated-enclave sev-enclave gramine-enclave oe-enclave"`
	Purpose     string `yaml:"purpose,omitempty" mapstructure:"purpose" validate:"omitempty,oneof=authentication attestation"`
	// StorePath is where the sealed policy store is kept.
	StorePath string `yaml:"store_path,omitempty" mapstructure:"store_path" validate:"safe_path"`
	// Measurement is the hex measurement reported by a simulated enclave.
	Measurement string `yaml:"measurement,omitempty" mapstructure:"measurement" validate:"omitempty,hexadecimal"`
	// PlatformKeyFile holds the simulated platform secret.
	PlatformKeyFile string `yaml:"platform_key_file,omitempty" mapstructure:"platform_key_file" validate:"safe_path"`
}

// DomainConfig describes a domain to register.
type DomainConfig struct {
	Name           string          `yaml:"name" mapstructure:"name" validate:"required,domain_name"`
	PolicyCertFile string          `yaml:"policy_cert_file,omitempty" mapstructure:"policy_cert_file" validate:"safe_path"`
	Admission      domain.Endpoint `yaml:"admission" mapstructure:"admission"`
	Service        domain.Endpoint `yaml:"service" mapstructure:"service"`
}

// PolicyConfig controls the policy store and the all-initialized predicate.
type PolicyConfig struct {
	MaxEntries int `yaml:"max_entries,omitempty" mapstructure:"max_entries" validate:"gte=0,lte=65536"`
	// RequiredStages overrides the purpose's default required stages.
	RequiredStages   []string `yaml:"required_stages,omitempty" mapstructure:"required_stages" validate:"dive,stage_name"`
	RequireSecondary bool     `yaml:"require_secondary,omitempty" mapstructure:"require_secondary"`
}

// CertifierConfig controls calls to certifier services and the simulated
// service run by the serve command.
type CertifierConfig struct {
	Timeout time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout" validate:"gte=0"`
	Retries int           `yaml:"retries,omitempty" mapstructure:"retries" validate:"gte=0,lte=10"`
	// Listen is the address the serve command binds.
	Listen string `yaml:"listen,omitempty" mapstructure:"listen" validate:"omitempty,hostname_port"`
	// TrustedMeasurements are hex measurements the simulated authority admits.
	TrustedMeasurements []string `yaml:"trusted_measurements,omitempty" mapstructure:"trusted_measurements" validate:"dive,hexadecimal"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level,omitempty" mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format,omitempty" mapstructure:"format" validate:"omitempty,oneof=text json"`
}

// MetricsConfig controls the Prometheus endpoint of the serve command and the
// textfile node commands write their metrics to.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty" mapstructure:"enabled"`
	Address string `yaml:"address,omitempty" mapstructure:"address" validate:"omitempty,hostname_port"`
	// Textfile is rewritten after each node command, in the format of the
	// node_exporter textfile collector.
	Textfile string `yaml:"textfile,omitempty" mapstructure:"textfile" validate:"safe_path"`
}

// Defaults applied by DefaultConfiguration and the loaders.
const (
	DefaultStorePath        = "policy_store"
	DefaultCertifierTimeout = 10 * time.Second
	DefaultListenAddress    = "localhost:8123"
	DefaultMetricsAddress   = "localhost:9090"
)

// DefaultConfiguration returns a configuration for a simulated enclave with no
// domains.
func DefaultConfiguration() *Configuration {
	return &Configuration{
		Node: NodeConfig{
			EnclaveType: EnclaveSimulated,
			Purpose:     string(domain.PurposeAuthentication),
			StorePath:   DefaultStorePath,
		},
		Policy: PolicyConfig{
			MaxEntries: domain.DefaultMaxEntries,
		},
		Certifier: CertifierConfig{
			Timeout: DefaultCertifierTimeout,
			Listen:  DefaultListenAddress,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Address: DefaultMetricsAddress,
		},
	}
}

// Validate checks if the configuration is valid and returns any validation errors.
func (c *Configuration) Validate() error {
	if c == nil {
		return &errors.ValidationError{
			Field:   "configuration",
			Value:   nil,
			Message: "configuration cannot be nil",
		}
	}

	if err := domain.ValidateStruct(c); err != nil {
		if fieldErrs := domain.ConvertValidationErrors(err); len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &errors.ValidationError{
				Field:   fe.Field,
				Value:   fe.Value,
				Message: fe.Message,
			}
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	seen := make(map[string]bool, len(c.SecondaryDomains)+1)
	if c.PrimaryDomain != nil {
		seen[c.PrimaryDomain.Name] = true
	}
	for i, d := range c.SecondaryDomains {
		if seen[d.Name] {
			return &errors.ValidationError{
				Field:   fmt.Sprintf("secondary_domains[%d].name", i),
				Value:   d.Name,
				Message: "domain names must be unique",
			}
		}
		seen[d.Name] = true
	}
	return nil
}

// IsProductionReady reports the settings that are acceptable for development
// but not for a deployed node. The returned error unwraps to the matching
// sentinels in the errors package.
func (c *Configuration) IsProductionReady() error {
	var errs []error

	if c.Node.EnclaveType == EnclaveSimulated {
		errs = append(errs, errors.ErrSimulatedEnclave)
	}
	if c.Node.StorePath != "" && !filepath.IsAbs(c.Node.StorePath) {
		errs = append(errs, fmt.Errorf("%w: %s", errors.ErrRelativeStorePath, c.Node.StorePath))
	}
	if c.PrimaryDomain == nil {
		errs = append(errs, errors.ErrNoPrimaryDomain)
	} else if c.PrimaryDomain.PolicyCertFile == "" {
		errs = append(errs, fmt.Errorf("%w: %s", errors.ErrMissingPolicyCert, c.PrimaryDomain.Name))
	}
	for _, d := range c.SecondaryDomains {
		if d.PolicyCertFile == "" {
			errs = append(errs, fmt.Errorf("%w: %s", errors.ErrMissingPolicyCert, d.Name))
		}
	}
	if strings.EqualFold(c.Log.Level, "debug") {
		errs = append(errs, errors.ErrVerboseLogging)
	}
	if c.Metrics.Enabled && listensOnAllInterfaces(c.Metrics.Address) {
		errs = append(errs, fmt.Errorf("%w: %s", errors.ErrPublicMetrics, c.Metrics.Address))
	}

	return errors.NewProductionValidationError(errs...)
}

func listensOnAllInterfaces(addr string) bool {
	host := addr
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		host = addr[:i]
	}
	host = strings.Trim(host, "[]")
	return host == "" || host == "0.0.0.0" || host == "::"
}

// RequiredStages resolves the stage set the all-initialized predicate checks.
func (c *Configuration) RequiredStages() (domain.InitStages, error) {
	if len(c.Policy.RequiredStages) > 0 {
		return domain.ParseStages(c.Policy.RequiredStages)
	}
	purpose, err := domain.ParsePurpose(c.Node.Purpose)
	if err != nil {
		return 0, err
	}
	return purpose.RequiredStages(c.Policy.RequireSecondary), nil
}

// Domains returns the configured domains as uncertified records, primary first.
// Certificates are left empty; callers load PolicyCertFile themselves.
func (c *Configuration) Domains() (primary *domain.CertifiedDomain, secondaries []*domain.CertifiedDomain, err error) {
	if c.PrimaryDomain != nil {
		primary, err = c.PrimaryDomain.toDomain()
		if err != nil {
			return nil, nil, fmt.Errorf("primary domain: %w", err)
		}
	}
	for _, dc := range c.SecondaryDomains {
		d, err := dc.toDomain()
		if err != nil {
			return nil, nil, fmt.Errorf("secondary domain %q: %w", dc.Name, err)
		}
		secondaries = append(secondaries, d)
	}
	return primary, secondaries, nil
}

func (d DomainConfig) toDomain() (*domain.CertifiedDomain, error) {
	return domain.NewCertifiedDomain(strings.TrimSpace(d.Name), nil, d.Admission, d.Service)
}

// ConfigurationProvider loads configurations.
type ConfigurationProvider interface {
	LoadConfiguration(ctx context.Context, path string) (*Configuration, error)
	GetDefaultConfiguration(ctx context.Context) *Configuration
}
