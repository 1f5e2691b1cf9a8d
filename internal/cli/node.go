package cli

import (
	"context"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sufield/certifier/internal/adapters/logging"
	"github.com/sufield/certifier/internal/adapters/metrics"
	"github.com/sufield/certifier/internal/adapters/secondary/certifier"
	"github.com/sufield/certifier/internal/adapters/secondary/config"
	"github.com/sufield/certifier/internal/adapters/secondary/enclave"
	"github.com/sufield/certifier/internal/adapters/secondary/storage"
	"github.com/sufield/certifier/internal/core/domain"
	"github.com/sufield/certifier/internal/core/errors"
	"github.com/sufield/certifier/internal/core/ports"
	"github.com/sufield/certifier/internal/core/services"
)

// loadConfig reads --config through the viper loader. The logging flags
// override the file and the environment.
func loadConfig(cmd *cobra.Command) (*ports.Configuration, error) {
	loader := config.NewLoader()
	v := loader.Viper()
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		v.Set("log.level", f.Value.String())
	}
	if f := cmd.Flags().Lookup("log-format"); f != nil && f.Changed {
		v.Set("log.format", f.Value.String())
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := loader.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return cfg, nil
}

// newLogger builds the redacting slog logger the commands write to stderr.
func newLogger(w io.Writer, cfg *ports.Configuration) *slog.Logger {
	return logging.NewSecureSlogLogger(logging.NewHandler(w, cfg.Log.Format, cfg.Log.Level))
}

// node is a TrustData wired to the adapters named by the configuration.
type node struct {
	cfg    *ports.Configuration
	td     *services.TrustData
	repo   *storage.FileRepository
	client *certifier.GRPCClient
	// registry is set when metrics.textfile is configured.
	registry *prometheus.Registry
}

type nodeOptions struct {
	// createPlatformKey generates the simulated platform key if missing.
	createPlatformKey bool
	// restore runs a warm restart; a missing store is tolerated when
	// allowEmpty is set.
	restore    bool
	allowEmpty bool
}

func openNode(cmd *cobra.Command, opts nodeOptions) (*node, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg)

	encl, err := openEnclave(cfg, opts.createPlatformKey)
	if err != nil {
		return nil, err
	}
	repo, err := storage.NewFileRepository(cfg.Node.StorePath, encl)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	required, err := cfg.RequiredStages()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	purpose, err := domain.ParsePurpose(cfg.Node.Purpose)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	client := certifier.NewGRPCClient()
	n := &node{cfg: cfg, repo: repo, client: client}
	tdOpts := []services.Option{
		services.WithEnclave(encl),
		services.WithCertifierClient(client),
		services.WithRepository(repo),
		services.WithLogger(logging.NewSecureLogger(logger.Handler())),
	}
	if cfg.Metrics.Textfile != "" {
		n.registry = prometheus.NewRegistry()
		tdOpts = append(tdOpts, services.WithMetrics(metrics.NewPrometheusMetrics(n.registry)))
	}

	td := services.NewTrustData(services.TrustDataConfig{
		EnclaveType:      cfg.Node.EnclaveType,
		Purpose:          purpose,
		StorePath:        cfg.Node.StorePath,
		MaxEntries:       cfg.Policy.MaxEntries,
		RequiredStages:   required,
		RequireSecondary: cfg.Policy.RequireSecondary,
		CertifyTimeout:   cfg.Certifier.Timeout,
		Retries:          cfg.Certifier.Retries,
	}, tdOpts...)
	n.td = td

	if err := n.registerDomains(cmd.Context()); err != nil {
		_ = client.Close()
		return nil, err
	}

	if opts.restore {
		err := td.WarmRestart(cmd.Context())
		switch {
		case err == nil:
		case opts.allowEmpty && stderrors.Is(err, errors.ErrEntryNotFound):
		case stderrors.Is(err, errors.ErrEntryNotFound):
			_ = client.Close()
			return nil, fmt.Errorf("%w: no policy store at %s, run cold-init first", ErrRuntime, repo.Path())
		default:
			_ = client.Close()
			return nil, classify(err)
		}
	}
	return n, nil
}

// registerDomains registers the configured domains with their policy
// certificates.
func (n *node) registerDomains(ctx context.Context) error {
	primary, secondaries, err := n.cfg.Domains()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}

	if primary != nil {
		if primary.Certificate, err = readPolicyCert(n.cfg.PrimaryDomain.PolicyCertFile); err != nil {
			return err
		}
		if err := n.td.SetPrimaryDomain(primary); err != nil {
			return classify(err)
		}
	}
	for i, d := range secondaries {
		if d.Certificate, err = readPolicyCert(n.cfg.SecondaryDomains[i].PolicyCertFile); err != nil {
			return err
		}
		if err := n.td.AddOrUpdateDomain(ctx, d); err != nil {
			return classify(err)
		}
	}
	return nil
}

func readPolicyCert(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read policy certificate: %v", ErrConfig, err)
	}
	return data, nil
}

// Close releases the certifier connections and writes the metrics textfile.
func (n *node) Close() error {
	err := n.client.Close()
	if n.registry != nil {
		if werr := prometheus.WriteToTextfile(n.cfg.Metrics.Textfile, n.registry); werr != nil && err == nil {
			err = fmt.Errorf("write metrics textfile: %w", werr)
		}
	}
	return err
}

// openEnclave returns the enclave named by node.enclave_type. Only the
// simulated enclave is available in this build.
func openEnclave(cfg *ports.Configuration, createKey bool) (*enclave.Simulated, error) {
	if cfg.Node.EnclaveType != ports.EnclaveSimulated {
		return nil, fmt.Errorf("%w: enclave type %q is not supported by this build", ErrConfig, cfg.Node.EnclaveType)
	}
	if cfg.Node.PlatformKeyFile == "" {
		return nil, fmt.Errorf("%w: node.platform_key_file is required for %s", ErrConfig, ports.EnclaveSimulated)
	}
	measurement, err := nodeMeasurement(cfg)
	if err != nil {
		return nil, err
	}

	key, err := enclave.LoadPlatformKey(cfg.Node.PlatformKeyFile)
	if err != nil && createKey && stderrors.Is(err, os.ErrNotExist) {
		key, err = enclave.GeneratePlatformKey(cfg.Node.PlatformKeyFile)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	encl, err := enclave.NewSimulated(key, measurement)
	if err != nil {
		return nil, classify(err)
	}
	return encl, nil
}

func nodeMeasurement(cfg *ports.Configuration) ([]byte, error) {
	if cfg.Node.Measurement == "" {
		return nil, fmt.Errorf("%w: node.measurement is required for %s", ErrConfig, ports.EnclaveSimulated)
	}
	m, err := decodeHex(cfg.Node.Measurement)
	if err != nil {
		return nil, fmt.Errorf("%w: node.measurement: %v", ErrConfig, err)
	}
	return m, nil
}

// decodeHex accepts the optional 0x prefix the config validator allows.
func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}
