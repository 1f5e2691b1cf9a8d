package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/sufield/certifier/internal/adapters/metrics"
	"github.com/sufield/certifier/internal/adapters/secondary/certifier"
	"github.com/sufield/certifier/internal/adapters/secondary/enclave"
	"github.com/sufield/certifier/internal/core/ports"
	"github.com/sufield/certifier/internal/shutdown"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a simulated certifier service for one domain",
		Long: `Run the certifier.v1.Certifier gRPC service backed by a simulated
authority. The authority admits simulated enclaves that share the node's
platform key and report one of certifier.trusted_measurements (the node's own
measurement when the list is empty).

The authority's policy certificate is written to --policy-cert-out so nodes
can register it as the domain certificate. With metrics.enabled the Prometheus
endpoint is served on metrics.address.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().String("domain", "", "Domain to admit nodes into (default: primary_domain.name)")
	cmd.Flags().String("listen", "", "Listen address (default: certifier.listen)")
	cmd.Flags().String("policy-cert-out", "", "Write the DER policy certificate to this file")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg)

	name, _ := cmd.Flags().GetString("domain")
	if name == "" && cfg.PrimaryDomain != nil {
		name = cfg.PrimaryDomain.Name
	}
	if name == "" {
		return fmt.Errorf("%w: --domain or primary_domain.name is required", ErrUsage)
	}
	listen, _ := cmd.Flags().GetString("listen")
	if listen == "" {
		listen = cfg.Certifier.Listen
	}

	authority, err := newAuthority(cfg, name)
	if err != nil {
		return err
	}
	if out, _ := cmd.Flags().GetString("policy-cert-out"); out != "" {
		if err := os.WriteFile(out, authority.PolicyCertificate(), 0o644); err != nil {
			return fmt.Errorf("%w: write policy certificate: %v", ErrRuntime, err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheusMetrics(reg)

	ctx := cmd.Context()
	lis, err := (&net.ListenConfig{}).Listen(ctx, "tcp", listen)
	if err != nil {
		return fmt.Errorf("%w: listen on %s: %v", ErrRuntime, listen, err)
	}
	srv := certifier.NewServer(authority, certifier.ServerConfig{Logger: logger, Recorder: recorder})

	coord := shutdown.NewCoordinator(cfg.Certifier.Timeout, logger)
	if cfg.Metrics.Enabled {
		coord.Register(serveMetrics(cfg.Metrics.Address, reg, logger))
	}
	coord.Register(shutdown.Component{
		Name: "certifier service",
		Stop: func(context.Context) error {
			srv.GracefulStop()
			return nil
		},
		Force: srv.Stop,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()
	logger.Info("certifier service listening",
		"domain", name,
		"address", lis.Addr().String(),
		"trusted_measurements", len(cfg.Certifier.TrustedMeasurements))

	select {
	case <-ctx.Done():
		err := coord.Shutdown(context.WithoutCancel(ctx))
		<-errCh
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRuntime, err)
		}
		return nil
	case err := <-errCh:
		_ = coord.Shutdown(context.WithoutCancel(ctx))
		return fmt.Errorf("%w: %v", ErrRuntime, err)
	}
}

func newAuthority(cfg *ports.Configuration, name string) (*certifier.SimulatedAuthority, error) {
	if cfg.Node.PlatformKeyFile == "" {
		return nil, fmt.Errorf("%w: node.platform_key_file is required", ErrConfig)
	}
	key, err := enclave.LoadPlatformKey(cfg.Node.PlatformKeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	var trusted [][]byte
	for _, m := range cfg.Certifier.TrustedMeasurements {
		b, err := decodeHex(m)
		if err != nil {
			return nil, fmt.Errorf("%w: certifier.trusted_measurements: %v", ErrConfig, err)
		}
		trusted = append(trusted, b)
	}
	if len(trusted) == 0 {
		m, err := nodeMeasurement(cfg)
		if err != nil {
			return nil, err
		}
		trusted = append(trusted, m)
	}

	authority, err := certifier.NewSimulatedAuthority(certifier.AuthorityConfig{
		Domain:              name,
		PlatformKey:         key,
		TrustedMeasurements: trusted,
	})
	if err != nil {
		return nil, classify(err)
	}
	return authority, nil
}

// serveMetrics exposes reg on addr/metrics and returns the component that
// shuts the endpoint down.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) shutdown.Component {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics endpoint failed", "error", err)
		}
	}()
	logger.Info("metrics endpoint listening", "address", addr)

	return shutdown.Component{
		Name:  "metrics endpoint",
		Stop:  srv.Shutdown,
		Force: func() { _ = srv.Close() },
	}
}
