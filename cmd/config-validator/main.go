// Package main provides a configuration validator for certifier nodes.
// It checks a node configuration before deployment, optionally against the
// stricter production readiness rules.
package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sufield/certifier/internal/adapters/secondary/config"
	"github.com/sufield/certifier/internal/buildinfo"
	"github.com/sufield/certifier/internal/core/errors"
	"github.com/sufield/certifier/internal/core/ports"
)

// Exit codes
const (
	ExitSuccess             = 0
	ExitUsageError          = 2
	ExitBasicValidation     = 3
	ExitProductionReadiness = 4
	ExitLoadError           = 5
)

// exitError carries the process exit code out of RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

type options struct {
	configFile string
	envOnly    bool
	production bool
	verbose    bool
	noEmoji    bool
	format     string
	quiet      bool
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "config-validator",
		Short: "Validates certifier node configuration for production readiness",
		Long: `Validates certifier node configuration for production readiness.

Basic validation applies the same rules as certifier-cli. Production
validation additionally rejects the simulated enclave, relative store paths,
domains without policy certificates, debug logging and a metrics endpoint
listening on all interfaces.`,
		Example: `  # Validate a config file, environment overrides applied:
  config-validator --config /etc/certifier/node.yaml --production

  # Validate CERTIFIER_* environment variables only:
  config-validator --env-only --production

  # JSON output for CI:
  config-validator --config node.yaml --format json --production`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidator(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.format, "format", "text", "Output format (text|json)")
	cmd.PersistentFlags().BoolVar(&opts.noEmoji, "no-emoji", false, "Disable emoji in output")
	cmd.PersistentFlags().BoolVar(&opts.quiet, "quiet", false, "Suppress success messages")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Timeout for operations")

	cmd.Flags().StringVar(&opts.configFile, "config", "", "Path to configuration file")
	cmd.Flags().BoolVar(&opts.envOnly, "env-only", false, "Validate environment variables only")
	cmd.Flags().BoolVar(&opts.production, "production", false, "Perform production readiness validation")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "Verbose output")
	cmd.MarkFlagsMutuallyExclusive("config", "env-only")

	cmd.AddCommand(newVersionCmd(opts))
	return cmd
}

func newVersionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := buildinfo.Get()
			if opts.format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "certifier-config-validator version %s\n", info.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "  Commit: %s\n", info.CommitHash)
			fmt.Fprintf(cmd.OutOrStdout(), "  Built:  %s\n", info.BuildTime)
			return nil
		},
	}
}

func runValidator(ctx context.Context, stdout, stderr io.Writer, opts *options) error {
	if opts.format != "text" && opts.format != "json" {
		return &exitError{ExitUsageError, fmt.Errorf("unsupported format %q", opts.format)}
	}
	if opts.configFile == "" && !opts.envOnly {
		return &exitError{ExitUsageError, fmt.Errorf("either --config or --env-only must be specified")}
	}
	text := opts.format == "text"
	printer := NewPrinter(stdout, stderr, !opts.noEmoji, opts.quiet || !text)

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	printer.Plain("Certifier Configuration Validator")
	printer.Plain("=================================")
	printer.Newline()

	result := &Result{BasicValid: true, ProductionValid: true}
	fail := func(code int, err error) error {
		result.Errors = append(result.Errors, err.Error())
		if !text {
			_ = printer.PrintJSON(result)
		}
		return &exitError{code, err}
	}

	cfg, err := loadConfiguration(ctx, printer, opts.configFile, opts.envOnly)
	var ve *errors.ValidationError
	switch {
	case stderrors.As(err, &ve):
		result.BasicValid = false
		result.ProductionValid = false
		printer.Errorf("Basic validation failed: %v", ve)
		return fail(ExitBasicValidation, err)
	case err != nil:
		result.BasicValid = false
		result.ProductionValid = false
		printer.Errorf("Failed to load configuration: %v", err)
		return fail(ExitLoadError, err)
	}
	result.Configuration = summarize(cfg)

	if opts.verbose {
		displayConfiguration(printer, result.Configuration)
		printer.Newline()
	}
	printer.Success("Basic validation passed")
	result.Messages = append(result.Messages, "Basic validation passed")

	if opts.production {
		printer.Newline()
		printer.Production("Performing production readiness validation...")

		if err := cfg.IsProductionReady(); err != nil {
			result.ProductionValid = false
			result.Tips = getProductionTips(err)
			printer.Errorf("Production validation failed: %v", err)
			printer.Newline()
			printer.Tip("Production readiness tips:")
			for _, tip := range result.Tips {
				printer.Bullet(tip)
			}
			return fail(ExitProductionReadiness, err)
		}
		printer.Success("Production validation passed")
		result.Messages = append(result.Messages, "Production validation passed")
	}

	printer.Newline()
	printer.Tip("Security recommendations:")
	for _, rec := range getSecurityRecommendations(opts.envOnly) {
		printer.Bullet(rec)
	}
	printer.Newline()
	printer.Banner("Configuration validation completed successfully!")

	if !text {
		return printer.PrintJSON(result)
	}
	return nil
}

// loadConfiguration reads the file through the strict YAML provider, which
// rejects unknown keys, then layers the environment on top with the viper
// loader. --env-only skips the file. Both apply basic validation.
func loadConfiguration(ctx context.Context, printer *Printer, configFile string, envOnly bool) (*ports.Configuration, error) {
	switch {
	case configFile != "":
		printer.File(fmt.Sprintf("Loading configuration from file: %s", configFile))
		if _, err := config.NewFileProvider().LoadConfiguration(ctx, configFile); err != nil {
			return nil, fmt.Errorf("failed to load configuration file: %w", err)
		}
		printer.Cycle("Merging with " + config.EnvPrefix + "_* environment variables")
		cfg, err := config.NewLoader().Load(configFile)
		if err != nil {
			return nil, err
		}
		printer.Success("Configuration loaded successfully")
		return cfg, nil

	case envOnly:
		printer.Lock("Loading configuration from " + config.EnvPrefix + "_* environment variables")
		cfg, err := config.NewLoader().Load("")
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration from environment: %w", err)
		}
		printer.Success("Configuration loaded successfully")
		return cfg, nil

	default:
		return nil, fmt.Errorf("either --config or --env-only must be specified")
	}
}

func summarize(cfg *ports.Configuration) *Config {
	c := &Config{
		EnclaveType: cfg.Node.EnclaveType,
		Purpose:     cfg.Node.Purpose,
		StorePath:   cfg.Node.StorePath,
	}
	if cfg.PrimaryDomain != nil {
		c.PrimaryDomain = cfg.PrimaryDomain.Name
	}
	for _, d := range cfg.SecondaryDomains {
		c.SecondaryDomains = append(c.SecondaryDomains, d.Name)
	}
	return c
}

func displayConfiguration(printer *Printer, c *Config) {
	printer.Section("Configuration Details:")
	printer.Infof("   Enclave Type:   %s", c.EnclaveType)
	printer.Infof("   Purpose:        %s", c.Purpose)
	printer.Infof("   Store Path:     %s", c.StorePath)
	if c.PrimaryDomain != "" {
		printer.Infof("   Primary Domain: %s", c.PrimaryDomain)
	}
	for _, name := range c.SecondaryDomains {
		printer.Infof("   Secondary:      %s", name)
	}
}

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	if stderrors.As(err, &ee) {
		return ee.code
	}
	return ExitUsageError
}

func main() {
	cmd := newRootCmd()
	err := cmd.ExecuteContext(context.Background())
	if err != nil {
		var ee *exitError
		if !stderrors.As(err, &ee) || ee.code == ExitUsageError {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	os.Exit(exitCode(err))
}
