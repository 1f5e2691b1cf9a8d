// Package cli provides the command-line interface of a certifier node.
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the certifier-cli command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "certifier-cli",
		Short: "Confidential computing certifier node",
		Long: `Confidential computing certifier node.

certifier-cli provisions enclave keys, keeps the sealed policy store,
obtains admission certificates from the node's primary and secondary
domains and runs the sample application over channels authenticated by
those certificates.

Configuration is read from --config and overridden by CERTIFIER_* environment
variables, e.g. CERTIFIER_NODE_STORE_PATH.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	root.PersistentFlags().String("log-format", "", "Log format: text or json")
	root.PersistentFlags().StringP("format", "o", "text", "Output format: text or json")
	_ = root.MarkPersistentFlagFilename("config", "yaml", "yml")

	root.AddCommand(
		newColdInitCmd(),
		newWarmRestartCmd(),
		newCertifyMeCmd(),
		newCertifyDomainCmd(),
		newRunAppAsServerCmd(),
		newRunAppAsClientCmd(),
		newStatusCmd(),
		newStoreCmd(),
		newServeCmd(),
		newVersionCmd(),
		newManCmd(),
	)
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
