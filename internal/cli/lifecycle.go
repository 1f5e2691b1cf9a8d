package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newColdInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cold-init",
		Short: "Provision fresh enclave keys and a new policy store",
		Long: `Generate the node's identity key and symmetric key inside the enclave and
write a new sealed policy store. Admission certificates issued for earlier
keys are dropped.

The simulated enclave's platform key is created when node.platform_key_file
does not exist yet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := openNode(cmd, nodeOptions{createPlatformKey: true})
			if err != nil {
				return err
			}
			defer n.Close()

			if err := n.td.ColdInit(cmd.Context()); err != nil {
				return classify(err)
			}
			if p := n.td.PrimaryDomain(); p != nil && len(p.Certificate) > 0 {
				if err := n.td.InitPolicyKey(p.Certificate); err != nil {
					return classify(err)
				}
				if err := n.td.Save(cmd.Context()); err != nil {
					return classify(err)
				}
			}
			return printStatus(cmd, n.td)
		},
	}
}

func newWarmRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "warm-restart",
		Short: "Recover the node state from the sealed policy store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := openNode(cmd, nodeOptions{restore: true})
			if err != nil {
				return err
			}
			defer n.Close()
			return printStatus(cmd, n.td)
		},
	}
}

func newCertifyMeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "certify-me",
		Aliases: []string{"get-certifier"},
		Short:   "Certify the node with its primary and secondary domains",
		Long: `Load the policy key, obtain an admission certificate from the primary
domain, then from every secondary domain. Secondary failures are reported but
only fatal when policy.require_secondary is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := openNode(cmd, nodeOptions{restore: true})
			if err != nil {
				return err
			}
			defer n.Close()

			if err := n.td.CertifyMe(cmd.Context()); err != nil {
				return classify(err)
			}
			return printStatus(cmd, n.td)
		},
	}
}

func newCertifyDomainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "certify-domain <name>",
		Short: "Certify the node with one registered domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openNode(cmd, nodeOptions{restore: true})
			if err != nil {
				return err
			}
			defer n.Close()

			if err := n.td.CertifyDomain(cmd.Context(), args[0]); err != nil {
				return classify(err)
			}
			if err := n.td.Save(cmd.Context()); err != nil {
				return classify(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Domain %s certified\n", args[0])
			return nil
		},
	}
}
