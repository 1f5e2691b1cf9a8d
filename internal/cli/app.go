package cli

import (
	"context"
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/sufield/certifier/internal/adapters/secondary/transport"
	"github.com/sufield/certifier/internal/core/ports"
	"github.com/sufield/certifier/internal/shutdown"
)

// DefaultAppAddress is where the sample application listens and connects.
const DefaultAppAddress = "localhost:8124"

func addAppFlags(cmd *cobra.Command) {
	cmd.Flags().String("domain", "", "Domain whose admission certificate authenticates the channel (default: primary_domain.name)")
	cmd.Flags().String("address", DefaultAppAddress, "Application address")
}

func newRunAppAsServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-app-as-server",
		Short: "Serve the sample application over a certified secure channel",
		Long: `Recover the node state, then serve the sample application over mutually
authenticated TLS. The server presents the admission certificate of --domain
and only accepts clients admitted into the same domain.`,
		Args: cobra.NoArgs,
		RunE: runAppAsServer,
	}
	addAppFlags(cmd)
	return cmd
}

func newRunAppAsClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-app-as-client",
		Short: "Greet the sample application over a certified secure channel",
		Args:  cobra.NoArgs,
		RunE:  runAppAsClient,
	}
	addAppFlags(cmd)
	return cmd
}

// appIdentity returns the channel identity of the domain named by --domain.
func appIdentity(cmd *cobra.Command, n *node) (string, transport.Identity, error) {
	name, _ := cmd.Flags().GetString("domain")
	if name == "" {
		if p := n.td.PrimaryDomain(); p != nil {
			name = p.Name
		}
	}
	if name == "" {
		return "", transport.Identity{}, fmt.Errorf("%w: --domain or primary_domain.name is required", ErrUsage)
	}
	creds, err := n.td.Credentials(name)
	if err != nil {
		return "", transport.Identity{}, classify(fmt.Errorf("%w; run certify-me first", err))
	}
	return name, transport.Identity{
		AdmissionCert: creds.AdmissionCert,
		PrivateKey:    creds.PrivateKey,
		PolicyCert:    creds.PolicyCert,
	}, nil
}

func runAppAsServer(cmd *cobra.Command, _ []string) error {
	n, err := openNode(cmd, nodeOptions{restore: true})
	if err != nil {
		return err
	}
	defer n.Close()
	logger := newLogger(cmd.ErrOrStderr(), n.cfg)

	name, id, err := appIdentity(cmd, n)
	if err != nil {
		return err
	}
	app := &transport.GreetingApp{
		Greeting: transport.ServerGreeting,
		OnHello: func(peerID, message string) {
			logger.Info("client says hello", "peer", peerID, "message", message)
		},
	}
	srv, err := transport.NewSecureServer(id, app, logger)
	if err != nil {
		return classify(err)
	}

	ctx := cmd.Context()
	address, _ := cmd.Flags().GetString("address")
	lis, err := (&net.ListenConfig{}).Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("%w: listen on %s: %v", ErrRuntime, address, err)
	}

	coord := shutdown.NewCoordinator(n.cfg.Certifier.Timeout, logger)
	coord.Register(shutdown.Component{
		Name: "application server",
		Stop: func(context.Context) error {
			srv.GracefulStop()
			return nil
		},
		Force: srv.Stop,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()
	logger.Info("application listening", "domain", name, "address", lis.Addr().String())

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

func runAppAsClient(cmd *cobra.Command, _ []string) error {
	n, err := openNode(cmd, nodeOptions{restore: true})
	if err != nil {
		return err
	}
	defer n.Close()

	_, id, err := appIdentity(cmd, n)
	if err != nil {
		return err
	}
	address, _ := cmd.Flags().GetString("address")
	conn, err := transport.DialSecure(address, id)
	if err != nil {
		return classify(err)
	}
	defer conn.Close()

	timeout := n.cfg.Certifier.Timeout
	if timeout <= 0 {
		timeout = ports.DefaultCertifierTimeout
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	reply, err := transport.Hello(ctx, conn, transport.ClientGreeting)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRuntime, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Server says: %s\n", reply.Message)
	return nil
}
