// certifier-cli is the command-line interface of a confidential computing
// certifier node.
//
// It provisions enclave keys, keeps the sealed policy store, and obtains
// admission certificates from the node's primary and secondary domains:
//
//	certifier-cli cold-init --config node.yaml
//	certifier-cli certify-me --config node.yaml
//	certifier-cli status --config node.yaml --format json
//
// certifier-cli serve runs a simulated certifier service for development.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sufield/certifier/internal/cli"
)

// Exit codes
const (
	exitOK            = 0
	exitRuntime       = 1
	exitUsage         = 2
	exitConfig        = 3
	exitCertification = 4
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx)
	stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %s\n", cli.RedactError(err))
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return exitOK
	case errors.Is(err, cli.ErrUsage):
		return exitUsage
	case errors.Is(err, cli.ErrConfig):
		return exitConfig
	case errors.Is(err, cli.ErrCertification):
		return exitCertification
	default:
		return exitRuntime
	}
}
