package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	errspkg "github.com/couriermq/courier/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "courierd",
		Short: "Lightweight message broker over masked TCP sockets",
		Long: `Courierd runs the courier message broker.

A broker accepts length-prefixed envelope frames over TCP, verifies their
signatures, and fans each message out to every connection subscribed to its
topic. Producers that cannot hold a socket open can post the same frames to
the optional HTTP webhook. Prometheus metrics are exposed when enabled.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		sendCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error-code registry onto the sysexits range: code 1001
// exits with 65, 1002 with 66, and so on. Unclassified errors exit with 1.
func exitCode(err error) int {
	kind := errspkg.KindOf(err)
	if kind == errspkg.KindUnknown {
		return 1
	}
	return 64 + int(errspkg.CodeFor(kind)-errspkg.CodeUnknown)
}
