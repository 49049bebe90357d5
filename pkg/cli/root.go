// Package cli is dispatchd's command surface, grounded on
// _examples/getmockd-mockd/pkg/cli/root.go's cobra root-command idiom:
// a package-level rootCmd, subcommands attaching themselves from their
// own init(), and an Execute() entry point called once from main.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is injected at build time via ldflags.
	Version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "dispatchd",
	Short: "dispatchd is a scriptable HTTP mock and forwarding server",
	Long: `dispatchd matches inbound HTTP requests against a list of expectations
and executes the action attached to the first match: return a canned
response, render a template, forward to an origin, invoke a callback, or
inject a transport-level fault. Unmatched requests fall through to a
transparent proxy.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command; main calls this once.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
