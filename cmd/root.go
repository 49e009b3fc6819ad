// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	socketPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fastgate",
	Short: "Fastgate - In-line packet classifier with whitelist-driven redirect",
	Long: `Fastgate is an in-line packet classification daemon. It inspects every
received Ethernet frame and decides whether to redirect it to a fast-path
queue, drop it, or pass it to the ordinary network stack.

Decisions are driven by two whitelist roles:
  - client:   frames whose source address is listed
  - listener: frames whose destination port is listed
Each entry carries a protocol bitmask (tcp/udp/icmp/icmpv6).

Control:
  - Local CLI via Unix Domain Socket (rule, log-level, status, stop)
  - Prometheus metrics endpoint
  - Optional AF_PACKET live capture and pcap replay`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/fastgate/config.yml",
		"config file path")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "/var/run/fastgate.sock",
		"daemon socket path")

	// Add subcommands
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(ruleCmd)
	rootCmd.AddCommand(logLevelCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(replayCmd)
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
