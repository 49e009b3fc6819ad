// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nivex/fastgate/internal/command"
)

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the fastgate daemon",
	Long: `Stop the fastgate daemon gracefully.

This command sends a shutdown request to the running daemon via Unix
Domain Socket. The daemon stops capture, drains the event stream, and
exits cleanly.`,
	Run: func(cmd *cobra.Command, args []string) {
		runStopCommand()
	},
}

func runStopCommand() {
	client := command.NewUDSClient(socketPath, 10*time.Second)
	ctx := context.Background()

	if err := client.Ping(ctx); err != nil {
		exitWithError("daemon is not running or socket is inaccessible", err)
	}

	resp, err := client.DaemonShutdown(ctx)
	if err != nil {
		exitWithError("failed to send daemon_shutdown", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("daemon_shutdown failed: %s", resp.Error.Message), nil)
	}

	fmt.Println("Shutdown requested.")
}
