// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nivex/fastgate/internal/command"
)

// logLevelCmd adjusts daemon verbosity at runtime.
var logLevelCmd = &cobra.Command{
	Use:   "log-level <debug|info|warn|error>",
	Short: "Set daemon log level and event severity floor",
	Long: `Set the daemon's log level at runtime.

The same threshold also gates the classification event stream: events
below the level are filtered at the source before they reach the log
channel.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runLogLevelCommand(args[0])
	},
}

func runLogLevelCommand(level string) {
	client := command.NewUDSClient(socketPath, 10*time.Second)
	ctx := context.Background()

	resp, err := client.LogLevelSet(ctx, level)
	if err != nil {
		exitWithError("failed to send log_level_set", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("log_level_set failed: %s", resp.Error.Message), nil)
	}

	fmt.Printf("Log level set to %s.\n", level)
}
