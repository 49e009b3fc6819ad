// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nivex/fastgate/internal/command"
	"github.com/nivex/fastgate/internal/config"
)

// ruleCmd groups whitelist rule management subcommands.
var ruleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Manage whitelist rules",
	Long: `Manage the daemon's whitelist rules at runtime.

Rules come in two roles:
  client    match a frame's source address
  listener  match a frame's destination port
Each rule carries a protocol list (tcp, udp, icmp, icmpv6, all).`,
}

var (
	ruleRole      string
	ruleAddress   string
	rulePort      uint16
	ruleProtocols []string
)

var ruleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or overwrite a whitelist rule",
	Run: func(cmd *cobra.Command, args []string) {
		runRuleAdd()
	},
}

var ruleRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a whitelist rule",
	Run: func(cmd *cobra.Command, args []string) {
		runRuleRemove()
	},
}

var ruleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active whitelist rules",
	Run: func(cmd *cobra.Command, args []string) {
		runRuleList()
	},
}

var ruleLoadCmd = &cobra.Command{
	Use:   "load <rules-file>",
	Short: "Load whitelist rules from a YAML file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runRuleLoad(args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{ruleAddCmd, ruleRemoveCmd} {
		c.Flags().StringVarP(&ruleRole, "role", "r", "", "rule role: client or listener (required)")
		c.Flags().StringVarP(&ruleAddress, "address", "a", "", "source address (client role)")
		c.Flags().Uint16VarP(&rulePort, "port", "p", 0, "destination port (listener role)")
		c.MarkFlagRequired("role")
	}
	ruleAddCmd.Flags().StringSliceVarP(&ruleProtocols, "protocols", "P", nil,
		"allowed protocols (tcp,udp,icmp,icmpv6,all); empty means all")

	ruleCmd.AddCommand(ruleAddCmd)
	ruleCmd.AddCommand(ruleRemoveCmd)
	ruleCmd.AddCommand(ruleListCmd)
	ruleCmd.AddCommand(ruleLoadCmd)
}

func runRuleAdd() {
	client := command.NewUDSClient(socketPath, 10*time.Second)
	ctx := context.Background()

	rule := config.RuleConfig{
		Role:      ruleRole,
		Address:   ruleAddress,
		Port:      rulePort,
		Protocols: ruleProtocols,
	}
	if err := rule.Validate(); err != nil {
		exitWithError("invalid rule", err)
	}

	resp, err := client.RuleUpsert(ctx, rule)
	if err != nil {
		exitWithError("failed to send rule_upsert", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("rule_upsert failed: %s", resp.Error.Message), nil)
	}

	fmt.Println("Rule added.")
}

func runRuleRemove() {
	client := command.NewUDSClient(socketPath, 10*time.Second)
	ctx := context.Background()

	resp, err := client.RuleRemove(ctx, command.RuleRemoveParams{
		Role:    ruleRole,
		Address: ruleAddress,
		Port:    rulePort,
	})
	if err != nil {
		exitWithError("failed to send rule_remove", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("rule_remove failed: %s", resp.Error.Message), nil)
	}

	fmt.Println("Rule removed.")
}

func runRuleList() {
	client := command.NewUDSClient(socketPath, 10*time.Second)
	ctx := context.Background()

	resp, err := client.RuleList(ctx)
	if err != nil {
		exitWithError("failed to send rule_list", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("rule_list failed: %s", resp.Error.Message), nil)
	}

	resultJSON, err := json.MarshalIndent(resp.Result, "", "  ")
	if err != nil {
		exitWithError("failed to format result", err)
	}

	fmt.Println(string(resultJSON))
}

func runRuleLoad(path string) {
	rf, err := config.LoadRules(path)
	if err != nil {
		exitWithError("failed to load rules file", err)
	}

	client := command.NewUDSClient(socketPath, 10*time.Second)
	ctx := context.Background()

	applied := 0
	for i, rule := range rf.Rules {
		resp, err := client.RuleUpsert(ctx, rule)
		if err != nil {
			exitWithError(fmt.Sprintf("failed to send rule %d", i), err)
		}
		if resp.Error != nil {
			exitWithError(fmt.Sprintf("rule %d rejected: %s", i, resp.Error.Message), nil)
		}
		applied++
	}

	fmt.Printf("Loaded %d rule(s) from %s.\n", applied, path)
}
