// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nivex/fastgate/internal/classifier"
	"github.com/nivex/fastgate/internal/command"
	"github.com/nivex/fastgate/internal/config"
	"github.com/nivex/fastgate/internal/core"
	"github.com/nivex/fastgate/internal/event"
	logpkg "github.com/nivex/fastgate/internal/log"
	"github.com/nivex/fastgate/internal/source/file"
	"github.com/nivex/fastgate/internal/whitelist"
)

// replayCmd runs the classifier offline over a pcap capture, without a
// daemon. Useful for validating a rule set against recorded traffic.
var replayCmd = &cobra.Command{
	Use:   "replay <pcap-file>",
	Short: "Classify frames from a pcap file",
	Long: `Replay a pcap capture through the classifier and print a decision
summary. Rules are taken from the config file plus an optional
standalone rules file. No daemon is required.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runReplay(args[0]); err != nil {
			exitWithError("replay failed", err)
		}
	},
}

var replayRulesFile string

func init() {
	replayCmd.Flags().StringVarP(&replayRulesFile, "rules", "r", "",
		"additional rules YAML file")
}

func runReplay(pcapPath string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		// Replay can run without a config file; fall back to defaults.
		fmt.Fprintf(os.Stderr, "Warning: %v, using defaults\n", err)
		cfg = config.Default()
	}

	if err := logpkg.Init(cfg.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	tables := whitelist.New(
		cfg.Filter.SrcV4Capacity,
		cfg.Filter.SrcV6Capacity,
		cfg.Filter.DstPortCapacity,
	)
	for i, rule := range cfg.Filter.Rules {
		if err := command.ApplyRule(tables, rule); err != nil {
			return fmt.Errorf("config rule %d: %w", i, err)
		}
	}
	if replayRulesFile != "" {
		rf, err := config.LoadRules(replayRulesFile)
		if err != nil {
			return err
		}
		for i, rule := range rf.Rules {
			if err := command.ApplyRule(tables, rule); err != nil {
				return fmt.Errorf("rules file entry %d: %w", i, err)
			}
		}
	}

	minSev, err := event.ParseSeverity(cfg.Events.MinSeverity)
	if err != nil {
		return err
	}
	sink := event.NewChannelSink(cfg.Events.BufferSize)
	emitter := event.NewEmitter(sink, minSev)
	consumer := event.NewConsumer(sink, emitter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go consumer.Run(ctx)

	resolver := classifier.NewResolver()
	if err := resolver.Register(cfg.Filter.QueueIndex, int64(os.Getpid())); err != nil {
		return err
	}
	cls := classifier.New(tables, emitter, resolver, cfg.Filter.QueueIndex)

	src, err := file.NewSource(pcapPath)
	if err != nil {
		return err
	}
	if err := src.Start(ctx); err != nil {
		return err
	}
	defer src.Stop()

	var frames, redirects, drops, passes int
	for {
		data, _, err := src.ReadPacket()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}

		frames++
		switch cls.Classify(data).Action {
		case core.ActionRedirect:
			redirects++
		case core.ActionDrop:
			drops++
		default:
			passes++
		}
	}

	fmt.Printf("Replayed %d frame(s) from %s\n", frames, pcapPath)
	fmt.Printf("  redirect: %d\n", redirects)
	fmt.Printf("  drop:     %d\n", drops)
	fmt.Printf("  pass:     %d\n", passes)
	fmt.Printf("  events:   %d emitted, %d lost\n", emitter.Emitted(), emitter.Dropped())
	return nil
}
