package main

import (
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/specdaemon/specd/config"
	"github.com/specdaemon/specd/internal/store"
)

func init() {
	rootCmd.AddCommand(replayCmd)
}

var replayCmd = &cobra.Command{
	Use:   "replay <spec-id>",
	Short: "Repair and replay a spec's durable log independently of any running registry",
	Long: `replay runs the same recovery sequence the registry runs at startup
(snapshot load, torn-tail repair, tail replay, index staleness check) against
a single spec directory, and reports the outcome. Useful for diagnosing a
spec directory without spinning up its actor.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		specID, err := ulid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("parse spec id: %w", err)
		}

		cfg, err := config.Load(cmd.Flags())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		mgr, err := store.NewManager(cfg.DataRoot)
		if err != nil {
			return fmt.Errorf("open storage manager: %w", err)
		}

		recovered, err := store.RecoverSpec(specID, mgr.SpecDirPath(specID))
		if err != nil {
			return fmt.Errorf("replay spec: %w", err)
		}

		fmt.Printf("spec_id: %s\n", recovered.SpecID)
		fmt.Printf("title: %s\n", recovered.State.Core.Title)
		fmt.Printf("last_event_id: %d\n", recovered.LastEventID)
		fmt.Printf("cards: %d\n", recovered.State.Cards.Len())
		fmt.Printf("agent_contexts: %d\n", len(recovered.AgentContexts))
		return nil
	},
}
