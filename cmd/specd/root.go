package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/specdaemon/specd/config"
	"github.com/specdaemon/specd/internal/registry"
)

var rootCmd = &cobra.Command{
	Use:   "specd",
	Short: "specd drives the event-sourced specification engine from a terminal",
	Long: `specd is the transport-collaborator stand-in for the specification
engine: it recovers every spec on disk, then lets you create specs, submit
commands, list what's registered, export a spec's board, replay its log,
and force a snapshot, all without an HTTP or SSE surface.`,
}

func init() {
	rootCmd.PersistentFlags().String("data_root", "", "root directory for spec storage (default: ~/.specd)")
	rootCmd.PersistentFlags().Int("mailbox_size", 0, "actor mailbox bound (default from config)")
	rootCmd.PersistentFlags().Int("broadcast_buffer_size", 0, "subscriber channel bound (default from config)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// openRegistry loads configuration, recovers every spec under the data
// root, and returns a live registry the caller must Shutdown when done.
func openRegistry(cmd *cobra.Command) (*registry.Registry, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	reg, err := registry.New(context.Background(), cfg.DataRoot, registry.Config{
		MailboxSize:          cfg.MailboxSize,
		BroadcastBufferSize:  cfg.BroadcastBufferSize,
		SnapshotEveryNEvents: cfg.SnapshotEveryNEvents,
		SnapshotInterval:     cfg.SnapshotInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	if err := reg.RecoverAll(); err != nil {
		return nil, fmt.Errorf("recover specs: %w", err)
	}
	return reg, nil
}

// waitForQuiescence gives background snapshot/index/export loops a brief
// window to react to a just-submitted command before the process exits;
// a one-shot CLI invocation has no long-running supervisor to rely on
// otherwise.
func waitForQuiescence() {
	time.Sleep(20 * time.Millisecond)
}
