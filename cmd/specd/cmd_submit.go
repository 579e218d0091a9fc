package main

import (
	"context"
	"fmt"
	"os"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/specdaemon/specd/internal/core"
)

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().String("file", "", "read the command JSON from this file instead of the argument")
}

var submitCmd = &cobra.Command{
	Use:   "submit <spec-id> [command-json]",
	Short: "Submit a single tagged-union command to a spec's actor",
	Long: `submit sends one command to a running spec, e.g.:

  specd submit 01ARZ3... '{"type":"create_card","card_type":"task","title":"write docs","created_by":"cli"}'

The command JSON uses the same "type"-discriminated wire format the actor
persists to its durable log.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		specID, err := ulid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("parse spec id: %w", err)
		}

		var raw []byte
		if file, _ := cmd.Flags().GetString("file"); file != "" {
			raw, err = os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read command file: %w", err)
			}
		} else if len(args) == 2 {
			raw = []byte(args[1])
		} else {
			return fmt.Errorf("provide a command JSON argument or --file")
		}

		command, err := core.UnmarshalCommand(raw)
		if err != nil {
			return fmt.Errorf("parse command: %w", err)
		}

		reg, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = reg.Shutdown() }()

		handle, ok := reg.Get(specID)
		if !ok {
			return fmt.Errorf("spec %s not found under this data root", specID)
		}

		events, err := handle.Actor.SendCommand(context.Background(), command)
		if err != nil {
			return fmt.Errorf("submit command: %w", err)
		}

		for _, ev := range events {
			data, err := core.MarshalEventPayload(ev.Payload)
			if err != nil {
				return fmt.Errorf("marshal resulting event: %w", err)
			}
			fmt.Printf("event #%d: %s\n", ev.EventID, data)
		}
		waitForQuiescence()
		return nil
	},
}
