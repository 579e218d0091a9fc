package main

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(snapshotCmd)
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <spec-id>",
	Short: "Force an immediate snapshot of a spec's current state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		specID, err := ulid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("parse spec id: %w", err)
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

		if err := handle.ForceSnapshot(context.Background()); err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		waitForQuiescence()
		fmt.Println("snapshot saved")
		return nil
	},
}
