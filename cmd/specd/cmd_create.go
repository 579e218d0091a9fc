package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().String("title", "", "spec title (required)")
	createCmd.Flags().String("one-liner", "", "one-sentence description (required)")
	createCmd.Flags().String("goal", "", "the spec's goal (required)")
	_ = createCmd.MarkFlagRequired("title")
	_ = createCmd.MarkFlagRequired("one-liner")
	_ = createCmd.MarkFlagRequired("goal")
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new spec",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		oneLiner, _ := cmd.Flags().GetString("one-liner")
		goal, _ := cmd.Flags().GetString("goal")

		reg, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = reg.Shutdown() }()

		handle, err := reg.CreateSpec(context.Background(), title, oneLiner, goal)
		if err != nil {
			return fmt.Errorf("create spec: %w", err)
		}

		fmt.Println(handle.SpecID.String())
		return nil
	},
}
