package main

import (
	"context"
	"fmt"
	"os"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/specdaemon/specd/internal/export"
)

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().String("format", "markdown", "one of: markdown, yaml, dot")
	exportCmd.Flags().String("out", "", "write to this file instead of stdout")
}

var exportCmd = &cobra.Command{
	Use:   "export <spec-id>",
	Short: "Render a spec's current board as markdown, yaml, or a dot graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		specID, err := ulid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("parse spec id: %w", err)
		}
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")

		reg, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = reg.Shutdown() }()

		handle, ok := reg.Get(specID)
		if !ok {
			return fmt.Errorf("spec %s not found under this data root", specID)
		}

		state, err := handle.Actor.ReadState(context.Background())
		if err != nil {
			return fmt.Errorf("read spec state: %w", err)
		}

		var rendered string
		switch format {
		case "markdown":
			rendered = export.ExportMarkdown(state)
		case "yaml":
			rendered, err = export.ExportYAML(state)
		case "dot":
			rendered, err = export.ExportDOT(state)
		default:
			return fmt.Errorf("unknown format %q, want markdown, yaml, or dot", format)
		}
		if err != nil {
			return fmt.Errorf("render %s export: %w", format, err)
		}

		if out == "" {
			fmt.Println(rendered)
			return nil
		}
		return os.WriteFile(out, []byte(rendered), 0o644)
	},
}
