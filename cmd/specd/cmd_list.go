package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every spec known to this data root",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = reg.Shutdown() }()

		summaries, err := reg.List(context.Background())
		if err != nil {
			return fmt.Errorf("list specs: %w", err)
		}
		if len(summaries) == 0 {
			fmt.Println("No specs found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SPEC_ID\tTITLE\tONE_LINER\tUPDATED_AT")
		for _, s := range summaries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.SpecID, s.Title, s.OneLiner, s.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		return w.Flush()
	},
}
