// ABOUTME: Exports a SpecState as a deterministic Markdown document.
// ABOUTME: Section order: header, optional core fields, then lanes with cards.
package export

import (
	"fmt"
	"strings"

	"github.com/specdaemon/specd/internal/core"
)

// ExportMarkdown renders state as a Markdown string with deterministic
// ordering: lanes appear Ideas, Plan, Spec first, then any other lanes
// sorted alphabetically; cards within a lane are ordered by (order, card_id).
func ExportMarkdown(state *core.SpecState) string {
	var out strings.Builder

	c := state.Core
	fmt.Fprintf(&out, "# %s\n", c.Title)
	fmt.Fprintln(&out)
	fmt.Fprintf(&out, "> %s\n", c.OneLiner)
	fmt.Fprintln(&out)
	fmt.Fprintln(&out, "## Goal")
	fmt.Fprintln(&out)
	fmt.Fprintln(&out, c.Goal)

	if c.Description != nil {
		fmt.Fprintln(&out)
		fmt.Fprintln(&out, "## Description")
		fmt.Fprintln(&out)
		fmt.Fprintln(&out, *c.Description)
	}
	if c.Constraints != nil {
		fmt.Fprintln(&out)
		fmt.Fprintln(&out, "## Constraints")
		fmt.Fprintln(&out)
		fmt.Fprintln(&out, *c.Constraints)
	}
	if c.SuccessCriteria != nil {
		fmt.Fprintln(&out)
		fmt.Fprintln(&out, "## Success Criteria")
		fmt.Fprintln(&out)
		fmt.Fprintln(&out, *c.SuccessCriteria)
	}
	if c.Risks != nil {
		fmt.Fprintln(&out)
		fmt.Fprintln(&out, "## Risks")
		fmt.Fprintln(&out)
		fmt.Fprintln(&out, *c.Risks)
	}
	if c.Notes != nil {
		fmt.Fprintln(&out)
		fmt.Fprintln(&out, "## Notes")
		fmt.Fprintln(&out)
		fmt.Fprintln(&out, *c.Notes)
	}

	cardsByLane := groupCardsByLane(state)
	orderedLanes := orderedLaneNames(state, cardsByLane)

	if len(orderedLanes) > 0 {
		fmt.Fprintln(&out)
		fmt.Fprintln(&out, "---")

		for _, lane := range orderedLanes {
			fmt.Fprintln(&out)
			fmt.Fprintf(&out, "## %s\n", lane)

			for _, card := range cardsByLane[lane] {
				fmt.Fprintln(&out)
				fmt.Fprintf(&out, "### %s (%s)\n", card.Title, card.CardType)

				if card.Body != nil {
					fmt.Fprintln(&out)
					fmt.Fprintln(&out, *card.Body)
				}
				if len(card.Refs) > 0 {
					fmt.Fprintln(&out)
					fmt.Fprintf(&out, "Refs: %s\n", strings.Join(card.Refs, ", "))
				}
				fmt.Fprintf(&out, "Created by: %s at %s\n",
					card.CreatedBy, card.CreatedAt.Format("2006-01-02T15:04:05Z"))
			}
		}
	}

	return out.String()
}
