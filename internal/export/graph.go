// ABOUTME: Exports a SpecState as a DOT graph: one node per card, shaped by card_type.
// ABOUTME: Edges chain a pipeline across lanes in priority order; decision refs carry condition branches.
package export

import (
	"fmt"
	"strings"

	"github.com/awalterschulze/gographviz"
	"github.com/oklog/ulid/v2"
	"github.com/specdaemon/specd/internal/core"
)

const (
	shapeDecision = "diamond"
	shapeTask     = "parallelogram"
	shapeWait     = "hexagon"
	shapeGeneric  = "box"
)

// nodeShape returns the DOT shape for a card, per its card_type.
func nodeShape(cardType string) string {
	switch cardType {
	case "decision":
		return shapeDecision
	case "task":
		return shapeTask
	case "wait_for_human", "open_question":
		return shapeWait
	default:
		return shapeGeneric
	}
}

func nodeID(id ulid.ULID) string {
	return "card_" + id.String()
}

// sanitizeGraphName derives the DOT digraph's identifier from a spec_id, per
// spec.md §4.J's "digraph <spec_id_sanitized> { ... }" header. ULIDs are
// already alnum, but DOT bare identifiers can't start with a digit, so the
// result is always prefixed.
func sanitizeGraphName(specID ulid.ULID) string {
	raw := specID.String()
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return "spec_" + b.String()
}

// branchTarget is one outgoing edge out of a decision card carrying a
// condition attribute, instead of a plain pipeline edge.
type branchTarget struct {
	target  ulid.ULID
	outcome string
}

// decisionBranches reads a decision card's refs as its alternative outcomes:
// the first resolvable ref is the SUCCESS branch, the second is the FAIL
// branch; refs beyond that, refs to unknown cards, and refs on non-decision
// cards are ignored. Cards of any other type flow straight through the
// lane-ordered pipeline instead.
func decisionBranches(card core.Card, known map[ulid.ULID]bool) []branchTarget {
	if card.CardType != "decision" || len(card.Refs) == 0 {
		return nil
	}
	outcomes := []string{"outcome=SUCCESS", "outcome=FAIL"}
	var branches []branchTarget
	for _, refStr := range card.Refs {
		if len(branches) >= len(outcomes) {
			break
		}
		refID, err := ulid.Parse(refStr)
		if err != nil || refID == card.CardID || !known[refID] {
			continue
		}
		branches = append(branches, branchTarget{target: refID, outcome: outcomes[len(branches)]})
	}
	return branches
}

// pipelineOrder flattens every card into the single sequence the graph
// exporter chains edges across: lanes in priority order, cards within a
// lane in (order, card_id) order — the same ordering the document exporter
// renders lanes in.
func pipelineOrder(state *core.SpecState) []core.Card {
	byLane := groupCardsByLane(state)
	var seq []core.Card
	for _, lane := range orderedLaneNames(state, byLane) {
		seq = append(seq, byLane[lane]...)
	}
	return seq
}

func sanitizeCommand(title string) string {
	lower := strings.ToLower(title)
	var b strings.Builder
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `"`, `\"`) + `"`
}

// ExportDOT renders state's cards as a DOT digraph and self-checks the
// output by parsing it with a real DOT parser before returning it. Edges
// synthesize a single pipeline across lanes in priority order; a decision
// card whose refs name alternative next steps breaks the plain chain into
// condition-carrying SUCCESS/FAIL edges at that point instead.
func ExportDOT(state *core.SpecState) (string, error) {
	var out strings.Builder
	fmt.Fprintf(&out, "digraph %s {\n", sanitizeGraphName(state.Core.SpecID))
	fmt.Fprintln(&out, `  rankdir="TB";`)

	fmt.Fprintf(&out, "  start [shape=Mdiamond, label=%s];\n", quote("start"))
	fmt.Fprintf(&out, "  end [shape=Msquare, label=%s];\n", quote("end"))

	seq := pipelineOrder(state)
	known := make(map[ulid.ULID]bool, len(seq))
	for _, card := range seq {
		known[card.CardID] = true
	}

	for _, card := range seq {
		shape := nodeShape(card.CardType)
		attrs := fmt.Sprintf("shape=%s, label=%s", shape, quote(card.Title))
		switch card.CardType {
		case "task":
			attrs += fmt.Sprintf(`, command=%s`, quote(sanitizeCommand(card.Title)))
		case "wait_for_human", "open_question":
			attrs += fmt.Sprintf(`, type=%s`, quote("wait.human"))
		}
		fmt.Fprintf(&out, "  %s [%s];\n", nodeID(card.CardID), attrs)
	}

	if len(seq) > 0 {
		fmt.Fprintf(&out, "  start -> %s;\n", nodeID(seq[0].CardID))
	}

	hasOutgoing := make(map[ulid.ULID]bool, len(seq))
	for i, card := range seq {
		if branches := decisionBranches(card, known); len(branches) > 0 {
			for _, b := range branches {
				fmt.Fprintf(&out, "  %s -> %s [condition=%s];\n", nodeID(card.CardID), nodeID(b.target), quote(b.outcome))
			}
			hasOutgoing[card.CardID] = true
			continue
		}
		if i+1 < len(seq) {
			fmt.Fprintf(&out, "  %s -> %s;\n", nodeID(card.CardID), nodeID(seq[i+1].CardID))
			hasOutgoing[card.CardID] = true
		}
	}
	for _, card := range seq {
		if !hasOutgoing[card.CardID] {
			fmt.Fprintf(&out, "  %s -> end;\n", nodeID(card.CardID))
		}
	}

	fmt.Fprintln(&out, "}")
	dot := out.String()

	// Self-check the generated DOT by parsing it back. gographviz.Analyse is
	// deliberately not used here: it resolves the parsed AST into a Graph
	// and in doing so touches attribute handling that isn't guaranteed to
	// tolerate the custom attributes this exporter writes (command, type,
	// condition aren't real Graphviz attributes). ParseString alone is
	// enough to catch a malformed DOT body, which is the failure mode this
	// check exists for.
	if _, err := gographviz.ParseString(dot); err != nil {
		return "", fmt.Errorf("export: generated DOT failed to parse: %w", err)
	}
	return dot, nil
}
