package export

import (
	"strings"
	"testing"

	"github.com/specdaemon/specd/internal/core"
)

func TestExportDOTShapesByCardType(t *testing.T) {
	s := core.NewSpecState()
	ev := core.Event{EventID: 1, Payload: core.SpecCreatedPayload{SpecID: core.NewULID(), Title: "t", OneLiner: "o", Goal: "g"}}
	s.Apply(&ev)

	decision := core.NewCard("decision", "pick a database", "agent")
	task := core.NewCard("task", "write migration", "agent")
	wait := core.NewCard("wait_for_human", "approve budget", "agent")
	generic := core.NewCard("idea", "brainstorm", "agent")

	for i, c := range []core.Card{decision, task, wait, generic} {
		ev := core.Event{EventID: uint64(i + 2), Payload: core.CardCreatedPayload{Card: c}}
		s.Apply(&ev)
	}

	dot, err := ExportDOT(s)
	if err != nil {
		t.Fatalf("ExportDOT: %v", err)
	}

	if !strings.Contains(dot, "shape=diamond") {
		t.Errorf("dot missing decision diamond shape:\n%s", dot)
	}
	if !strings.Contains(dot, "shape=parallelogram") {
		t.Errorf("dot missing task parallelogram shape:\n%s", dot)
	}
	if !strings.Contains(dot, "shape=hexagon") {
		t.Errorf("dot missing wait_for_human hexagon shape:\n%s", dot)
	}
	if !strings.Contains(dot, "shape=box") {
		t.Errorf("dot missing generic box shape:\n%s", dot)
	}
	if !strings.Contains(dot, "shape=Mdiamond") {
		t.Errorf("dot missing start node:\n%s", dot)
	}
	if !strings.Contains(dot, "shape=Msquare") {
		t.Errorf("dot missing terminal node:\n%s", dot)
	}
}

func TestExportDOTChainsPipelineAcrossLanesInPriorityOrder(t *testing.T) {
	s := core.NewSpecState()
	ev := core.Event{EventID: 1, Payload: core.SpecCreatedPayload{SpecID: core.NewULID(), Title: "t", OneLiner: "o", Goal: "g"}}
	s.Apply(&ev)

	first := core.NewCard("task", "idea stage", "agent")
	first.Lane = "Ideas"
	second := core.NewCard("task", "plan stage", "agent")
	second.Lane = "Plan"

	for i, c := range []core.Card{first, second} {
		ev := core.Event{EventID: uint64(i + 2), Payload: core.CardCreatedPayload{Card: c}}
		s.Apply(&ev)
	}

	dot, err := ExportDOT(s)
	if err != nil {
		t.Fatalf("ExportDOT: %v", err)
	}
	if !strings.Contains(dot, "start -> card_"+first.CardID.String()) {
		t.Errorf("dot missing start->first edge:\n%s", dot)
	}
	if !strings.Contains(dot, "card_"+first.CardID.String()+" -> card_"+second.CardID.String()) {
		t.Errorf("dot missing pipeline edge from Ideas card to Plan card:\n%s", dot)
	}
	if !strings.Contains(dot, "card_"+second.CardID.String()+" -> end") {
		t.Errorf("dot missing last-stage->end edge:\n%s", dot)
	}
}

func TestExportDOTDecisionRefsBecomeConditionBranches(t *testing.T) {
	s := core.NewSpecState()
	ev := core.Event{EventID: 1, Payload: core.SpecCreatedPayload{SpecID: core.NewULID(), Title: "t", OneLiner: "o", Goal: "g"}}
	s.Apply(&ev)

	onSuccess := core.NewCard("task", "ship it", "agent")
	onFail := core.NewCard("task", "roll back", "agent")
	decision := core.NewCard("decision", "did the deploy pass", "agent")
	decision.Refs = []string{onSuccess.CardID.String(), onFail.CardID.String()}

	for i, c := range []core.Card{onSuccess, onFail, decision} {
		ev := core.Event{EventID: uint64(i + 2), Payload: core.CardCreatedPayload{Card: c}}
		s.Apply(&ev)
	}

	dot, err := ExportDOT(s)
	if err != nil {
		t.Fatalf("ExportDOT: %v", err)
	}
	wantSuccess := "card_" + decision.CardID.String() + " -> card_" + onSuccess.CardID.String() + ` [condition="outcome=SUCCESS"];`
	wantFail := "card_" + decision.CardID.String() + " -> card_" + onFail.CardID.String() + ` [condition="outcome=FAIL"];`
	if !strings.Contains(dot, wantSuccess) {
		t.Errorf("dot missing SUCCESS branch edge:\n%s\nwant: %s", dot, wantSuccess)
	}
	if !strings.Contains(dot, wantFail) {
		t.Errorf("dot missing FAIL branch edge:\n%s\nwant: %s", dot, wantFail)
	}
}

func TestExportDOTGraphNameIsDerivedFromSpecID(t *testing.T) {
	s := core.NewSpecState()
	specID := core.NewULID()
	ev := core.Event{EventID: 1, Payload: core.SpecCreatedPayload{SpecID: specID, Title: "t", OneLiner: "o", Goal: "g"}}
	s.Apply(&ev)

	dot, err := ExportDOT(s)
	if err != nil {
		t.Fatalf("ExportDOT: %v", err)
	}
	want := "digraph " + sanitizeGraphName(specID) + " {"
	if !strings.HasPrefix(dot, want) {
		t.Errorf("dot header = %q, want prefix %q", dot, want)
	}
}
