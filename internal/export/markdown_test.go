package export

import (
	"strings"
	"testing"

	"github.com/specdaemon/specd/internal/core"
)

func buildStateWithCards(t *testing.T) *core.SpecState {
	t.Helper()
	s := core.NewSpecState()
	ev := core.Event{EventID: 1, Payload: core.SpecCreatedPayload{
		SpecID: core.NewULID(), Title: "Widget Factory", OneLiner: "builds widgets", Goal: "ship v1",
	}}
	s.Apply(&ev)

	planCard := core.NewCard("task", "design the API", "agent")
	planCard.Lane = "Plan"
	ev2 := core.Event{EventID: 2, Payload: core.CardCreatedPayload{Card: planCard}}
	s.Apply(&ev2)

	ideaCard := core.NewCard("idea", "maybe use gRPC", "agent")
	ev3 := core.Event{EventID: 3, Payload: core.CardCreatedPayload{Card: ideaCard}}
	s.Apply(&ev3)

	return s
}

func TestExportMarkdownIncludesHeaderAndLanes(t *testing.T) {
	s := buildStateWithCards(t)
	md := ExportMarkdown(s)

	if !strings.Contains(md, "# Widget Factory") {
		t.Errorf("markdown missing title header:\n%s", md)
	}
	if !strings.Contains(md, "## Goal") {
		t.Errorf("markdown missing Goal section:\n%s", md)
	}
	if !strings.Contains(md, "## Plan") {
		t.Errorf("markdown missing Plan lane:\n%s", md)
	}
	if !strings.Contains(md, "design the API") {
		t.Errorf("markdown missing card title:\n%s", md)
	}

	ideasIdx := strings.Index(md, "## Ideas")
	planIdx := strings.Index(md, "## Plan")
	if ideasIdx == -1 || planIdx == -1 || ideasIdx > planIdx {
		t.Errorf("lane order wrong: Ideas should precede Plan, got Ideas=%d Plan=%d", ideasIdx, planIdx)
	}
}
