// ABOUTME: Tests for Context creation, event folding, snapshot round-trips, and compaction.
package agentctx

import (
	"testing"

	"github.com/specdaemon/specd/internal/core"
)

func TestNewContextIsEmpty(t *testing.T) {
	specID := core.NewULID()
	ctx := New(specID, "planner-1")

	if ctx.SpecID != specID {
		t.Errorf("SpecID = %s, want %s", ctx.SpecID, specID)
	}
	if ctx.AgentID != "planner-1" {
		t.Errorf("AgentID = %q, want %q", ctx.AgentID, "planner-1")
	}
	if ctx.RollingSummary != "" {
		t.Error("expected empty rolling summary")
	}
	if len(ctx.KeyDecisions) != 0 {
		t.Error("expected empty key decisions")
	}
	if ctx.LastEventSeen != 0 {
		t.Errorf("LastEventSeen = %d, want 0", ctx.LastEventSeen)
	}
}

func TestUpdateFromEventsAdvancesCursorAndSkipsSeen(t *testing.T) {
	specID := core.NewULID()
	ctx := New(specID, "manager-1")

	card := core.NewCard("task", "write docs", "manager-1")
	events := []core.Event{
		{EventID: 1, Payload: core.SpecCreatedPayload{SpecID: specID, Title: "Widget", OneLiner: "o", Goal: "g"}},
		{EventID: 2, Payload: core.CardCreatedPayload{Card: card}},
	}
	ctx.UpdateFromEvents(events)

	if ctx.LastEventSeen != 2 {
		t.Fatalf("LastEventSeen = %d, want 2", ctx.LastEventSeen)
	}
	if ctx.RollingSummary == "" {
		t.Fatal("expected non-empty rolling summary")
	}

	prior := ctx.RollingSummary
	ctx.UpdateFromEvents(events)
	if ctx.RollingSummary != prior {
		t.Errorf("re-applying already-seen events changed the summary")
	}
}

func TestAddDecisionBoundsList(t *testing.T) {
	ctx := New(core.NewULID(), "brainstormer-1")
	for i := 0; i < MaxKeyDecisions+10; i++ {
		ctx.AddDecision("decision")
	}
	if len(ctx.KeyDecisions) != MaxKeyDecisions {
		t.Errorf("KeyDecisions len = %d, want %d", len(ctx.KeyDecisions), MaxKeyDecisions)
	}
}

func TestCompactSummaryTruncatesOverCap(t *testing.T) {
	ctx := New(core.NewULID(), "planner-1")
	entry := "Event #999: some description of a lengthy event"
	for i := 0; i < 200; i++ {
		if ctx.RollingSummary == "" {
			ctx.RollingSummary = entry
		} else {
			ctx.RollingSummary += "; " + entry
		}
	}
	if len(ctx.RollingSummary) <= RollingSummaryCap {
		t.Fatal("expected summary to exceed cap before compaction")
	}

	ctx.CompactSummary()

	if len(ctx.RollingSummary) > RollingSummaryCap+len("[earlier context compacted] ") {
		t.Errorf("compacted summary too long: %d chars", len(ctx.RollingSummary))
	}
	if ctx.RollingSummary[:1] != "[" {
		t.Errorf("expected compaction marker prefix, got %q", ctx.RollingSummary[:30])
	}
}

func TestSnapshotValueRoundTrip(t *testing.T) {
	specID := core.NewULID()
	ctx := New(specID, "planner-1")
	ctx.RollingSummary = "accumulated context"
	ctx.AddDecision("chose postgres over sqlite")
	ctx.LastEventSeen = 42

	restored, err := FromSnapshotValue(ctx.ToSnapshotValue())
	if err != nil {
		t.Fatalf("FromSnapshotValue: %v", err)
	}
	if restored.SpecID != specID {
		t.Errorf("SpecID = %s, want %s", restored.SpecID, specID)
	}
	if restored.RollingSummary != ctx.RollingSummary {
		t.Errorf("RollingSummary mismatch")
	}
	if len(restored.KeyDecisions) != 1 {
		t.Errorf("KeyDecisions len = %d, want 1", len(restored.KeyDecisions))
	}
	if restored.LastEventSeen != 42 {
		t.Errorf("LastEventSeen = %d, want 42", restored.LastEventSeen)
	}
}

func TestContextsMapRoundTripSkipsCorrupt(t *testing.T) {
	a := New(core.NewULID(), "agent-a")
	b := New(core.NewULID(), "agent-b")
	m := ContextsToSnapshotMap([]*Context{a, b})
	m["agent-c"] = []byte(`{not valid json`)

	restored := ContextsFromSnapshotMap(m)
	if len(restored) != 2 {
		t.Errorf("restored %d contexts, want 2 (corrupt entry should be skipped)", len(restored))
	}
}
