package core

import (
	"reflect"
	"testing"
)

func TestCommandRoundTrip(t *testing.T) {
	cards := NewULID()
	cases := []Command{
		CreateSpecCommand{Title: "t", OneLiner: "o", Goal: "g"},
		UpdateCoreCommand{Description: Present("d"), Risks: Null[string]()},
		CreateCardCommand{CardType: "task", Title: "t", Lane: "Plan", CreatedBy: "agent"},
		UpdateCardCommand{CardID: cards, Title: strPtr("new title"), Body: Present("new body"), UpdatedBy: "agent"},
		UpdateCardCommand{CardID: cards, Body: Null[string](), UpdatedBy: "agent"},
		MoveCardCommand{CardID: cards, Lane: "Spec", Order: 1.5, UpdatedBy: "agent"},
		DeleteCardCommand{CardID: cards},
		AppendTranscriptCommand{AgentID: "agent", Text: "hi"},
		StartAgentStepCommand{AgentID: "agent", Text: "starting"},
		FinishAgentStepCommand{AgentID: "agent", Text: "done"},
		AskQuestionCommand{Question: NewBooleanQuestion("ok?")},
		AskQuestionCommand{Question: NewMultipleChoiceQuestion("pick", []string{"a", "b"})},
		AnswerQuestionCommand{QuestionID: cards, Answer: "yes"},
		UndoCommand{},
	}

	for _, cmd := range cases {
		b, err := MarshalCommand(cmd)
		if err != nil {
			t.Fatalf("MarshalCommand(%#v): %v", cmd, err)
		}
		got, err := UnmarshalCommand(b)
		if err != nil {
			t.Fatalf("UnmarshalCommand(%s): %v", b, err)
		}
		if !reflect.DeepEqual(got, cmd) {
			t.Errorf("round trip mismatch:\n  in:  %#v\n  out: %#v\n  json: %s", cmd, got, b)
		}
	}
}

func TestUpdateCardCommandDistinguishesAbsentBodyFromNull(t *testing.T) {
	id := NewULID()
	absentBody := UpdateCardCommand{CardID: id, UpdatedBy: "agent"}
	b, err := MarshalCommand(absentBody)
	if err != nil {
		t.Fatalf("MarshalCommand: %v", err)
	}
	got, err := UnmarshalCommand(b)
	if err != nil {
		t.Fatalf("UnmarshalCommand: %v", err)
	}
	uc := got.(UpdateCardCommand)
	if uc.Body.Set {
		t.Errorf("Body.Set = true for command with no body field, want false")
	}
}

func TestUpdateCoreCommandDistinguishesAbsentFromNull(t *testing.T) {
	cmd := UpdateCoreCommand{Description: Present("d"), Risks: Null[string](), Notes: Absent[string]()}
	b, err := MarshalCommand(cmd)
	if err != nil {
		t.Fatalf("MarshalCommand: %v", err)
	}
	got, err := UnmarshalCommand(b)
	if err != nil {
		t.Fatalf("UnmarshalCommand: %v", err)
	}
	uc := got.(UpdateCoreCommand)
	if !uc.Risks.Set || uc.Risks.Valid {
		t.Errorf("Risks = %#v, want explicit null (Set=true, Valid=false)", uc.Risks)
	}
	if uc.Notes.Set {
		t.Errorf("Notes = %#v, want absent (Set=false)", uc.Notes)
	}
	if !uc.Description.Set || !uc.Description.Valid || uc.Description.Value != "d" {
		t.Errorf("Description = %#v, want Present(\"d\")", uc.Description)
	}
}

func strPtr(s string) *string { return &s }
