// ABOUTME: Event wraps a strictly increasing event_id and timestamp around an EventPayload.
// ABOUTME: EventPayload is a tagged union mirroring Command one-for-one, plus SnapshotWritten.
package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event is one durable, ordered fact in a spec's log.
type Event struct {
	EventID   uint64       `json:"event_id"`
	SpecID    ulid.ULID    `json:"spec_id"`
	Timestamp time.Time    `json:"timestamp"`
	Payload   EventPayload `json:"payload"`
}

// EventPayload is implemented by every event variant.
type EventPayload interface {
	eventType() string
}

// SpecCreatedPayload records the initial creation of a spec.
type SpecCreatedPayload struct {
	SpecID   ulid.ULID
	Title    string
	OneLiner string
	Goal     string
}

func (SpecCreatedPayload) eventType() string { return "spec_created" }

// CoreUpdatedPayload records a patch to the spec's core fields. Title,
// OneLiner, and Goal are required and non-nullable: Set=false leaves them
// alone, Set=true,Valid=true patches them, and Set=true,Valid=false is
// rejected by validation before this payload is ever built.
type CoreUpdatedPayload struct {
	Title           OptionalField[string]
	OneLiner        OptionalField[string]
	Goal            OptionalField[string]
	Description     OptionalField[string]
	Constraints     OptionalField[string]
	SuccessCriteria OptionalField[string]
	Risks           OptionalField[string]
	Notes           OptionalField[string]
}

func (CoreUpdatedPayload) eventType() string { return "core_updated" }

// CardCreatedPayload records a new card added to the board.
type CardCreatedPayload struct {
	Card Card
}

func (CardCreatedPayload) eventType() string { return "card_created" }

// CardUpdatedPayload records a patch to a card's mutable fields.
type CardUpdatedPayload struct {
	CardID    ulid.ULID
	Title     *string
	CardType  *string
	Body      OptionalField[string]
	UpdatedBy string
}

func (CardUpdatedPayload) eventType() string { return "card_updated" }

// CardMovedPayload records a card's relocation to a new lane/order.
type CardMovedPayload struct {
	CardID    ulid.ULID
	FromLane  string
	FromOrder float64
	ToLane    string
	ToOrder   float64
	UpdatedBy string
}

func (CardMovedPayload) eventType() string { return "card_moved" }

// CardDeletedPayload records a card's removal. The full prior card is
// carried so Undo can reconstruct it without a separate lookup.
type CardDeletedPayload struct {
	Card Card
}

func (CardDeletedPayload) eventType() string { return "card_deleted" }

// TranscriptAppendedPayload records a chat-kind transcript entry.
type TranscriptAppendedPayload struct {
	Message TranscriptMessage
}

func (TranscriptAppendedPayload) eventType() string { return "transcript_appended" }

// AgentStepStartedPayload records the opening of a step bracket.
type AgentStepStartedPayload struct {
	Message TranscriptMessage
}

func (AgentStepStartedPayload) eventType() string { return "agent_step_started" }

// AgentStepFinishedPayload records the closing of a step bracket.
type AgentStepFinishedPayload struct {
	Message TranscriptMessage
}

func (AgentStepFinishedPayload) eventType() string { return "agent_step_finished" }

// QuestionAskedPayload records a question raised for the user.
type QuestionAskedPayload struct {
	Question UserQuestion
}

func (QuestionAskedPayload) eventType() string { return "question_asked" }

// QuestionAnsweredPayload records the user's answer to the pending question.
type QuestionAnsweredPayload struct {
	QuestionID ulid.ULID
	Answer     string
}

func (QuestionAnsweredPayload) eventType() string { return "question_answered" }

// UndoAppliedPayload records that the undo stack's top entry was reverted.
// InverseEvents is replayed via applyWithoutUndo so undoing never grows the
// undo stack itself.
type UndoAppliedPayload struct {
	InverseEvents []EventPayload
}

func (UndoAppliedPayload) eventType() string { return "undo_applied" }

// SnapshotWrittenPayload marks that a state snapshot was saved. It carries
// no state mutation of its own; the reducer treats it as a no-op and it
// exists purely as a durable, replayable marker of when checkpoints landed.
type SnapshotWrittenPayload struct {
	SnapshotEventID uint64
}

func (SnapshotWrittenPayload) eventType() string { return "snapshot_written" }

type cardUpdatedJSON struct {
	Type      string          `json:"type"`
	CardID    ulid.ULID       `json:"card_id"`
	Title     *string         `json:"title,omitempty"`
	CardType  *string         `json:"card_type,omitempty"`
	Body      json.RawMessage `json:"body,omitempty"`
	UpdatedBy string          `json:"updated_by"`
}

// MarshalEventPayload encodes an EventPayload as a tagged JSON object.
func MarshalEventPayload(p EventPayload) ([]byte, error) {
	switch v := p.(type) {
	case SpecCreatedPayload:
		return json.Marshal(struct {
			Type     string    `json:"type"`
			SpecID   ulid.ULID `json:"spec_id"`
			Title    string    `json:"title"`
			OneLiner string    `json:"one_liner"`
			Goal     string    `json:"goal"`
		}{v.eventType(), v.SpecID, v.Title, v.OneLiner, v.Goal})
	case CoreUpdatedPayload:
		return json.Marshal(struct {
			Type            string          `json:"type"`
			Title           json.RawMessage `json:"title,omitempty"`
			OneLiner        json.RawMessage `json:"one_liner,omitempty"`
			Goal            json.RawMessage `json:"goal,omitempty"`
			Description     json.RawMessage `json:"description,omitempty"`
			Constraints     json.RawMessage `json:"constraints,omitempty"`
			SuccessCriteria json.RawMessage `json:"success_criteria,omitempty"`
			Risks           json.RawMessage `json:"risks,omitempty"`
			Notes           json.RawMessage `json:"notes,omitempty"`
		}{
			v.eventType(),
			optFieldToRaw(v.Title),
			optFieldToRaw(v.OneLiner),
			optFieldToRaw(v.Goal),
			optFieldToRaw(v.Description),
			optFieldToRaw(v.Constraints),
			optFieldToRaw(v.SuccessCriteria),
			optFieldToRaw(v.Risks),
			optFieldToRaw(v.Notes),
		})
	case CardCreatedPayload:
		return json.Marshal(struct {
			Type string `json:"type"`
			Card Card   `json:"card"`
		}{v.eventType(), v.Card})
	case CardUpdatedPayload:
		var bodyJSON json.RawMessage
		if v.Body.Set {
			b, err := v.Body.MarshalJSON()
			if err != nil {
				return nil, err
			}
			bodyJSON = b
		}
		return json.Marshal(cardUpdatedJSON{
			Type:      v.eventType(),
			CardID:    v.CardID,
			Title:     v.Title,
			CardType:  v.CardType,
			Body:      bodyJSON,
			UpdatedBy: v.UpdatedBy,
		})
	case CardMovedPayload:
		return json.Marshal(struct {
			Type      string    `json:"type"`
			CardID    ulid.ULID `json:"card_id"`
			FromLane  string    `json:"from_lane"`
			FromOrder float64   `json:"from_order"`
			ToLane    string    `json:"to_lane"`
			ToOrder   float64   `json:"to_order"`
			UpdatedBy string    `json:"updated_by"`
		}{v.eventType(), v.CardID, v.FromLane, v.FromOrder, v.ToLane, v.ToOrder, v.UpdatedBy})
	case CardDeletedPayload:
		return json.Marshal(struct {
			Type string `json:"type"`
			Card Card   `json:"card"`
		}{v.eventType(), v.Card})
	case TranscriptAppendedPayload:
		return json.Marshal(struct {
			Type    string             `json:"type"`
			Message TranscriptMessage `json:"message"`
		}{v.eventType(), v.Message})
	case AgentStepStartedPayload:
		return json.Marshal(struct {
			Type    string             `json:"type"`
			Message TranscriptMessage `json:"message"`
		}{v.eventType(), v.Message})
	case AgentStepFinishedPayload:
		return json.Marshal(struct {
			Type    string             `json:"type"`
			Message TranscriptMessage `json:"message"`
		}{v.eventType(), v.Message})
	case QuestionAskedPayload:
		q, err := MarshalUserQuestion(v.Question)
		if err != nil {
			return nil, err
		}
		return json.Marshal(struct {
			Type     string          `json:"type"`
			Question json.RawMessage `json:"question"`
		}{v.eventType(), q})
	case QuestionAnsweredPayload:
		return json.Marshal(struct {
			Type       string    `json:"type"`
			QuestionID ulid.ULID `json:"question_id"`
			Answer     string    `json:"answer"`
		}{v.eventType(), v.QuestionID, v.Answer})
	case UndoAppliedPayload:
		encoded := make([]json.RawMessage, len(v.InverseEvents))
		for i, ev := range v.InverseEvents {
			b, err := MarshalEventPayload(ev)
			if err != nil {
				return nil, err
			}
			encoded[i] = b
		}
		return json.Marshal(struct {
			Type          string            `json:"type"`
			InverseEvents []json.RawMessage `json:"inverse_events"`
		}{v.eventType(), encoded})
	case SnapshotWrittenPayload:
		return json.Marshal(struct {
			Type            string `json:"type"`
			SnapshotEventID uint64 `json:"snapshot_event_id"`
		}{v.eventType(), v.SnapshotEventID})
	default:
		return nil, fmt.Errorf("core: unknown EventPayload type %T", p)
	}
}

// UnmarshalEventPayload decodes a tagged JSON object into an EventPayload.
func UnmarshalEventPayload(data []byte) (EventPayload, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, err
	}
	switch tag.Type {
	case "spec_created":
		var v struct {
			SpecID   ulid.ULID `json:"spec_id"`
			Title    string    `json:"title"`
			OneLiner string    `json:"one_liner"`
			Goal     string    `json:"goal"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return SpecCreatedPayload{SpecID: v.SpecID, Title: v.Title, OneLiner: v.OneLiner, Goal: v.Goal}, nil
	case "core_updated":
		var v struct {
			Title           *string `json:"title"`
			OneLiner        *string `json:"one_liner"`
			Goal            *string `json:"goal"`
			Description     *string `json:"description"`
			Constraints     *string `json:"constraints"`
			SuccessCriteria *string `json:"success_criteria"`
			Risks           *string `json:"risks"`
			Notes           *string `json:"notes"`
		}
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return CoreUpdatedPayload{
			Title:           optFieldFromRaw(raw, "title", v.Title),
			OneLiner:        optFieldFromRaw(raw, "one_liner", v.OneLiner),
			Goal:            optFieldFromRaw(raw, "goal", v.Goal),
			Description:     optFieldFromRaw(raw, "description", v.Description),
			Constraints:     optFieldFromRaw(raw, "constraints", v.Constraints),
			SuccessCriteria: optFieldFromRaw(raw, "success_criteria", v.SuccessCriteria),
			Risks:           optFieldFromRaw(raw, "risks", v.Risks),
			Notes:           optFieldFromRaw(raw, "notes", v.Notes),
		}, nil
	case "card_created":
		var v struct {
			Card Card `json:"card"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return CardCreatedPayload{Card: v.Card}, nil
	case "card_updated":
		var v cardUpdatedJSON
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		payload := CardUpdatedPayload{CardID: v.CardID, Title: v.Title, CardType: v.CardType, UpdatedBy: v.UpdatedBy}
		if bodyRaw, present := raw["body"]; present {
			var body OptionalField[string]
			if err := body.UnmarshalJSON(bodyRaw); err != nil {
				return nil, err
			}
			payload.Body = body
		}
		return payload, nil
	case "card_moved":
		var v struct {
			CardID    ulid.ULID `json:"card_id"`
			FromLane  string    `json:"from_lane"`
			FromOrder float64   `json:"from_order"`
			ToLane    string    `json:"to_lane"`
			ToOrder   float64   `json:"to_order"`
			UpdatedBy string    `json:"updated_by"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return CardMovedPayload{
			CardID: v.CardID, FromLane: v.FromLane, FromOrder: v.FromOrder,
			ToLane: v.ToLane, ToOrder: v.ToOrder, UpdatedBy: v.UpdatedBy,
		}, nil
	case "card_deleted":
		var v struct {
			Card Card `json:"card"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return CardDeletedPayload{Card: v.Card}, nil
	case "transcript_appended":
		var v struct {
			Message TranscriptMessage `json:"message"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return TranscriptAppendedPayload{Message: v.Message}, nil
	case "agent_step_started":
		var v struct {
			Message TranscriptMessage `json:"message"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return AgentStepStartedPayload{Message: v.Message}, nil
	case "agent_step_finished":
		var v struct {
			Message TranscriptMessage `json:"message"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return AgentStepFinishedPayload{Message: v.Message}, nil
	case "question_asked":
		var v struct {
			Question json.RawMessage `json:"question"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		q, err := UnmarshalUserQuestion(v.Question)
		if err != nil {
			return nil, err
		}
		return QuestionAskedPayload{Question: q}, nil
	case "question_answered":
		var v struct {
			QuestionID ulid.ULID `json:"question_id"`
			Answer     string    `json:"answer"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return QuestionAnsweredPayload{QuestionID: v.QuestionID, Answer: v.Answer}, nil
	case "undo_applied":
		var v struct {
			InverseEvents []json.RawMessage `json:"inverse_events"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		inverse := make([]EventPayload, len(v.InverseEvents))
		for i, raw := range v.InverseEvents {
			ev, err := UnmarshalEventPayload(raw)
			if err != nil {
				return nil, err
			}
			inverse[i] = ev
		}
		return UndoAppliedPayload{InverseEvents: inverse}, nil
	case "snapshot_written":
		var v struct {
			SnapshotEventID uint64 `json:"snapshot_event_id"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return SnapshotWrittenPayload{SnapshotEventID: v.SnapshotEventID}, nil
	default:
		return nil, fmt.Errorf("core: unknown event type %q", tag.Type)
	}
}

// MarshalJSON implements json.Marshaler for Event, embedding the tagged
// payload rather than deferring to reflection.
func (e Event) MarshalJSON() ([]byte, error) {
	payloadJSON, err := MarshalEventPayload(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		EventID   uint64          `json:"event_id"`
		SpecID    ulid.ULID       `json:"spec_id"`
		Timestamp time.Time       `json:"timestamp"`
		Payload   json.RawMessage `json:"payload"`
	}{e.EventID, e.SpecID, e.Timestamp, payloadJSON})
}

// UnmarshalJSON implements json.Unmarshaler for Event.
func (e *Event) UnmarshalJSON(data []byte) error {
	var v struct {
		EventID   uint64          `json:"event_id"`
		SpecID    ulid.ULID       `json:"spec_id"`
		Timestamp time.Time       `json:"timestamp"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	payload, err := UnmarshalEventPayload(v.Payload)
	if err != nil {
		return err
	}
	e.EventID = v.EventID
	e.SpecID = v.SpecID
	e.Timestamp = v.Timestamp
	e.Payload = payload
	return nil
}
