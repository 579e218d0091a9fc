// ABOUTME: SpecState is the pure, in-memory projection of a spec's event log.
// ABOUTME: Apply folds one Event at a time; undo entries are precomputed inverse events.
package core

import (
	"log"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultLanes are the lanes a freshly created spec starts with.
var DefaultLanes = []string{"Ideas", "Plan", "Spec"}

// UndoEntry is one reversible mutation on the undo stack: the inverse
// events that, applied in order via applyWithoutUndo, exactly reverts it.
type UndoEntry struct {
	InverseEvents []EventPayload
}

// SpecState is the full reduced state of a spec: everything derivable by
// folding its event log from the beginning.
type SpecState struct {
	Core            SpecCore
	Cards           *OrderedMap[ulid.ULID, Card]
	Lanes           []string
	Transcript      []TranscriptMessage
	PendingQuestion UserQuestion
	UndoStack       []UndoEntry
	LastEventID     uint64

	// OpenBrackets counts AgentStepStarted events not yet matched by an
	// AgentStepFinished, across all agents (brackets are interleavable, not
	// nested, per spec.md's current concurrent-bracket semantics). While
	// this is > 0, Apply accumulates inverse events into PendingUndo instead
	// of pushing one UndoEntry per mutation.
	OpenBrackets int
	// PendingUndo holds the inverse events accumulated so far inside an open
	// bracket, ordered so that replaying them in this order reverses the
	// bracket's mutations newest-first. Flushed onto UndoStack as a single
	// UndoEntry when OpenBrackets returns to zero.
	PendingUndo []EventPayload
}

// NewSpecState returns a zero-value state ready to receive a SpecCreated
// event, with the default lane set already populated.
func NewSpecState() *SpecState {
	return &SpecState{
		Cards: NewOrderedMap[ulid.ULID, Card](),
		Lanes: append([]string(nil), DefaultLanes...),
	}
}

func stringPtr(s string) *string { return &s }

// Apply folds ev into the state, advancing LastEventID and, for reversible
// mutations, pushing a precomputed UndoEntry onto the undo stack. A
// StartAgentStep/FinishAgentStep bracket is one undo group: every reversible
// mutation between them is accumulated and flushed as a single UndoEntry on
// Finish, so Undo reverts the whole bracket atomically rather than one
// mutation at a time.
func (s *SpecState) Apply(ev *Event) {
	if _, ok := ev.Payload.(AgentStepStartedPayload); ok {
		s.OpenBrackets++
	}

	inverse := s.applyWithoutUndo(ev.Payload, ev.Timestamp)
	s.LastEventID = ev.EventID
	if inverse != nil {
		if s.OpenBrackets > 0 {
			s.PendingUndo = append(inverse, s.PendingUndo...)
		} else {
			s.UndoStack = append(s.UndoStack, UndoEntry{InverseEvents: inverse})
		}
	}

	if _, ok := ev.Payload.(AgentStepFinishedPayload); ok {
		if s.OpenBrackets > 0 {
			s.OpenBrackets--
		}
		if s.OpenBrackets == 0 && len(s.PendingUndo) > 0 {
			s.UndoStack = append(s.UndoStack, UndoEntry{InverseEvents: s.PendingUndo})
			s.PendingUndo = nil
		}
	}
}

// applyWithoutUndo mutates state for a single payload and returns the
// inverse events needed to revert it, or nil for non-reversible payloads
// (transcript, step brackets, questions, undo itself). timestamp is the
// owning event's timestamp, used when a payload synthesizes a transcript
// entry of its own.
func (s *SpecState) applyWithoutUndo(payload EventPayload, timestamp time.Time) []EventPayload {
	switch p := payload.(type) {
	case SpecCreatedPayload:
		s.Core = SpecCore{
			SpecID:    p.SpecID,
			Title:     p.Title,
			OneLiner:  p.OneLiner,
			Goal:      p.Goal,
			CreatedAt: timestamp,
			UpdatedAt: timestamp,
		}
		return nil

	case CoreUpdatedPayload:
		inverse := CoreUpdatedPayload{
			Title:           Present(s.Core.Title),
			OneLiner:        Present(s.Core.OneLiner),
			Goal:            Present(s.Core.Goal),
			Description:     optFieldFromCurrent(s.Core.Description),
			Constraints:     optFieldFromCurrent(s.Core.Constraints),
			SuccessCriteria: optFieldFromCurrent(s.Core.SuccessCriteria),
			Risks:           optFieldFromCurrent(s.Core.Risks),
			Notes:           optFieldFromCurrent(s.Core.Notes),
		}
		applyRequiredOptField(&s.Core.Title, p.Title)
		applyRequiredOptField(&s.Core.OneLiner, p.OneLiner)
		applyRequiredOptField(&s.Core.Goal, p.Goal)
		applyOptField(&s.Core.Description, p.Description)
		applyOptField(&s.Core.Constraints, p.Constraints)
		applyOptField(&s.Core.SuccessCriteria, p.SuccessCriteria)
		applyOptField(&s.Core.Risks, p.Risks)
		applyOptField(&s.Core.Notes, p.Notes)
		s.Core.UpdatedAt = timestamp
		return []EventPayload{inverse}

	case CardCreatedPayload:
		s.Cards.Set(p.Card.CardID, p.Card)
		return []EventPayload{CardDeletedPayload{Card: p.Card}}

	case CardUpdatedPayload:
		current, ok := s.Cards.Get(p.CardID)
		if !ok {
			log.Printf("component=core.state action=apply_skipped event=card_updated card_id=%s reason=unknown_card", p.CardID)
			return nil
		}
		inverse := CardUpdatedPayload{
			CardID:    p.CardID,
			UpdatedBy: current.UpdatedBy,
		}
		if p.Title != nil {
			inverse.Title = stringPtr(current.Title)
			current.Title = *p.Title
		}
		if p.CardType != nil {
			inverse.CardType = stringPtr(current.CardType)
			current.CardType = *p.CardType
		}
		if p.Body.Set {
			inverse.Body = optFieldFromCurrent(current.Body)
			if p.Body.Valid {
				current.Body = stringPtr(p.Body.Value)
			} else {
				current.Body = nil
			}
		}
		current.UpdatedBy = p.UpdatedBy
		s.Cards.Set(p.CardID, current)
		return []EventPayload{inverse}

	case CardMovedPayload:
		current, ok := s.Cards.Get(p.CardID)
		if !ok {
			log.Printf("component=core.state action=apply_skipped event=card_moved card_id=%s reason=unknown_card", p.CardID)
			return nil
		}
		inverse := CardMovedPayload{
			CardID:    p.CardID,
			FromLane:  p.ToLane,
			FromOrder: p.ToOrder,
			ToLane:    p.FromLane,
			ToOrder:   p.FromOrder,
			UpdatedBy: current.UpdatedBy,
		}
		current.Lane = p.ToLane
		current.Order = p.ToOrder
		current.UpdatedBy = p.UpdatedBy
		s.Cards.Set(p.CardID, current)
		return []EventPayload{inverse}

	case CardDeletedPayload:
		s.Cards.Delete(p.Card.CardID)
		return []EventPayload{CardCreatedPayload{Card: p.Card}}

	case TranscriptAppendedPayload:
		s.Transcript = append(s.Transcript, p.Message)
		return nil

	case AgentStepStartedPayload:
		s.Transcript = append(s.Transcript, p.Message)
		return nil

	case AgentStepFinishedPayload:
		s.Transcript = append(s.Transcript, p.Message)
		return nil

	case QuestionAskedPayload:
		s.PendingQuestion = p.Question
		return nil

	case QuestionAnsweredPayload:
		s.PendingQuestion = nil
		s.Transcript = append(s.Transcript, TranscriptMessage{
			MessageID: p.QuestionID,
			Kind:      MessageKindChat,
			AgentID:   "human",
			Text:      p.Answer,
			CreatedAt: timestamp,
		})
		return nil

	case UndoAppliedPayload:
		if len(s.UndoStack) > 0 {
			s.UndoStack = s.UndoStack[:len(s.UndoStack)-1]
		}
		for _, inv := range p.InverseEvents {
			s.applyWithoutUndo(inv, timestamp)
		}
		return nil

	case SnapshotWrittenPayload:
		return nil

	default:
		return nil
	}
}

func optFieldFromCurrent(cur *string) OptionalField[string] {
	if cur == nil {
		return Null[string]()
	}
	return Present(*cur)
}

func applyOptField(dst **string, f OptionalField[string]) {
	if !f.Set {
		return
	}
	if !f.Valid {
		*dst = nil
		return
	}
	*dst = stringPtr(f.Value)
}

// applyRequiredOptField patches a required, non-nullable string field.
// Validation guarantees f.Valid is true whenever f.Set is true; the Valid
// check here is defensive rather than load-bearing.
func applyRequiredOptField(dst *string, f OptionalField[string]) {
	if !f.Set || !f.Valid {
		return
	}
	*dst = f.Value
}
