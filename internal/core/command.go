// ABOUTME: Command is the tagged union of mutations a caller can submit to a spec actor.
// ABOUTME: Wire format uses a "type" discriminant field, hand-rolled since Go has no sum types.
package core

import (
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// Command is implemented by every command variant. The unexported method
// keeps the union closed to this package.
type Command interface {
	commandType() string
}

// CreateSpecCommand starts a new spec with the three required core fields.
type CreateSpecCommand struct {
	Title    string
	OneLiner string
	Goal     string
}

func (CreateSpecCommand) commandType() string { return "create_spec" }

// UpdateCoreCommand patches a spec's core fields. Each field uses
// OptionalField so absent/null/value are distinguishable. Title, OneLiner,
// and Goal are required elsewhere in the domain, so an explicit null for
// any of them is rejected by validation rather than accepted as a clear.
type UpdateCoreCommand struct {
	Title           OptionalField[string]
	OneLiner        OptionalField[string]
	Goal            OptionalField[string]
	Description     OptionalField[string]
	Constraints     OptionalField[string]
	SuccessCriteria OptionalField[string]
	Risks           OptionalField[string]
	Notes           OptionalField[string]
}

func (UpdateCoreCommand) commandType() string { return "update_core" }

// CreateCardCommand adds a new card to the board.
type CreateCardCommand struct {
	CardType  string
	Title     string
	Lane      string
	CreatedBy string
}

func (CreateCardCommand) commandType() string { return "create_card" }

// UpdateCardCommand patches a card's mutable fields. Title and CardType are
// plain optional pointers (nil means "leave alone"); Body uses
// OptionalField since clearing it (explicit null) is a distinct action from
// not touching it.
type UpdateCardCommand struct {
	CardID    ulid.ULID
	Title     *string
	CardType  *string
	Body      OptionalField[string]
	UpdatedBy string
}

func (UpdateCardCommand) commandType() string { return "update_card" }

// MoveCardCommand relocates a card to a new lane and/or order position.
type MoveCardCommand struct {
	CardID    ulid.ULID
	Lane      string
	Order     float64
	UpdatedBy string
}

func (MoveCardCommand) commandType() string { return "move_card" }

// DeleteCardCommand removes a card from the board.
type DeleteCardCommand struct {
	CardID ulid.ULID
}

func (DeleteCardCommand) commandType() string { return "delete_card" }

// AppendTranscriptCommand adds a chat-kind message to the transcript.
type AppendTranscriptCommand struct {
	AgentID string
	Text    string
}

func (AppendTranscriptCommand) commandType() string { return "append_transcript" }

// StartAgentStepCommand opens a step bracket in the transcript.
type StartAgentStepCommand struct {
	AgentID string
	Text    string
}

func (StartAgentStepCommand) commandType() string { return "start_agent_step" }

// FinishAgentStepCommand closes a step bracket in the transcript. AgentID is
// not matched against the agent that opened a bracket: open brackets are
// counted together, and the step's undo group closes when the count reaches
// zero.
type FinishAgentStepCommand struct {
	AgentID string
	Text    string
}

func (FinishAgentStepCommand) commandType() string { return "finish_agent_step" }

// AskQuestionCommand raises a question for the user. Fails with
// ErrQuestionAlreadyPending if one is already awaiting an answer.
type AskQuestionCommand struct {
	Question UserQuestion
}

func (AskQuestionCommand) commandType() string { return "ask_question" }

// AnswerQuestionCommand answers the currently pending question. QuestionID
// must match it, or the command fails with QuestionIDMismatchError.
type AnswerQuestionCommand struct {
	QuestionID ulid.ULID
	Answer     string
}

func (AnswerQuestionCommand) commandType() string { return "answer_question" }

// UndoCommand reverts the top undo entry: the most recent reversible
// mutation, or every reversible mutation of the most recent agent step.
type UndoCommand struct{}

func (UndoCommand) commandType() string { return "undo" }

type updateCardJSON struct {
	Type      string          `json:"type"`
	CardID    ulid.ULID       `json:"card_id"`
	Title     *string         `json:"title,omitempty"`
	CardType  *string         `json:"card_type,omitempty"`
	Body      json.RawMessage `json:"body,omitempty"`
	UpdatedBy string          `json:"updated_by"`
}

// MarshalCommand encodes a Command as a tagged JSON object.
func MarshalCommand(c Command) ([]byte, error) {
	switch v := c.(type) {
	case CreateSpecCommand:
		return json.Marshal(struct {
			Type     string `json:"type"`
			Title    string `json:"title"`
			OneLiner string `json:"one_liner"`
			Goal     string `json:"goal"`
		}{v.commandType(), v.Title, v.OneLiner, v.Goal})
	case UpdateCoreCommand:
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
			v.commandType(),
			optFieldToRaw(v.Title),
			optFieldToRaw(v.OneLiner),
			optFieldToRaw(v.Goal),
			optFieldToRaw(v.Description),
			optFieldToRaw(v.Constraints),
			optFieldToRaw(v.SuccessCriteria),
			optFieldToRaw(v.Risks),
			optFieldToRaw(v.Notes),
		})
	case CreateCardCommand:
		return json.Marshal(struct {
			Type      string `json:"type"`
			CardType  string `json:"card_type"`
			Title     string `json:"title"`
			Lane      string `json:"lane,omitempty"`
			CreatedBy string `json:"created_by"`
		}{v.commandType(), v.CardType, v.Title, v.Lane, v.CreatedBy})
	case UpdateCardCommand:
		var bodyJSON json.RawMessage
		if v.Body.Set {
			b, err := v.Body.MarshalJSON()
			if err != nil {
				return nil, err
			}
			bodyJSON = b
		}
		return json.Marshal(updateCardJSON{
			Type:      v.commandType(),
			CardID:    v.CardID,
			Title:     v.Title,
			CardType:  v.CardType,
			Body:      bodyJSON,
			UpdatedBy: v.UpdatedBy,
		})
	case MoveCardCommand:
		return json.Marshal(struct {
			Type      string    `json:"type"`
			CardID    ulid.ULID `json:"card_id"`
			Lane      string    `json:"lane"`
			Order     float64   `json:"order"`
			UpdatedBy string    `json:"updated_by"`
		}{v.commandType(), v.CardID, v.Lane, v.Order, v.UpdatedBy})
	case DeleteCardCommand:
		return json.Marshal(struct {
			Type   string    `json:"type"`
			CardID ulid.ULID `json:"card_id"`
		}{v.commandType(), v.CardID})
	case AppendTranscriptCommand:
		return json.Marshal(struct {
			Type    string `json:"type"`
			AgentID string `json:"agent_id"`
			Text    string `json:"text"`
		}{v.commandType(), v.AgentID, v.Text})
	case StartAgentStepCommand:
		return json.Marshal(struct {
			Type    string `json:"type"`
			AgentID string `json:"agent_id"`
			Text    string `json:"text"`
		}{v.commandType(), v.AgentID, v.Text})
	case FinishAgentStepCommand:
		return json.Marshal(struct {
			Type    string `json:"type"`
			AgentID string `json:"agent_id"`
			Text    string `json:"text"`
		}{v.commandType(), v.AgentID, v.Text})
	case AskQuestionCommand:
		q, err := MarshalUserQuestion(v.Question)
		if err != nil {
			return nil, err
		}
		return json.Marshal(struct {
			Type     string          `json:"type"`
			Question json.RawMessage `json:"question"`
		}{v.commandType(), q})
	case AnswerQuestionCommand:
		return json.Marshal(struct {
			Type       string    `json:"type"`
			QuestionID ulid.ULID `json:"question_id"`
			Answer     string    `json:"answer"`
		}{v.commandType(), v.QuestionID, v.Answer})
	case UndoCommand:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{v.commandType()})
	default:
		return nil, fmt.Errorf("core: unknown Command type %T", c)
	}
}

// UnmarshalCommand decodes a tagged JSON object into a Command.
func UnmarshalCommand(data []byte) (Command, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, err
	}
	switch tag.Type {
	case "create_spec":
		var v struct {
			Title    string `json:"title"`
			OneLiner string `json:"one_liner"`
			Goal     string `json:"goal"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return CreateSpecCommand{Title: v.Title, OneLiner: v.OneLiner, Goal: v.Goal}, nil
	case "update_core":
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
		return UpdateCoreCommand{
			Title:           optFieldFromRaw(raw, "title", v.Title),
			OneLiner:        optFieldFromRaw(raw, "one_liner", v.OneLiner),
			Goal:            optFieldFromRaw(raw, "goal", v.Goal),
			Description:     optFieldFromRaw(raw, "description", v.Description),
			Constraints:     optFieldFromRaw(raw, "constraints", v.Constraints),
			SuccessCriteria: optFieldFromRaw(raw, "success_criteria", v.SuccessCriteria),
			Risks:           optFieldFromRaw(raw, "risks", v.Risks),
			Notes:           optFieldFromRaw(raw, "notes", v.Notes),
		}, nil
	case "create_card":
		var v struct {
			CardType  string `json:"card_type"`
			Title     string `json:"title"`
			Lane      string `json:"lane"`
			CreatedBy string `json:"created_by"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return CreateCardCommand{CardType: v.CardType, Title: v.Title, Lane: v.Lane, CreatedBy: v.CreatedBy}, nil
	case "update_card":
		var v updateCardJSON
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		cmd := UpdateCardCommand{CardID: v.CardID, Title: v.Title, CardType: v.CardType, UpdatedBy: v.UpdatedBy}
		if bodyRaw, present := raw["body"]; present {
			var body OptionalField[string]
			if err := body.UnmarshalJSON(bodyRaw); err != nil {
				return nil, err
			}
			cmd.Body = body
		}
		return cmd, nil
	case "move_card":
		var v struct {
			CardID    ulid.ULID `json:"card_id"`
			Lane      string    `json:"lane"`
			Order     float64   `json:"order"`
			UpdatedBy string    `json:"updated_by"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return MoveCardCommand{CardID: v.CardID, Lane: v.Lane, Order: v.Order, UpdatedBy: v.UpdatedBy}, nil
	case "delete_card":
		var v struct {
			CardID ulid.ULID `json:"card_id"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return DeleteCardCommand{CardID: v.CardID}, nil
	case "append_transcript":
		var v struct {
			AgentID string `json:"agent_id"`
			Text    string `json:"text"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return AppendTranscriptCommand{AgentID: v.AgentID, Text: v.Text}, nil
	case "start_agent_step":
		var v struct {
			AgentID string `json:"agent_id"`
			Text    string `json:"text"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return StartAgentStepCommand{AgentID: v.AgentID, Text: v.Text}, nil
	case "finish_agent_step":
		var v struct {
			AgentID string `json:"agent_id"`
			Text    string `json:"text"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return FinishAgentStepCommand{AgentID: v.AgentID, Text: v.Text}, nil
	case "ask_question":
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
		return AskQuestionCommand{Question: q}, nil
	case "answer_question":
		var v struct {
			QuestionID ulid.ULID `json:"question_id"`
			Answer     string    `json:"answer"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return AnswerQuestionCommand{QuestionID: v.QuestionID, Answer: v.Answer}, nil
	case "undo":
		return UndoCommand{}, nil
	default:
		return nil, fmt.Errorf("core: unknown command type %q", tag.Type)
	}
}

// optFieldToRaw renders an OptionalField for wire output: an absent field
// marshals to nil (omitted via omitempty), an explicit null marshals to the
// JSON literal null, and a present field marshals to its value. This keeps
// "leave alone" distinguishable from "clear" across the log and command wire
// formats.
func optFieldToRaw[T any](f OptionalField[T]) json.RawMessage {
	if !f.Set {
		return nil
	}
	b, err := f.MarshalJSON()
	if err != nil {
		return nil
	}
	return b
}

func optFieldFromRaw(raw map[string]json.RawMessage, key string, parsed *string) OptionalField[string] {
	rawVal, present := raw[key]
	if !present {
		return Absent[string]()
	}
	if string(rawVal) == "null" {
		return Null[string]()
	}
	if parsed == nil {
		return Null[string]()
	}
	return Present(*parsed)
}
