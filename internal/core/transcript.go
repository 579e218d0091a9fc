// ABOUTME: Transcript entries record the running conversation and step brackets for a spec.
// ABOUTME: UserQuestion is a tagged union of boolean/multiple-choice/freeform prompts awaiting an answer.
package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// MessageKind distinguishes a chat line from a step-bracket marker.
type MessageKind string

const (
	MessageKindChat         MessageKind = "chat"
	MessageKindStepStarted  MessageKind = "step_started"
	MessageKindStepFinished MessageKind = "step_finished"
)

// IsStep reports whether this message marks the start or end of an agent step.
func (k MessageKind) IsStep() bool {
	return k == MessageKindStepStarted || k == MessageKindStepFinished
}

// Prefix returns a short human-facing label for rendering the message inline.
func (k MessageKind) Prefix() string {
	switch k {
	case MessageKindStepStarted:
		return "-> "
	case MessageKindStepFinished:
		return "<- "
	default:
		return ""
	}
}

// TranscriptMessage is one entry in a spec's append-only conversation log.
type TranscriptMessage struct {
	MessageID ulid.ULID   `json:"message_id"`
	Kind      MessageKind `json:"kind"`
	AgentID   string      `json:"agent_id"`
	Text      string      `json:"text"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewTranscriptMessage creates a chat-kind message with a fresh ULID.
func NewTranscriptMessage(agentID, text string) TranscriptMessage {
	return TranscriptMessage{
		MessageID: NewULID(),
		Kind:      MessageKindChat,
		AgentID:   agentID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

// UserQuestion is a tagged union: exactly one of BooleanQuestion,
// MultipleChoiceQuestion, or FreeformQuestion.
type UserQuestion interface {
	questionType() string
	QuestionID() ulid.ULID
}

// BooleanQuestion asks for a yes/no answer. Default, if set, is the value
// pre-selected for the user before they answer.
type BooleanQuestion struct {
	ID      ulid.ULID `json:"question_id"`
	Prompt  string    `json:"prompt"`
	Default *bool     `json:"default,omitempty"`
}

func (q BooleanQuestion) questionType() string  { return "boolean" }
func (q BooleanQuestion) QuestionID() ulid.ULID { return q.ID }

// MultipleChoiceQuestion asks the user to pick from Options. AllowMulti
// switches the answer shape from a single choice to a comma-separated
// subset of Options.
type MultipleChoiceQuestion struct {
	ID         ulid.ULID `json:"question_id"`
	Prompt     string    `json:"prompt"`
	Options    []string  `json:"options"`
	AllowMulti bool      `json:"allow_multi,omitempty"`
}

func (q MultipleChoiceQuestion) questionType() string  { return "multiple_choice" }
func (q MultipleChoiceQuestion) QuestionID() ulid.ULID { return q.ID }

// FreeformQuestion asks the user for an open-ended text answer. Placeholder
// and ValidationHint are display-only hints for the collaborator rendering
// the question; the core never enforces ValidationHint itself.
type FreeformQuestion struct {
	ID             ulid.ULID `json:"question_id"`
	Prompt         string    `json:"prompt"`
	Placeholder    *string   `json:"placeholder,omitempty"`
	ValidationHint *string   `json:"validation_hint,omitempty"`
}

func (q FreeformQuestion) questionType() string  { return "freeform" }
func (q FreeformQuestion) QuestionID() ulid.ULID { return q.ID }

// NewBooleanQuestion creates a BooleanQuestion with a fresh ULID and no default.
func NewBooleanQuestion(prompt string) BooleanQuestion {
	return BooleanQuestion{ID: NewULID(), Prompt: prompt}
}

// NewBooleanQuestionWithDefault creates a BooleanQuestion pre-selecting def.
func NewBooleanQuestionWithDefault(prompt string, def bool) BooleanQuestion {
	return BooleanQuestion{ID: NewULID(), Prompt: prompt, Default: &def}
}

// NewMultipleChoiceQuestion creates a single-select MultipleChoiceQuestion
// with a fresh ULID.
func NewMultipleChoiceQuestion(prompt string, options []string) MultipleChoiceQuestion {
	return MultipleChoiceQuestion{ID: NewULID(), Prompt: prompt, Options: options}
}

// NewMultiSelectQuestion creates a MultipleChoiceQuestion whose answer may
// name more than one option.
func NewMultiSelectQuestion(prompt string, options []string) MultipleChoiceQuestion {
	return MultipleChoiceQuestion{ID: NewULID(), Prompt: prompt, Options: options, AllowMulti: true}
}

// NewFreeformQuestion creates a FreeformQuestion with a fresh ULID and no hints.
func NewFreeformQuestion(prompt string) FreeformQuestion {
	return FreeformQuestion{ID: NewULID(), Prompt: prompt}
}

// NewFreeformQuestionWithHints creates a FreeformQuestion carrying display hints.
func NewFreeformQuestionWithHints(prompt, placeholder, validationHint string) FreeformQuestion {
	return FreeformQuestion{ID: NewULID(), Prompt: prompt, Placeholder: &placeholder, ValidationHint: &validationHint}
}

type userQuestionJSON struct {
	Type           string    `json:"type"`
	ID             ulid.ULID `json:"question_id"`
	Prompt         string    `json:"prompt"`
	Default        *bool     `json:"default,omitempty"`
	Options        []string  `json:"options,omitempty"`
	AllowMulti     bool      `json:"allow_multi,omitempty"`
	Placeholder    *string   `json:"placeholder,omitempty"`
	ValidationHint *string   `json:"validation_hint,omitempty"`
}

// MarshalUserQuestion encodes a UserQuestion as a tagged JSON object.
func MarshalUserQuestion(q UserQuestion) ([]byte, error) {
	if q == nil {
		return []byte("null"), nil
	}
	switch v := q.(type) {
	case BooleanQuestion:
		return json.Marshal(userQuestionJSON{Type: v.questionType(), ID: v.ID, Prompt: v.Prompt, Default: v.Default})
	case MultipleChoiceQuestion:
		return json.Marshal(userQuestionJSON{
			Type: v.questionType(), ID: v.ID, Prompt: v.Prompt,
			Options: v.Options, AllowMulti: v.AllowMulti,
		})
	case FreeformQuestion:
		return json.Marshal(userQuestionJSON{
			Type: v.questionType(), ID: v.ID, Prompt: v.Prompt,
			Placeholder: v.Placeholder, ValidationHint: v.ValidationHint,
		})
	default:
		return nil, fmt.Errorf("core: unknown UserQuestion type %T", q)
	}
}

// UnmarshalUserQuestion decodes a tagged JSON object into a UserQuestion.
func UnmarshalUserQuestion(data []byte) (UserQuestion, error) {
	if string(data) == "null" {
		return nil, nil
	}
	var raw userQuestionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	switch raw.Type {
	case "boolean":
		return BooleanQuestion{ID: raw.ID, Prompt: raw.Prompt, Default: raw.Default}, nil
	case "multiple_choice":
		return MultipleChoiceQuestion{ID: raw.ID, Prompt: raw.Prompt, Options: raw.Options, AllowMulti: raw.AllowMulti}, nil
	case "freeform":
		return FreeformQuestion{ID: raw.ID, Prompt: raw.Prompt, Placeholder: raw.Placeholder, ValidationHint: raw.ValidationHint}, nil
	default:
		return nil, fmt.Errorf("core: unknown question type %q", raw.Type)
	}
}
