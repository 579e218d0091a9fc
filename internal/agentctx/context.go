// ABOUTME: Context is the opaque per-agent memory carried alongside a spec's snapshots.
// ABOUTME: Tracks a rolling summary, a bounded key-decision list, and an event cursor.
package agentctx

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/specdaemon/specd/internal/core"
)

// RollingSummaryCap is the maximum character length for a rolling summary before compaction.
const RollingSummaryCap = 2000

// MaxKeyDecisions is the maximum number of key decisions to retain per agent.
const MaxKeyDecisions = 50

// Context is the accumulated memory an agent carries between reasoning steps
// on a single spec: a rolling summary of past events, a bounded list of
// key decisions, and the event cursor marking how far it has read.
type Context struct {
	SpecID         ulid.ULID `json:"spec_id"`
	AgentID        string    `json:"agent_id"`
	RollingSummary string    `json:"rolling_summary"`
	KeyDecisions   []string  `json:"key_decisions"`
	LastEventSeen  uint64    `json:"last_event_seen"`
}

// New creates a fresh context for a given agent with no accumulated memory.
func New(specID ulid.ULID, agentID string) *Context {
	return &Context{
		SpecID:       specID,
		AgentID:      agentID,
		KeyDecisions: []string{},
	}
}

// UpdateFromEvents folds new events into the rolling summary and advances
// LastEventSeen. Events at or below the current cursor are skipped, so
// calling this repeatedly with overlapping slices is safe.
func (ctx *Context) UpdateFromEvents(events []core.Event) {
	for i := range events {
		event := &events[i]
		if event.EventID <= ctx.LastEventSeen {
			continue
		}
		ctx.LastEventSeen = event.EventID

		description := fmt.Sprintf("Event #%d: %s", event.EventID, describeEventPayload(event.Payload))
		if ctx.RollingSummary == "" {
			ctx.RollingSummary = description
		} else {
			ctx.RollingSummary += "; " + description
		}
	}
	ctx.CompactSummary()
}

// AddDecision appends a key decision, dropping the oldest once the bound is exceeded.
func (ctx *Context) AddDecision(decision string) {
	ctx.KeyDecisions = append(ctx.KeyDecisions, decision)
	if len(ctx.KeyDecisions) > MaxKeyDecisions {
		excess := len(ctx.KeyDecisions) - MaxKeyDecisions
		ctx.KeyDecisions = ctx.KeyDecisions[excess:]
	}
}

// CompactSummary truncates the rolling summary once it exceeds the character
// cap, keeping the tail and prepending a compaction marker.
func (ctx *Context) CompactSummary() {
	charCount := utf8.RuneCountInString(ctx.RollingSummary)
	if charCount <= RollingSummaryCap {
		return
	}

	prefix := "[earlier context compacted] "
	prefixChars := utf8.RuneCountInString(prefix)
	budget := RollingSummaryCap - prefixChars
	if budget < 0 {
		budget = 0
	}

	skip := charCount - budget
	if skip < 0 {
		skip = 0
	}
	runes := []rune(ctx.RollingSummary)
	tail := string(runes[skip:])

	if cleanStart := strings.Index(tail, "; "); cleanStart >= 0 {
		tail = tail[cleanStart+2:]
	}

	ctx.RollingSummary = prefix + tail
}

// ToSnapshotValue serializes this context for inclusion in snapshot data.
func (ctx *Context) ToSnapshotValue() json.RawMessage {
	data, err := json.Marshal(ctx)
	if err != nil {
		return json.RawMessage("null")
	}
	return data
}

// FromSnapshotValue restores a Context from a previously-serialized snapshot value.
func FromSnapshotValue(data json.RawMessage) (*Context, error) {
	var ctx Context
	if err := json.Unmarshal(data, &ctx); err != nil {
		return nil, err
	}
	return &ctx, nil
}

// ContextsToSnapshotMap serializes a collection of contexts keyed by agent ID.
func ContextsToSnapshotMap(contexts []*Context) map[string]json.RawMessage {
	result := make(map[string]json.RawMessage, len(contexts))
	for _, ctx := range contexts {
		result[ctx.AgentID] = ctx.ToSnapshotValue()
	}
	return result
}

// ContextsFromSnapshotMap restores contexts from a snapshot map. Entries that
// fail to deserialize are skipped with a warning rather than failing recovery.
func ContextsFromSnapshotMap(m map[string]json.RawMessage) []*Context {
	var result []*Context
	for agentID, data := range m {
		ctx, err := FromSnapshotValue(data)
		if err != nil {
			log.Printf("component=agentctx action=restore_skip agent_id=%s err=%v", agentID, err)
			continue
		}
		result = append(result, ctx)
	}
	return result
}

func truncateChars(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars]) + "..."
}

func describeEventPayload(payload core.EventPayload) string {
	switch p := payload.(type) {
	case core.SpecCreatedPayload:
		return fmt.Sprintf("spec created: '%s'", p.Title)

	case core.CoreUpdatedPayload:
		if p.Description.Valid {
			return fmt.Sprintf("spec updated (description -> '%s')", truncateChars(p.Description.Value, 50))
		}
		return "spec metadata updated"

	case core.CardCreatedPayload:
		return fmt.Sprintf("card created: '%s' (%s)", p.Card.Title, p.Card.CardType)

	case core.CardUpdatedPayload:
		if p.Title != nil {
			return fmt.Sprintf("card %s updated (title -> '%s')", p.CardID, *p.Title)
		}
		return fmt.Sprintf("card %s updated", p.CardID)

	case core.CardMovedPayload:
		return fmt.Sprintf("card %s moved to '%s'", p.CardID, p.ToLane)

	case core.CardDeletedPayload:
		return fmt.Sprintf("card %s deleted", p.CardID)

	case core.TranscriptAppendedPayload:
		preview := truncateChars(p.Message.Text, 50)
		return fmt.Sprintf("%s said: %s", p.Message.AgentID, preview)

	case core.QuestionAskedPayload:
		return "question asked to user"

	case core.QuestionAnsweredPayload:
		preview := truncateChars(p.Answer, 50)
		return fmt.Sprintf("user answered: %s", preview)

	case core.AgentStepStartedPayload:
		return fmt.Sprintf("agent %s started: %s", p.Message.AgentID, truncateChars(p.Message.Text, 50))

	case core.AgentStepFinishedPayload:
		return fmt.Sprintf("agent %s finished: %s", p.Message.AgentID, truncateChars(p.Message.Text, 50))

	case core.UndoAppliedPayload:
		return fmt.Sprintf("undo applied (%d inverse events)", len(p.InverseEvents))

	default:
		return fmt.Sprintf("unknown event: %T", payload)
	}
}
