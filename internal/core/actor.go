// ABOUTME: The per-spec actor: one goroutine owns a SpecState and processes commands FIFO.
// ABOUTME: Every mutation is durably appended before it is applied or broadcast to subscribers.
package core

import (
	"context"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// zeroULID is the sentinel for "no spec_id assigned yet".
var zeroULID ulid.ULID

// LogWriter durably appends events before the actor applies them to state.
// Implemented by internal/store's jsonl log; kept as an interface here so
// core has no import on store.
type LogWriter interface {
	Append(ctx context.Context, events []Event) error
}

// noopLogWriter is used by tests that only care about in-memory behavior.
type noopLogWriter struct{}

func (noopLogWriter) Append(context.Context, []Event) error { return nil }

type commandRequest struct {
	cmd    Command
	respCh chan commandResponse
}

type commandResponse struct {
	events []Event
	err    error
}

type readStateRequest struct {
	respCh chan *SpecState
}

type recordSnapshotRequest struct {
	snapshotEventID uint64
	respCh          chan commandResponse
}

// SpecActorHandle is the external interface to a running spec actor.
type SpecActorHandle struct {
	mailbox       chan commandRequest
	readStateCh   chan readStateRequest
	snapshotCh    chan recordSnapshotRequest
	broadcaster   *Broadcaster
	done          chan struct{}
}

// SendCommand enqueues cmd for processing and blocks for the result. Returns
// ErrMailboxFull immediately, without blocking, if the mailbox is at
// capacity, and ErrChannelClosed if the actor has already shut down.
func (h *SpecActorHandle) SendCommand(ctx context.Context, cmd Command) ([]Event, error) {
	req := commandRequest{cmd: cmd, respCh: make(chan commandResponse, 1)}
	select {
	case h.mailbox <- req:
	default:
		return nil, ErrMailboxFull
	}
	select {
	case resp := <-req.respCh:
		return resp.events, resp.err
	case <-h.done:
		return nil, ErrChannelClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReadState returns a point-in-time clone of the actor's state. Safe to call
// concurrently with SendCommand.
func (h *SpecActorHandle) ReadState(ctx context.Context) (*SpecState, error) {
	req := readStateRequest{respCh: make(chan *SpecState, 1)}
	select {
	case h.readStateCh <- req:
	case <-h.done:
		return nil, ErrChannelClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case state := <-req.respCh:
		return state, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RecordSnapshotWritten appends a SnapshotWritten marker event, bypassing
// command validation entirely. It is called by the registry's snapshot
// driver after a snapshot file has been durably saved, so the marker's
// event_id reflects exactly where in the log the checkpoint landed.
func (h *SpecActorHandle) RecordSnapshotWritten(ctx context.Context, snapshotEventID uint64) ([]Event, error) {
	req := recordSnapshotRequest{snapshotEventID: snapshotEventID, respCh: make(chan commandResponse, 1)}
	select {
	case h.snapshotCh <- req:
	case <-h.done:
		return nil, ErrChannelClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case resp := <-req.respCh:
		return resp.events, resp.err
	case <-h.done:
		return nil, ErrChannelClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe registers for a live feed of applied events.
func (h *SpecActorHandle) Subscribe() (<-chan Envelope, uint64) {
	return h.broadcaster.Subscribe()
}

// Unsubscribe stops a live feed registered with Subscribe.
func (h *SpecActorHandle) Unsubscribe(id uint64) {
	h.broadcaster.Unsubscribe(id)
}

type specActor struct {
	state       *SpecState
	logWriter   LogWriter
	broadcaster *Broadcaster
	mailbox     chan commandRequest
	readStateCh chan readStateRequest
	snapshotCh  chan recordSnapshotRequest
	done        chan struct{}
	unavailable bool
}

// ActorOptions configures a spawned actor.
type ActorOptions struct {
	// MailboxSize bounds the number of in-flight commands. Zero uses 64.
	MailboxSize int
	// BroadcastBufferSize bounds each subscriber's channel. Zero uses 4096.
	BroadcastBufferSize int
	// LogWriter durably persists events before they're applied. Nil uses a
	// no-op writer (tests only; production callers must supply one).
	LogWriter LogWriter
	// InitialState seeds the actor, e.g. after recovery. Nil starts fresh.
	InitialState *SpecState
}

// SpawnActor starts a spec actor goroutine and returns a handle to it.
func SpawnActor(opts ActorOptions) *SpecActorHandle {
	mailboxSize := opts.MailboxSize
	if mailboxSize <= 0 {
		mailboxSize = 64
	}
	bufSize := opts.BroadcastBufferSize
	if bufSize <= 0 {
		bufSize = 4096
	}
	logWriter := opts.LogWriter
	if logWriter == nil {
		logWriter = noopLogWriter{}
	}
	state := opts.InitialState
	if state == nil {
		state = NewSpecState()
	}

	a := &specActor{
		state:       state,
		logWriter:   logWriter,
		broadcaster: NewBroadcaster(bufSize),
		mailbox:     make(chan commandRequest, mailboxSize),
		readStateCh: make(chan readStateRequest, mailboxSize),
		snapshotCh:  make(chan recordSnapshotRequest, mailboxSize),
		done:        make(chan struct{}),
	}
	go a.run()
	return &SpecActorHandle{
		mailbox:     a.mailbox,
		readStateCh: a.readStateCh,
		snapshotCh:  a.snapshotCh,
		broadcaster: a.broadcaster,
		done:        a.done,
	}
}

func (a *specActor) run() {
	defer close(a.done)
	defer a.broadcaster.Close()
	for {
		select {
		case req, ok := <-a.mailbox:
			if !ok {
				return
			}
			events, err := a.processCommand(req.cmd)
			req.respCh <- commandResponse{events: events, err: err}
		case req, ok := <-a.readStateCh:
			if !ok {
				return
			}
			req.respCh <- a.cloneState()
		case req, ok := <-a.snapshotCh:
			if !ok {
				return
			}
			events, err := a.processRecordSnapshot(req.snapshotEventID)
			req.respCh <- commandResponse{events: events, err: err}
		}
	}
}

func (a *specActor) cloneState() *SpecState {
	clone := &SpecState{
		Core:            a.state.Core,
		Cards:           a.state.Cards.Clone(),
		Lanes:           append([]string(nil), a.state.Lanes...),
		Transcript:      append([]TranscriptMessage(nil), a.state.Transcript...),
		PendingQuestion: a.state.PendingQuestion,
		UndoStack:       append([]UndoEntry(nil), a.state.UndoStack...),
		LastEventID:     a.state.LastEventID,
		OpenBrackets:    a.state.OpenBrackets,
		PendingUndo:     append([]EventPayload(nil), a.state.PendingUndo...),
	}
	return clone
}

// processCommand validates cmd, turns it into events, durably appends them,
// applies them to state, and broadcasts them, in that order. If the durable
// append fails the actor flips into an unavailable state and refuses every
// subsequent command until it is respawned from recovery.
func (a *specActor) processCommand(cmd Command) ([]Event, error) {
	if a.unavailable {
		return nil, ErrSpecUnavailable
	}

	payloads, err := a.commandToPayloads(cmd)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	specID := a.state.Core.SpecID
	events := make([]Event, len(payloads))
	for i, p := range payloads {
		eventSpecID := specID
		if sc, ok := p.(SpecCreatedPayload); ok {
			eventSpecID = sc.SpecID
		}
		events[i] = Event{
			EventID:   a.state.LastEventID + uint64(i) + 1,
			SpecID:    eventSpecID,
			Timestamp: now,
			Payload:   p,
		}
	}

	if len(events) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := a.logWriter.Append(ctx, events)
		cancel()
		if err != nil {
			a.unavailable = true
			return nil, &IoError{Op: "append", Err: err}
		}
	}

	for i := range events {
		a.state.Apply(&events[i])
		a.broadcaster.Broadcast(&events[i])
	}
	return events, nil
}

// processRecordSnapshot appends a SnapshotWritten marker event through the
// same durable-append/apply/broadcast path as a regular command, without
// going through commandToPayloads or requireCreated: the registry only
// calls this after a snapshot of an already-created spec was saved.
func (a *specActor) processRecordSnapshot(snapshotEventID uint64) ([]Event, error) {
	if a.unavailable {
		return nil, ErrSpecUnavailable
	}
	event := Event{
		EventID:   a.state.LastEventID + 1,
		SpecID:    a.state.Core.SpecID,
		Timestamp: time.Now().UTC(),
		Payload:   SnapshotWrittenPayload{SnapshotEventID: snapshotEventID},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err := a.logWriter.Append(ctx, []Event{event})
	cancel()
	if err != nil {
		a.unavailable = true
		return nil, &IoError{Op: "append", Err: err}
	}

	a.state.Apply(&event)
	a.broadcaster.Broadcast(&event)
	return []Event{event}, nil
}

// commandToPayloads validates cmd against current state and returns the
// event payloads it produces. It does not mutate state.
func (a *specActor) commandToPayloads(cmd Command) ([]EventPayload, error) {
	switch c := cmd.(type) {
	case CreateSpecCommand:
		if a.state.Core.SpecID != zeroULID {
			return nil, &ValidationError{Reason: "spec already created"}
		}
		if strings.TrimSpace(c.Title) == "" {
			return nil, &ValidationError{Reason: "title must not be empty"}
		}
		if strings.TrimSpace(c.OneLiner) == "" {
			return nil, &ValidationError{Reason: "one_liner must not be empty"}
		}
		if strings.TrimSpace(c.Goal) == "" {
			return nil, &ValidationError{Reason: "goal must not be empty"}
		}
		return []EventPayload{SpecCreatedPayload{
			SpecID:   NewULID(),
			Title:    c.Title,
			OneLiner: c.OneLiner,
			Goal:     c.Goal,
		}}, nil

	case UpdateCoreCommand:
		if err := a.requireCreated(); err != nil {
			return nil, err
		}
		if !c.Title.Set && !c.OneLiner.Set && !c.Goal.Set && !c.Description.Set &&
			!c.Constraints.Set && !c.SuccessCriteria.Set && !c.Risks.Set && !c.Notes.Set {
			return nil, &ValidationError{Reason: "update_core requires at least one field"}
		}
		if err := validateRequiredOptField(c.Title, "title"); err != nil {
			return nil, err
		}
		if err := validateRequiredOptField(c.OneLiner, "one_liner"); err != nil {
			return nil, err
		}
		if err := validateRequiredOptField(c.Goal, "goal"); err != nil {
			return nil, err
		}
		return []EventPayload{CoreUpdatedPayload{
			Title:           c.Title,
			OneLiner:        c.OneLiner,
			Goal:            c.Goal,
			Description:     c.Description,
			Constraints:     c.Constraints,
			SuccessCriteria: c.SuccessCriteria,
			Risks:           c.Risks,
			Notes:           c.Notes,
		}}, nil

	case CreateCardCommand:
		if err := a.requireCreated(); err != nil {
			return nil, err
		}
		if strings.TrimSpace(c.Title) == "" {
			return nil, &ValidationError{Reason: "card title must not be empty"}
		}
		card := NewCard(c.CardType, c.Title, c.CreatedBy)
		if c.Lane != "" {
			card.Lane = c.Lane
		}
		return []EventPayload{CardCreatedPayload{Card: card}}, nil

	case UpdateCardCommand:
		if err := a.requireCreated(); err != nil {
			return nil, err
		}
		if _, ok := a.state.Cards.Get(c.CardID); !ok {
			return nil, &CardNotFoundError{CardID: c.CardID}
		}
		if c.Title == nil && c.CardType == nil && !c.Body.Set {
			return nil, &ValidationError{Reason: "update_card requires at least one changed field"}
		}
		if c.Title != nil && strings.TrimSpace(*c.Title) == "" {
			return nil, &ValidationError{Reason: "card title must not be empty"}
		}
		return []EventPayload{CardUpdatedPayload{
			CardID:    c.CardID,
			Title:     c.Title,
			CardType:  c.CardType,
			Body:      c.Body,
			UpdatedBy: c.UpdatedBy,
		}}, nil

	case MoveCardCommand:
		if err := a.requireCreated(); err != nil {
			return nil, err
		}
		if strings.TrimSpace(c.Lane) == "" {
			return nil, &ValidationError{Reason: "lane must not be empty"}
		}
		if math.IsNaN(c.Order) || math.IsInf(c.Order, 0) {
			return nil, &ValidationError{Reason: "order must be a finite number"}
		}
		current, ok := a.state.Cards.Get(c.CardID)
		if !ok {
			return nil, &CardNotFoundError{CardID: c.CardID}
		}
		if current.Lane == c.Lane && current.Order == c.Order {
			return nil, nil
		}
		return []EventPayload{CardMovedPayload{
			CardID:    c.CardID,
			FromLane:  current.Lane,
			FromOrder: current.Order,
			ToLane:    c.Lane,
			ToOrder:   c.Order,
			UpdatedBy: c.UpdatedBy,
		}}, nil

	case DeleteCardCommand:
		if err := a.requireCreated(); err != nil {
			return nil, err
		}
		current, ok := a.state.Cards.Get(c.CardID)
		if !ok {
			return nil, &CardNotFoundError{CardID: c.CardID}
		}
		return []EventPayload{CardDeletedPayload{Card: current}}, nil

	case AppendTranscriptCommand:
		if err := a.requireCreated(); err != nil {
			return nil, err
		}
		return []EventPayload{TranscriptAppendedPayload{
			Message: NewTranscriptMessage(c.AgentID, c.Text),
		}}, nil

	case StartAgentStepCommand:
		if err := a.requireCreated(); err != nil {
			return nil, err
		}
		msg := NewTranscriptMessage(c.AgentID, c.Text)
		msg.Kind = MessageKindStepStarted
		return []EventPayload{AgentStepStartedPayload{Message: msg}}, nil

	case FinishAgentStepCommand:
		if err := a.requireCreated(); err != nil {
			return nil, err
		}
		msg := NewTranscriptMessage(c.AgentID, c.Text)
		msg.Kind = MessageKindStepFinished
		return []EventPayload{AgentStepFinishedPayload{Message: msg}}, nil

	case AskQuestionCommand:
		if err := a.requireCreated(); err != nil {
			return nil, err
		}
		if a.state.PendingQuestion != nil {
			return nil, ErrQuestionAlreadyPending
		}
		if mc, ok := c.Question.(MultipleChoiceQuestion); ok && len(mc.Options) == 0 {
			return nil, &ValidationError{Reason: "multiple_choice question requires at least one option"}
		}
		return []EventPayload{QuestionAskedPayload{Question: c.Question}}, nil

	case AnswerQuestionCommand:
		if err := a.requireCreated(); err != nil {
			return nil, err
		}
		if a.state.PendingQuestion == nil {
			return nil, ErrNoPendingQuestion
		}
		if a.state.PendingQuestion.QuestionID() != c.QuestionID {
			return nil, &QuestionIDMismatchError{Expected: a.state.PendingQuestion.QuestionID(), Got: c.QuestionID}
		}
		if err := validateAnswerShape(a.state.PendingQuestion, c.Answer); err != nil {
			return nil, err
		}
		return []EventPayload{QuestionAnsweredPayload{QuestionID: c.QuestionID, Answer: c.Answer}}, nil

	case UndoCommand:
		if err := a.requireCreated(); err != nil {
			return nil, err
		}
		if len(a.state.UndoStack) == 0 {
			return nil, ErrNothingToUndo
		}
		top := a.state.UndoStack[len(a.state.UndoStack)-1]
		return []EventPayload{UndoAppliedPayload{InverseEvents: top.InverseEvents}}, nil

	default:
		return nil, ErrUnknownCommand
	}
}

func (a *specActor) requireCreated() error {
	if a.state.Core.SpecID == zeroULID {
		return ErrSpecNotCreated
	}
	return nil
}

// validateRequiredOptField rejects an explicit null or a blank value for a
// required core field; an absent field passes.
func validateRequiredOptField(f OptionalField[string], name string) error {
	if !f.Set {
		return nil
	}
	if !f.Valid || strings.TrimSpace(f.Value) == "" {
		return &ValidationError{Reason: name + " must not be empty"}
	}
	return nil
}

// validateAnswerShape checks answer against the pending question's variant:
// yes/no (or true/false) for a boolean question, one of Options for a
// multiple-choice question (a comma-separated subset when AllowMulti is
// set), and any text for a freeform question.
func validateAnswerShape(q UserQuestion, answer string) error {
	switch v := q.(type) {
	case BooleanQuestion:
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "yes" && a != "no" && a != "true" && a != "false" {
			return &ValidationError{Reason: "boolean question requires a yes/no answer"}
		}
	case MultipleChoiceQuestion:
		picks := []string{answer}
		if v.AllowMulti {
			picks = strings.Split(answer, ",")
		}
		for _, pick := range picks {
			if !slices.Contains(v.Options, strings.TrimSpace(pick)) {
				return &ValidationError{Reason: "answer must name one of the question's options"}
			}
		}
	}
	return nil
}
