// ABOUTME: Typed errors returned by command validation, the actor mailbox, and the durable log.
// ABOUTME: Sentinel values for zero-argument cases, small struct types where the error carries data.
package core

import (
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrSpecNotCreated is returned when a command targets a spec that has
	// no SpecCreated event yet.
	ErrSpecNotCreated = errors.New("core: spec not created")

	// ErrQuestionAlreadyPending is returned by AskQuestion when a question
	// is already awaiting an answer.
	ErrQuestionAlreadyPending = errors.New("core: a question is already pending")

	// ErrNoPendingQuestion is returned by AnswerQuestion when there is
	// nothing to answer.
	ErrNoPendingQuestion = errors.New("core: no question is pending")

	// ErrNothingToUndo is returned by Undo when the undo stack is empty.
	ErrNothingToUndo = errors.New("core: nothing to undo")

	// ErrChannelClosed is returned when a command is sent to an actor whose
	// mailbox has already been torn down.
	ErrChannelClosed = errors.New("core: actor channel closed")

	// ErrMailboxFull is returned immediately, without blocking, when a
	// command can't be enqueued because the actor's mailbox is at capacity.
	ErrMailboxFull = errors.New("core: actor mailbox full")

	// ErrSpecUnavailable is returned when the durable log failed to
	// acknowledge the most recent write and the actor is refusing further
	// mutations until it is restarted from recovery.
	ErrSpecUnavailable = errors.New("core: spec unavailable after durable write failure")

	// ErrUnknownCommand is returned for a command variant the actor does
	// not recognize.
	ErrUnknownCommand = errors.New("core: unknown command")
)

// ValidationError wraps a rejected command with a human-readable reason.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("core: validation failed: %s", e.Reason)
}

// CardNotFoundError is returned when a command references a card_id that
// does not exist in the current state.
type CardNotFoundError struct {
	CardID ulid.ULID
}

func (e *CardNotFoundError) Error() string {
	return fmt.Sprintf("core: card not found: %s", e.CardID)
}

// QuestionIDMismatchError is returned when AnswerQuestion's question_id does
// not match the currently pending question.
type QuestionIDMismatchError struct {
	Expected ulid.ULID
	Got      ulid.ULID
}

func (e *QuestionIDMismatchError) Error() string {
	return fmt.Sprintf("core: question id mismatch: expected %s, got %s", e.Expected, e.Got)
}

// LogCorruption reports that the durable log contains an entry that could
// not be repaired by truncating a torn tail: replay cannot continue safely.
type LogCorruption struct {
	Path   string
	Offset int64
	Reason string
}

func (e *LogCorruption) Error() string {
	return fmt.Sprintf("core: log corruption in %s at offset %d: %s", e.Path, e.Offset, e.Reason)
}

// IoError wraps an underlying I/O failure encountered while appending to or
// reading the durable log or a snapshot file.
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("core: io error during %s: %v", e.Op, e.Err)
}

func (e *IoError) Unwrap() error {
	return e.Err
}
