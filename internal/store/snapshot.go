// ABOUTME: Atomic snapshot save and load for SpecState persistence.
// ABOUTME: Writes snapshots with atomic rename for crash safety and loads the latest by event ID.
package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/specdaemon/specd/internal/core"
)

// SnapshotData is a full snapshot of spec state at a given event, plus the
// opaque per-agent context blobs that ride alongside it. The core package
// never inspects AgentContexts; only the store and registry packages read
// or write into it.
type SnapshotData struct {
	State         *core.SpecState
	LastEventID   uint64
	AgentContexts map[string]json.RawMessage
	SavedAt       time.Time
}

// undoEntryJSON mirrors core.UndoEntry but carries its InverseEvents as
// tagged JSON objects rather than relying on encoding/json's reflection over
// the core.EventPayload interface, which has no concrete type to unmarshal
// into on its own. Matches the same MarshalEventPayload/UnmarshalEventPayload
// round trip core/event.go already uses for UndoAppliedPayload.InverseEvents.
type undoEntryJSON struct {
	InverseEvents []json.RawMessage `json:"inverse_events"`
}

type snapshotStateJSON struct {
	Core            core.SpecCore            `json:"core"`
	Cards           map[string]core.Card     `json:"cards"`
	Lanes           []string                 `json:"lanes"`
	Transcript      []core.TranscriptMessage `json:"transcript"`
	PendingQuestion json.RawMessage          `json:"pending_question,omitempty"`
	UndoStack       []undoEntryJSON          `json:"undo_stack"`
	LastEventID     uint64                   `json:"last_event_id"`
	OpenBrackets    int                      `json:"open_brackets,omitempty"`
	PendingUndo     []json.RawMessage        `json:"pending_undo,omitempty"`
}

func marshalEventPayloads(payloads []core.EventPayload) ([]json.RawMessage, error) {
	encoded := make([]json.RawMessage, len(payloads))
	for i, p := range payloads {
		b, err := core.MarshalEventPayload(p)
		if err != nil {
			return nil, err
		}
		encoded[i] = b
	}
	return encoded, nil
}

func unmarshalEventPayloads(raw []json.RawMessage) ([]core.EventPayload, error) {
	decoded := make([]core.EventPayload, len(raw))
	for i, b := range raw {
		p, err := core.UnmarshalEventPayload(b)
		if err != nil {
			return nil, err
		}
		decoded[i] = p
	}
	return decoded, nil
}

type snapshotJSON struct {
	State         snapshotStateJSON          `json:"state"`
	LastEventID   uint64                     `json:"last_event_id"`
	AgentContexts map[string]json.RawMessage `json:"agent_contexts"`
	SavedAt       time.Time                  `json:"saved_at"`
}

// MarshalJSON serializes SnapshotData, converting the OrderedMap-backed
// card list and the UserQuestion interface into plain JSON shapes.
func (sd SnapshotData) MarshalJSON() ([]byte, error) {
	stateJSON := snapshotStateJSON{
		Core:         sd.State.Core,
		Cards:        make(map[string]core.Card, sd.State.Cards.Len()),
		Lanes:        sd.State.Lanes,
		Transcript:   sd.State.Transcript,
		LastEventID:  sd.State.LastEventID,
		OpenBrackets: sd.State.OpenBrackets,
	}
	sd.State.Cards.Range(func(k ulid.ULID, v core.Card) bool {
		stateJSON.Cards[k.String()] = v
		return true
	})
	if sd.State.PendingQuestion != nil {
		q, err := core.MarshalUserQuestion(sd.State.PendingQuestion)
		if err != nil {
			return nil, fmt.Errorf("marshal pending question: %w", err)
		}
		stateJSON.PendingQuestion = q
	}

	undoStack := make([]undoEntryJSON, len(sd.State.UndoStack))
	for i, entry := range sd.State.UndoStack {
		encoded, err := marshalEventPayloads(entry.InverseEvents)
		if err != nil {
			return nil, fmt.Errorf("marshal undo entry %d: %w", i, err)
		}
		undoStack[i] = undoEntryJSON{InverseEvents: encoded}
	}
	stateJSON.UndoStack = undoStack

	if len(sd.State.PendingUndo) > 0 {
		encoded, err := marshalEventPayloads(sd.State.PendingUndo)
		if err != nil {
			return nil, fmt.Errorf("marshal pending undo: %w", err)
		}
		stateJSON.PendingUndo = encoded
	}

	return json.Marshal(snapshotJSON{
		State:         stateJSON,
		LastEventID:   sd.LastEventID,
		AgentContexts: sd.AgentContexts,
		SavedAt:       sd.SavedAt,
	})
}

// UnmarshalJSON deserializes SnapshotData, rebuilding the OrderedMap and the
// UserQuestion interface value from their plain JSON shapes.
func (sd *SnapshotData) UnmarshalJSON(data []byte) error {
	var j snapshotJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}

	sd.LastEventID = j.LastEventID
	sd.AgentContexts = j.AgentContexts
	sd.SavedAt = j.SavedAt

	state := core.NewSpecState()
	state.Core = j.State.Core
	state.Lanes = j.State.Lanes
	state.Transcript = j.State.Transcript
	state.LastEventID = j.State.LastEventID
	state.OpenBrackets = j.State.OpenBrackets

	undoStack := make([]core.UndoEntry, len(j.State.UndoStack))
	for i, entry := range j.State.UndoStack {
		inverse, err := unmarshalEventPayloads(entry.InverseEvents)
		if err != nil {
			return fmt.Errorf("unmarshal undo entry %d: %w", i, err)
		}
		undoStack[i] = core.UndoEntry{InverseEvents: inverse}
	}
	state.UndoStack = undoStack

	if len(j.State.PendingUndo) > 0 {
		pending, err := unmarshalEventPayloads(j.State.PendingUndo)
		if err != nil {
			return fmt.Errorf("unmarshal pending undo: %w", err)
		}
		state.PendingUndo = pending
	}

	for keyStr, card := range j.State.Cards {
		id, err := ulid.Parse(keyStr)
		if err != nil {
			return fmt.Errorf("parse card ULID %q: %w", keyStr, err)
		}
		state.Cards.Set(id, card)
	}
	core.SortByKeyString(state.Cards)

	if len(j.State.PendingQuestion) > 0 && string(j.State.PendingQuestion) != "null" {
		q, err := core.UnmarshalUserQuestion(j.State.PendingQuestion)
		if err != nil {
			return fmt.Errorf("unmarshal pending question: %w", err)
		}
		state.PendingQuestion = q
	}
	if state.Transcript == nil {
		state.Transcript = []core.TranscriptMessage{}
	}
	if state.UndoStack == nil {
		state.UndoStack = []core.UndoEntry{}
	}

	sd.State = state
	return nil
}

// SaveSnapshot writes a snapshot to dir using atomic write (temp file,
// fsync, rename), named by its LastEventID so LoadLatestSnapshot can pick
// the newest without reading file contents first.
func SaveSnapshot(dir string, data *SnapshotData) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf("state_%d.tmp", data.LastEventID))
	finalPath := filepath.Join(dir, fmt.Sprintf("state_%d.json", data.LastEventID))

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	if _, err := tmpFile.Write(jsonData); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write snapshot data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("fsync snapshot: %w", err)
	}
	_ = tmpFile.Close()

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	if dir, err := os.Open(filepath.Dir(finalPath)); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}
	return nil
}

// LoadLatestSnapshot loads the snapshot with the highest event ID from dir.
// Returns nil, nil if dir does not exist or holds no snapshot files. A
// snapshot file that exists but fails to parse is treated the same as no
// snapshot at all, per spec.md §4.H's "snapshot parse failure → ignore the
// snapshot and replay from zero": the caller falls back to a full replay
// rather than aborting the whole spec's recovery over a checkpoint file.
func LoadLatestSnapshot(dir string) (*SnapshotData, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat snapshot dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("snapshot path is not a directory: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}

	var bestEventID uint64
	var bestPath string
	found := false
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "state_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		idStr := strings.TrimSuffix(strings.TrimPrefix(name, "state_"), ".json")
		eventID, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			continue
		}
		if !found || eventID > bestEventID {
			bestEventID = eventID
			bestPath = filepath.Join(dir, name)
			found = true
		}
	}
	if !found {
		return nil, nil
	}

	contents, err := os.ReadFile(bestPath)
	if err != nil {
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}
	var data SnapshotData
	if err := json.Unmarshal(contents, &data); err != nil {
		log.Printf("component=store.snapshot action=parse_failed path=%s err=%v ignoring_snapshot", bestPath, err)
		return nil, nil
	}
	return &data, nil
}
