// ABOUTME: Crash recovery and self-healing for spec state reconstruction.
// ABOUTME: Combines snapshot load, JSONL repair, event replay, and index integrity checks.
package store

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"
	"github.com/specdaemon/specd/internal/core"
)

// RecoveredSpec is the result of recovering a single spec directory.
type RecoveredSpec struct {
	SpecID        ulid.ULID
	State         *core.SpecState
	AgentContexts map[string][]byte
	LastEventID   uint64
}

// RecoverSpec recovers a spec's state from its storage directory following
// the fixed six-step sequence: load the latest snapshot, repair the JSONL
// log's tail, replay it, apply the post-snapshot tail to state, restore
// agent contexts from the snapshot, and check the SQLite index for
// staleness, rebuilding it if the index's last_event_id doesn't match.
func RecoverSpec(specID ulid.ULID, specDir string) (*RecoveredSpec, error) {
	eventsPath := filepath.Join(specDir, "events.jsonl")
	snapshotsDir := filepath.Join(specDir, "snapshots")
	indexPath := filepath.Join(specDir, "index.db")

	snapshot, err := LoadLatestSnapshot(snapshotsDir)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var state *core.SpecState
	var snapshotEventID uint64
	var agentContexts map[string][]byte

	if snapshot != nil {
		log.Printf("component=store.recovery action=snapshot_loaded spec_id=%s last_event_id=%d",
			specID, snapshot.LastEventID)
		state = snapshot.State
		snapshotEventID = snapshot.LastEventID
		agentContexts = make(map[string][]byte, len(snapshot.AgentContexts))
		for k, v := range snapshot.AgentContexts {
			agentContexts[k] = []byte(v)
		}
	} else {
		log.Printf("component=store.recovery action=no_snapshot spec_id=%s", specID)
		state = core.NewSpecState()
	}

	if _, err := os.Stat(eventsPath); err == nil {
		repaired, err := RepairJsonl(eventsPath)
		if err != nil {
			return nil, fmt.Errorf("repair jsonl: %w", err)
		}
		log.Printf("component=store.recovery action=jsonl_repaired spec_id=%s valid_events=%d", specID, repaired)
	}

	allEvents, err := ReplayJsonl(eventsPath)
	if err != nil {
		return nil, fmt.Errorf("replay jsonl: %w", err)
	}

	var tailCount int
	for i := range allEvents {
		if allEvents[i].EventID > snapshotEventID {
			state.Apply(&allEvents[i])
			tailCount++
		}
	}
	log.Printf("component=store.recovery action=tail_replayed spec_id=%s tail_events=%d total_events=%d",
		specID, tailCount, len(allEvents))

	lastEventID := state.LastEventID

	index, err := OpenIndex(indexPath)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer func() { _ = index.Close() }()

	indexLastID, found, err := index.GetLastEventID()
	if err != nil {
		return nil, fmt.Errorf("get index last_event_id: %w", err)
	}
	switch {
	case found && indexLastID == lastEventID:
		log.Printf("component=store.recovery action=index_current spec_id=%s last_event_id=%d", specID, indexLastID)
	case found:
		log.Printf("component=store.recovery action=index_stale spec_id=%s index_id=%d expected_id=%d rebuilding",
			specID, indexLastID, lastEventID)
		if err := index.RebuildFromEvents(specID, allEvents); err != nil {
			return nil, fmt.Errorf("rebuild index: %w", err)
		}
	default:
		log.Printf("component=store.recovery action=index_empty spec_id=%s building", specID)
		if err := index.RebuildFromEvents(specID, allEvents); err != nil {
			return nil, fmt.Errorf("build index: %w", err)
		}
	}

	return &RecoveredSpec{
		SpecID:        specID,
		State:         state,
		AgentContexts: agentContexts,
		LastEventID:   lastEventID,
	}, nil
}
