// ABOUTME: SQLite-backed index for fast spec and card queries without replaying events.
// ABOUTME: Always rebuildable from the event log; never the source of truth for a spec's existence.
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
	"github.com/specdaemon/specd/internal/core"
)

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

// SpecSummary is a summary row for list queries.
type SpecSummary struct {
	SpecID    string
	Title     string
	OneLiner  string
	Goal      string
	UpdatedAt string
}

// CardRow is a card row for list query results.
type CardRow struct {
	CardID    string
	SpecID    string
	CardType  string
	Title     string
	Body      *string
	Lane      string
	SortOrder float64
	CreatedBy string
	UpdatedAt string
}

// Index is a SQLite-backed cache mirroring spec and card data for fast
// reads. It is disposable: any component that finds it stale or missing
// rebuilds it from the event log rather than treating it as authoritative.
type Index struct {
	db *sql.DB

	dirtyMu sync.Mutex
	dirty   bool
}

// OpenIndex opens or creates a SQLite index database at path and runs its schema.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS specs (
			spec_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			one_liner TEXT NOT NULL,
			goal TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS cards (
			card_id TEXT PRIMARY KEY,
			spec_id TEXT NOT NULL,
			card_type TEXT NOT NULL,
			title TEXT NOT NULL,
			body TEXT,
			lane TEXT NOT NULL,
			sort_order REAL NOT NULL,
			created_by TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY (spec_id) REFERENCES specs(spec_id)
		);

		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close closes the underlying database connection.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// MarkDirty records that this index has fallen out of sync with the event
// log, e.g. after an ApplyEvent failure during live index-sync. Dirty is
// sticky until a caller rebuilds the index and calls ClearDirty.
func (idx *Index) MarkDirty() {
	idx.dirtyMu.Lock()
	idx.dirty = true
	idx.dirtyMu.Unlock()
}

// ClearDirty resets the dirty flag, typically right after RebuildFromEvents.
func (idx *Index) ClearDirty() {
	idx.dirtyMu.Lock()
	idx.dirty = false
	idx.dirtyMu.Unlock()
}

// IsDirty reports whether the index is known to be out of sync.
func (idx *Index) IsDirty() bool {
	idx.dirtyMu.Lock()
	defer idx.dirtyMu.Unlock()
	return idx.dirty
}

// UpsertSpec inserts or updates a spec row.
func (idx *Index) UpsertSpec(spec core.SpecCore, updatedAt time.Time) error {
	_, err := idx.db.Exec(
		`INSERT INTO specs (spec_id, title, one_liner, goal, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(spec_id) DO UPDATE SET
			title = excluded.title,
			one_liner = excluded.one_liner,
			goal = excluded.goal,
			updated_at = excluded.updated_at`,
		spec.SpecID.String(), spec.Title, spec.OneLiner, spec.Goal, updatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("upsert spec: %w", err)
	}
	return nil
}

// UpsertCard inserts or updates a card row.
func (idx *Index) UpsertCard(specID ulid.ULID, card core.Card) error {
	_, err := idx.db.Exec(
		`INSERT INTO cards (card_id, spec_id, card_type, title, body, lane, sort_order, created_by, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(card_id) DO UPDATE SET
			card_type = excluded.card_type,
			title = excluded.title,
			body = excluded.body,
			lane = excluded.lane,
			sort_order = excluded.sort_order,
			updated_at = excluded.updated_at`,
		card.CardID.String(), specID.String(), card.CardType, card.Title, card.Body,
		card.Lane, card.Order, card.CreatedBy, card.UpdatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("upsert card: %w", err)
	}
	return nil
}

// DeleteCard removes a card row by card_id.
func (idx *Index) DeleteCard(cardID ulid.ULID) error {
	if _, err := idx.db.Exec("DELETE FROM cards WHERE card_id = ?", cardID.String()); err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	return nil
}

// ListSpecs returns all specs ordered by updated_at descending.
func (idx *Index) ListSpecs() ([]SpecSummary, error) {
	rows, err := idx.db.Query("SELECT spec_id, title, one_liner, goal, updated_at FROM specs ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("query specs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var specs []SpecSummary
	for rows.Next() {
		var s SpecSummary
		if err := rows.Scan(&s.SpecID, &s.Title, &s.OneLiner, &s.Goal, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan spec row: %w", err)
		}
		specs = append(specs, s)
	}
	return specs, rows.Err()
}

// ListCards returns all cards for specID ordered by sort_order ascending.
func (idx *Index) ListCards(specID ulid.ULID) ([]CardRow, error) {
	rows, err := idx.db.Query(
		`SELECT card_id, spec_id, card_type, title, body, lane, sort_order, created_by, updated_at
		 FROM cards WHERE spec_id = ? ORDER BY sort_order ASC`, specID.String())
	if err != nil {
		return nil, fmt.Errorf("query cards: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cards []CardRow
	for rows.Next() {
		var c CardRow
		if err := rows.Scan(&c.CardID, &c.SpecID, &c.CardType, &c.Title, &c.Body,
			&c.Lane, &c.SortOrder, &c.CreatedBy, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan card row: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// GetLastEventID returns the last event ID this index reflects.
func (idx *Index) GetLastEventID() (uint64, bool, error) {
	var val string
	err := idx.db.QueryRow("SELECT value FROM meta WHERE key = 'last_event_id'").Scan(&val)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query last_event_id: %w", err)
	}
	var id uint64
	if _, err := fmt.Sscanf(val, "%d", &id); err != nil {
		return 0, false, fmt.Errorf("parse last_event_id: %w", err)
	}
	return id, true, nil
}

// SetLastEventID records the last event ID this index reflects.
func (idx *Index) SetLastEventID(eventID uint64) error {
	_, err := idx.db.Exec(
		`INSERT INTO meta (key, value) VALUES ('last_event_id', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		fmt.Sprintf("%d", eventID))
	if err != nil {
		return fmt.Errorf("set last_event_id: %w", err)
	}
	return nil
}

// RebuildFromEvents clears all rows and rebuilds the index by replaying
// every event for specID from scratch.
func (idx *Index) RebuildFromEvents(specID ulid.ULID, events []core.Event) error {
	if _, err := idx.db.Exec("DELETE FROM cards WHERE spec_id = ?", specID.String()); err != nil {
		return fmt.Errorf("clear cards: %w", err)
	}
	if _, err := idx.db.Exec("DELETE FROM specs WHERE spec_id = ?", specID.String()); err != nil {
		return fmt.Errorf("clear specs: %w", err)
	}
	if _, err := idx.db.Exec("DELETE FROM meta"); err != nil {
		return fmt.Errorf("clear meta: %w", err)
	}
	for i := range events {
		if err := idx.ApplyEvent(specID, &events[i]); err != nil {
			return fmt.Errorf("apply event %d during rebuild: %w", events[i].EventID, err)
		}
	}
	idx.ClearDirty()
	return nil
}

// ApplyEvent incrementally applies a single event to the index. Failures
// here are the caller's cue to mark the index dirty rather than propagate;
// the index is a cache, not a durability boundary.
func (idx *Index) ApplyEvent(specID ulid.ULID, event *core.Event) error {
	ts := event.Timestamp.Format(timeLayout)

	switch p := event.Payload.(type) {
	case core.SpecCreatedPayload:
		if _, err := idx.db.Exec(
			`INSERT INTO specs (spec_id, title, one_liner, goal, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(spec_id) DO UPDATE SET
				title = excluded.title, one_liner = excluded.one_liner,
				goal = excluded.goal, updated_at = excluded.updated_at`,
			specID.String(), p.Title, p.OneLiner, p.Goal, ts); err != nil {
			return fmt.Errorf("apply SpecCreated: %w", err)
		}

	case core.CoreUpdatedPayload:
		// nil leaves a column as it is (COALESCE keeps the stored value)
		var patch [3]*string
		for i, f := range []core.OptionalField[string]{p.Title, p.OneLiner, p.Goal} {
			if f.Set && f.Valid {
				v := f.Value
				patch[i] = &v
			}
		}
		if _, err := idx.db.Exec(
			`UPDATE specs SET title = COALESCE(?, title), one_liner = COALESCE(?, one_liner),
				goal = COALESCE(?, goal), updated_at = ? WHERE spec_id = ?`,
			patch[0], patch[1], patch[2], ts, specID.String()); err != nil {
			return fmt.Errorf("apply CoreUpdated: %w", err)
		}

	case core.CardCreatedPayload:
		if err := idx.UpsertCard(specID, p.Card); err != nil {
			return fmt.Errorf("apply CardCreated: %w", err)
		}

	case core.CardUpdatedPayload:
		if p.Title != nil {
			if _, err := idx.db.Exec("UPDATE cards SET title = ?, updated_at = ? WHERE card_id = ?",
				*p.Title, ts, p.CardID.String()); err != nil {
				return fmt.Errorf("apply CardUpdated title: %w", err)
			}
		}
		if p.CardType != nil {
			if _, err := idx.db.Exec("UPDATE cards SET card_type = ?, updated_at = ? WHERE card_id = ?",
				*p.CardType, ts, p.CardID.String()); err != nil {
				return fmt.Errorf("apply CardUpdated card_type: %w", err)
			}
		}
		if p.Body.Set {
			var body *string
			if p.Body.Valid {
				body = &p.Body.Value
			}
			if _, err := idx.db.Exec("UPDATE cards SET body = ?, updated_at = ? WHERE card_id = ?",
				body, ts, p.CardID.String()); err != nil {
				return fmt.Errorf("apply CardUpdated body: %w", err)
			}
		}
		if _, err := idx.db.Exec("UPDATE cards SET updated_at = ? WHERE card_id = ?", ts, p.CardID.String()); err != nil {
			return fmt.Errorf("apply CardUpdated updated_at: %w", err)
		}

	case core.CardMovedPayload:
		if _, err := idx.db.Exec("UPDATE cards SET lane = ?, sort_order = ?, updated_at = ? WHERE card_id = ?",
			p.ToLane, p.ToOrder, ts, p.CardID.String()); err != nil {
			return fmt.Errorf("apply CardMoved: %w", err)
		}

	case core.CardDeletedPayload:
		if err := idx.DeleteCard(p.Card.CardID); err != nil {
			return fmt.Errorf("apply CardDeleted: %w", err)
		}

	case core.UndoAppliedPayload:
		for _, inversePayload := range p.InverseEvents {
			synthetic := &core.Event{EventID: event.EventID, SpecID: event.SpecID, Timestamp: event.Timestamp, Payload: inversePayload}
			if err := idx.ApplyEvent(specID, synthetic); err != nil {
				return fmt.Errorf("apply UndoApplied inverse: %w", err)
			}
		}

	default:
		// transcript/step/question events don't affect the index
	}

	if err := idx.SetLastEventID(event.EventID); err != nil {
		return fmt.Errorf("set last_event_id after apply: %w", err)
	}
	return nil
}
