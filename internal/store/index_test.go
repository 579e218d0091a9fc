package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/specdaemon/specd/internal/core"
	"github.com/stretchr/testify/require"
)

func TestIndexUpsertAndList(t *testing.T) {
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer idx.Close()

	spec := core.NewSpecCore("t", "o", "g")
	require.NoError(t, idx.UpsertSpec(spec, time.Now().UTC()))

	card := core.NewCard("task", "ship it", "agent")
	require.NoError(t, idx.UpsertCard(spec.SpecID, card))

	specs, err := idx.ListSpecs()
	require.NoError(t, err)
	require.Len(t, specs, 1)
	require.Equal(t, "t", specs[0].Title)

	cards, err := idx.ListCards(spec.SpecID)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	require.Equal(t, "ship it", cards[0].Title)
}

func TestIndexRebuildFromEvents(t *testing.T) {
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer idx.Close()

	specID := core.NewULID()
	card := core.NewCard("task", "a card", "agent")
	events := []core.Event{
		{EventID: 1, Payload: core.SpecCreatedPayload{SpecID: specID, Title: "t", OneLiner: "o", Goal: "g"}},
		{EventID: 2, Payload: core.CardCreatedPayload{Card: card}},
	}
	require.NoError(t, idx.RebuildFromEvents(specID, events))

	lastID, found, err := idx.GetLastEventID()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(2), lastID)

	cards, err := idx.ListCards(specID)
	require.NoError(t, err)
	require.Len(t, cards, 1)
}

func TestIndexApplyEventDeleteCard(t *testing.T) {
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer idx.Close()

	specID := core.NewULID()
	card := core.NewCard("task", "a card", "agent")
	require.NoError(t, idx.ApplyEvent(specID, &core.Event{EventID: 1, Payload: core.SpecCreatedPayload{SpecID: specID, Title: "T", OneLiner: "O", Goal: "G"}}))
	require.NoError(t, idx.ApplyEvent(specID, &core.Event{EventID: 2, Payload: core.CardCreatedPayload{Card: card}}))
	require.NoError(t, idx.ApplyEvent(specID, &core.Event{EventID: 3, Payload: core.CardDeletedPayload{Card: card}}))

	cards, err := idx.ListCards(specID)
	require.NoError(t, err)
	require.Empty(t, cards)
}
