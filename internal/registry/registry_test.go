package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/specdaemon/specd/internal/core"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		MailboxSize:          16,
		BroadcastBufferSize:  16,
		SnapshotEveryNEvents: 2,
		SnapshotInterval:     20 * time.Millisecond,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", timeout)
	}
}

func TestCreateSpecRegistersAndAppearsInList(t *testing.T) {
	dir := t.TempDir()
	reg, err := New(context.Background(), dir, testConfig())
	require.NoError(t, err)
	defer func() { _ = reg.Shutdown() }()

	handle, err := reg.CreateSpec(context.Background(), "Widget Factory", "builds widgets", "ship v1")
	require.NoError(t, err)

	got, ok := reg.Get(handle.SpecID)
	require.True(t, ok)
	require.Equal(t, handle.SpecID, got.SpecID)

	summaries, err := reg.List(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, "Widget Factory", summaries[0].Title)
}

func TestSnapshotDriverWritesSnapshotAndExportsAfterThreshold(t *testing.T) {
	dir := t.TempDir()
	reg, err := New(context.Background(), dir, testConfig())
	require.NoError(t, err)
	defer func() { _ = reg.Shutdown() }()

	handle, err := reg.CreateSpec(context.Background(), "Widget Factory", "builds widgets", "ship v1")
	require.NoError(t, err)

	_, err = handle.Actor.SendCommand(context.Background(), core.CreateCardCommand{
		CardType: "task", Title: "design the API", CreatedBy: "agent",
	})
	require.NoError(t, err)

	snapshotsDir := filepath.Join(handle.Dir, "snapshots")
	waitFor(t, time.Second, func() bool {
		entries, _ := os.ReadDir(snapshotsDir)
		return len(entries) > 0
	})

	exportsDir := filepath.Join(handle.Dir, "exports")
	waitFor(t, time.Second, func() bool {
		_, err := os.Stat(filepath.Join(exportsDir, "spec.md"))
		return err == nil
	})

	mdBytes, err := os.ReadFile(filepath.Join(exportsDir, "spec.md"))
	require.NoError(t, err)
	require.Contains(t, string(mdBytes), "Widget Factory")
}

func TestForceSnapshotEmitsSnapshotWrittenMarker(t *testing.T) {
	dir := t.TempDir()
	reg, err := New(context.Background(), dir, testConfig())
	require.NoError(t, err)
	defer func() { _ = reg.Shutdown() }()

	handle, err := reg.CreateSpec(context.Background(), "Widget Factory", "builds widgets", "ship v1")
	require.NoError(t, err)

	sub, subID := handle.Actor.Subscribe()
	defer handle.Actor.Unsubscribe(subID)

	require.NoError(t, handle.ForceSnapshot(context.Background()))

	var marker *core.SnapshotWrittenPayload
	deadline := time.After(time.Second)
	for marker == nil {
		select {
		case env := <-sub:
			if env.Event == nil {
				continue
			}
			if p, ok := env.Event.Payload.(core.SnapshotWrittenPayload); ok {
				marker = &p
			}
		case <-deadline:
			t.Fatal("timed out waiting for SnapshotWritten event")
		}
	}
}

func TestIndexSyncAppliesEventsToIndex(t *testing.T) {
	dir := t.TempDir()
	reg, err := New(context.Background(), dir, testConfig())
	require.NoError(t, err)
	defer func() { _ = reg.Shutdown() }()

	handle, err := reg.CreateSpec(context.Background(), "Widget Factory", "builds widgets", "ship v1")
	require.NoError(t, err)

	waitFor(t, time.Second, func() bool {
		specs, err := handle.Index().ListSpecs()
		return err == nil && len(specs) == 1
	})
}

func TestRecoverAllRestoresSpecsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	reg1, err := New(ctx, dir, testConfig())
	require.NoError(t, err)

	handle, err := reg1.CreateSpec(ctx, "Widget Factory", "builds widgets", "ship v1")
	require.NoError(t, err)
	specID := handle.SpecID
	require.NoError(t, reg1.Shutdown())

	reg2, err := New(ctx, dir, testConfig())
	require.NoError(t, err)
	defer func() { _ = reg2.Shutdown() }()
	require.NoError(t, reg2.RecoverAll())

	got, ok := reg2.Get(specID)
	require.True(t, ok)

	state, err := got.Actor.ReadState(ctx)
	require.NoError(t, err)
	require.Equal(t, "Widget Factory", state.Core.Title)
}
