// ABOUTME: Registry is the process-wide driver: recovers every spec at startup,
// ABOUTME: spawns its actor and background loops, and is the single source list_specs reads from.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/specdaemon/specd/internal/agentctx"
	"github.com/specdaemon/specd/internal/core"
	"github.com/specdaemon/specd/internal/export"
	"github.com/specdaemon/specd/internal/store"
)

// Config controls how the registry sizes actor mailboxes and paces
// background snapshot/index maintenance.
type Config struct {
	MailboxSize          int
	BroadcastBufferSize  int
	SnapshotEveryNEvents uint64
	SnapshotInterval     time.Duration
}

func (c Config) withDefaults() Config {
	if c.SnapshotEveryNEvents == 0 {
		c.SnapshotEveryNEvents = 100
	}
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = 5 * time.Minute
	}
	return c
}

// Summary is a lightweight, in-memory view of a spec used by list_specs.
// It is read straight from the live actor, never from the derived index,
// so a stale or rebuilding index can never make a spec invisible.
type Summary struct {
	SpecID    ulid.ULID
	Title     string
	OneLiner  string
	Goal      string
	UpdatedAt time.Time
}

// Registry owns every spec's actor and background goroutines for the
// lifetime of the process.
type Registry struct {
	mgr *store.Manager
	cfg Config

	mu    sync.RWMutex
	specs map[ulid.ULID]*SpecHandle

	baseCtx context.Context
}

// SpecHandle bundles a running spec's actor with its durable log, index,
// agent contexts, and background maintenance goroutines.
type SpecHandle struct {
	SpecID ulid.ULID
	Dir    string
	Actor  *core.SpecActorHandle

	log   *store.JsonlLog
	index *store.Index

	ctxMu    sync.RWMutex
	contexts map[string]*agentctx.Context

	exportTrigger chan *core.SpecState

	cancel context.CancelFunc
	group  *errgroup.Group
}

// Index exposes the spec's derived query index, e.g. for read-mostly
// cross-card queries a caller wants without going through the actor.
func (h *SpecHandle) Index() *store.Index { return h.index }

// AgentContext returns the named agent's context, creating a fresh one if
// this is its first appearance on this spec.
func (h *SpecHandle) AgentContext(agentID string) *agentctx.Context {
	h.ctxMu.Lock()
	defer h.ctxMu.Unlock()
	ctx, ok := h.contexts[agentID]
	if !ok {
		ctx = agentctx.New(h.SpecID, agentID)
		h.contexts[agentID] = ctx
	}
	return ctx
}

func (h *SpecHandle) snapshotContexts() []*agentctx.Context {
	h.ctxMu.RLock()
	defer h.ctxMu.RUnlock()
	result := make([]*agentctx.Context, 0, len(h.contexts))
	for _, c := range h.contexts {
		result = append(result, c)
	}
	return result
}

// New creates a Registry rooted at dataRoot without recovering anything.
// Call RecoverAll to bring existing specs on disk back to life.
func New(ctx context.Context, dataRoot string, cfg Config) (*Registry, error) {
	mgr, err := store.NewManager(dataRoot)
	if err != nil {
		return nil, fmt.Errorf("create storage manager: %w", err)
	}
	return &Registry{
		mgr:     mgr,
		cfg:     cfg.withDefaults(),
		specs:   make(map[ulid.ULID]*SpecHandle),
		baseCtx: ctx,
	}, nil
}

// RecoverAll walks every spec directory under the data root, recovers its
// state, and spawns its actor and background loops. Individual spec
// recovery failures are logged and skipped rather than aborting startup.
func (r *Registry) RecoverAll() error {
	dirs, err := r.mgr.ListSpecDirs()
	if err != nil {
		return fmt.Errorf("list spec dirs: %w", err)
	}
	for _, dir := range dirs {
		if err := r.recoverAndRegister(dir); err != nil {
			log.Printf("component=registry action=recover_failed spec_id=%s err=%v", dir.SpecID, err)
			continue
		}
		log.Printf("component=registry action=recovered spec_id=%s", dir.SpecID)
	}
	return nil
}

func (r *Registry) recoverAndRegister(dir store.SpecDir) error {
	recovered, err := store.RecoverSpec(dir.SpecID, dir.Path)
	if err != nil {
		return fmt.Errorf("recover spec: %w", err)
	}

	contexts := make(map[string]*agentctx.Context, len(recovered.AgentContexts))
	rawContexts := make(map[string]json.RawMessage, len(recovered.AgentContexts))
	for agentID, data := range recovered.AgentContexts {
		rawContexts[agentID] = json.RawMessage(data)
	}
	for _, ctx := range agentctx.ContextsFromSnapshotMap(rawContexts) {
		contexts[ctx.AgentID] = ctx
	}

	return r.register(dir.SpecID, dir.Path, recovered.State, contexts)
}

// CreateSpec allocates a fresh spec directory, spawns its actor, and
// submits the CreateSpecCommand that establishes its core fields.
func (r *Registry) CreateSpec(ctx context.Context, title, oneLiner, goal string) (*SpecHandle, error) {
	specID := core.NewULID()
	dir, err := r.mgr.CreateSpecDir(specID)
	if err != nil {
		return nil, fmt.Errorf("create spec dir: %w", err)
	}

	handle, err := r.register(specID, dir, core.NewSpecState(), map[string]*agentctx.Context{})
	if err != nil {
		return nil, err
	}

	if _, err := handle.Actor.SendCommand(ctx, core.CreateSpecCommand{
		Title: title, OneLiner: oneLiner, Goal: goal,
	}); err != nil {
		return nil, fmt.Errorf("create spec command: %w", err)
	}
	return handle, nil
}

func (r *Registry) register(specID ulid.ULID, dir string, state *core.SpecState, contexts map[string]*agentctx.Context) (*SpecHandle, error) {
	logWriter, err := store.OpenJsonl(r.mgr.EventsPath(specID))
	if err != nil {
		return nil, fmt.Errorf("open jsonl log: %w", err)
	}
	index, err := store.OpenIndex(r.mgr.IndexPath(specID))
	if err != nil {
		_ = logWriter.Close()
		return nil, fmt.Errorf("open index: %w", err)
	}

	actor := core.SpawnActor(core.ActorOptions{
		MailboxSize:         r.cfg.MailboxSize,
		BroadcastBufferSize: r.cfg.BroadcastBufferSize,
		LogWriter:           logWriter,
		InitialState:        state,
	})

	handleCtx, cancel := context.WithCancel(r.baseCtx)
	group, gctx := errgroup.WithContext(handleCtx)

	handle := &SpecHandle{
		SpecID:        specID,
		Dir:           dir,
		Actor:         actor,
		log:           logWriter,
		index:         index,
		contexts:      contexts,
		exportTrigger: make(chan *core.SpecState, 1),
		cancel:        cancel,
		group:         group,
	}

	group.Go(func() error { return handle.runIndexSync(gctx) })
	group.Go(func() error { return handle.runSnapshotDriver(gctx, r.cfg) })
	group.Go(func() error { return handle.runExporter(gctx) })

	r.mu.Lock()
	r.specs[specID] = handle
	r.mu.Unlock()

	return handle, nil
}

// Get returns the handle for specID, or false if it isn't registered.
func (r *Registry) Get(specID ulid.ULID) (*SpecHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.specs[specID]
	return h, ok
}

// List returns a summary of every registered spec, read live from each
// spec's actor. Deliberately bypasses the derived index: list_specs must
// never miss a spec because its index shard is stale or mid-rebuild.
func (r *Registry) List(ctx context.Context) ([]Summary, error) {
	r.mu.RLock()
	handles := make([]*SpecHandle, 0, len(r.specs))
	for _, h := range r.specs {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	summaries := make([]Summary, 0, len(handles))
	for _, h := range handles {
		state, err := h.Actor.ReadState(ctx)
		if err != nil {
			log.Printf("component=registry action=list_read_failed spec_id=%s err=%v", h.SpecID, err)
			continue
		}
		summaries = append(summaries, Summary{
			SpecID:    h.SpecID,
			Title:     state.Core.Title,
			OneLiner:  state.Core.OneLiner,
			Goal:      state.Core.Goal,
			UpdatedAt: state.Core.UpdatedAt,
		})
	}
	return summaries, nil
}

// Shutdown stops every spec's background goroutines and closes its log and
// index. It does not wait for in-flight actor commands beyond their own
// context deadlines.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	handles := make([]*SpecHandle, 0, len(r.specs))
	for _, h := range r.specs {
		handles = append(handles, h)
	}
	r.specs = make(map[ulid.ULID]*SpecHandle)
	r.mu.Unlock()

	var firstErr error
	for _, h := range handles {
		h.cancel()
		if err := h.group.Wait(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := h.log.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := h.index.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// runIndexSync consumes broadcast events for this spec and applies them to
// the derived SQLite index. Apply failures mark the index dirty rather than
// tearing down the loop; the index is a cache, never authoritative.
func (h *SpecHandle) runIndexSync(ctx context.Context) error {
	ch, subID := h.Actor.Subscribe()
	defer h.Actor.Unsubscribe(subID)
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-ch:
			if !ok {
				return nil
			}
			if env.Event == nil {
				if env.Lagged > 0 {
					log.Printf("component=registry.index_sync action=lag_detected spec_id=%s missed=%d", h.SpecID, env.Lagged)
					h.index.MarkDirty()
				}
				continue
			}
			if err := h.index.ApplyEvent(h.SpecID, env.Event); err != nil {
				log.Printf("component=registry.index_sync action=apply_failed spec_id=%s event_id=%d err=%v",
					h.SpecID, env.Event.EventID, err)
				h.index.MarkDirty()
			}
		}
	}
}

// runSnapshotDriver saves a snapshot after SnapshotEveryNEvents new events,
// or every SnapshotInterval if any events arrived since the last snapshot,
// whichever comes first.
func (h *SpecHandle) runSnapshotDriver(ctx context.Context, cfg Config) error {
	ch, subID := h.Actor.Subscribe()
	defer h.Actor.Unsubscribe(subID)

	ticker := time.NewTicker(cfg.SnapshotInterval)
	defer ticker.Stop()

	var eventsSinceSnapshot uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-ch:
			if !ok {
				return nil
			}
			if env.Event == nil {
				continue
			}
			if _, marker := env.Event.Payload.(core.SnapshotWrittenPayload); marker {
				// the driver's own snapshot marker is not new activity
				continue
			}
			eventsSinceSnapshot++
			if eventsSinceSnapshot >= cfg.SnapshotEveryNEvents {
				h.trySnapshot(ctx)
				eventsSinceSnapshot = 0
			}
		case <-ticker.C:
			if eventsSinceSnapshot > 0 {
				h.trySnapshot(ctx)
				eventsSinceSnapshot = 0
			}
		}
	}
}

func (h *SpecHandle) trySnapshot(ctx context.Context) {
	if err := h.ForceSnapshot(ctx); err != nil {
		log.Printf("component=registry.snapshot action=failed spec_id=%s err=%v", h.SpecID, err)
	}
}

// ForceSnapshot saves a snapshot of the spec's current state immediately,
// bypassing the event-count/time-interval triggers. Used by both the
// background driver and the `specd snapshot` CLI command.
func (h *SpecHandle) ForceSnapshot(ctx context.Context) error {
	state, err := h.Actor.ReadState(ctx)
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}

	data := &store.SnapshotData{
		State:         state,
		LastEventID:   state.LastEventID,
		AgentContexts: agentctx.ContextsToSnapshotMap(h.snapshotContexts()),
		SavedAt:       time.Now(),
	}
	snapshotsDir := filepath.Join(h.Dir, "snapshots")
	if err := store.SaveSnapshot(snapshotsDir, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	log.Printf("component=registry.snapshot action=saved spec_id=%s last_event_id=%d", h.SpecID, state.LastEventID)

	if _, err := h.Actor.RecordSnapshotWritten(ctx, state.LastEventID); err != nil {
		log.Printf("component=registry.snapshot action=marker_failed spec_id=%s err=%v", h.SpecID, err)
	}

	select {
	case h.exportTrigger <- state:
	default:
		// an export is already pending; the latest state supersedes it
	}
	return nil
}

// runExporter regenerates the on-disk exports whenever a snapshot fires.
func (h *SpecHandle) runExporter(ctx context.Context) error {
	exportsDir := filepath.Join(h.Dir, "exports")
	for {
		select {
		case <-ctx.Done():
			return nil
		case state, ok := <-h.exportTrigger:
			if !ok {
				return nil
			}
			h.writeExports(exportsDir, state)
		}
	}
}

func (h *SpecHandle) writeExports(exportsDir string, state *core.SpecState) {
	md := export.ExportMarkdown(state)
	if err := os.WriteFile(filepath.Join(exportsDir, "spec.md"), []byte(md), 0o644); err != nil {
		log.Printf("component=registry.exporter action=write_failed spec_id=%s file=spec.md err=%v", h.SpecID, err)
	}

	yamlOut, err := export.ExportYAML(state)
	if err != nil {
		log.Printf("component=registry.exporter action=render_failed spec_id=%s file=spec.yaml err=%v", h.SpecID, err)
	} else if err := os.WriteFile(filepath.Join(exportsDir, "spec.yaml"), []byte(yamlOut), 0o644); err != nil {
		log.Printf("component=registry.exporter action=write_failed spec_id=%s file=spec.yaml err=%v", h.SpecID, err)
	}

	dot, err := export.ExportDOT(state)
	if err != nil {
		log.Printf("component=registry.exporter action=render_failed spec_id=%s file=pipeline.dot err=%v", h.SpecID, err)
	} else if err := os.WriteFile(filepath.Join(exportsDir, "pipeline.dot"), []byte(dot), 0o644); err != nil {
		log.Printf("component=registry.exporter action=write_failed spec_id=%s file=pipeline.dot err=%v", h.SpecID, err)
	}
}
