// ABOUTME: High-level storage manager for the daemon's on-disk layout.
// ABOUTME: Handles directory creation, spec directory discovery, and export paths.
package store

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"
)

// Manager owns the daemon's data root and provides directory-level
// operations for spec storage.
//
// Layout:
//
//	<root>/specs/<spec_id>/events.jsonl
//	<root>/specs/<spec_id>/index.db
//	<root>/specs/<spec_id>/snapshots/
//	<root>/specs/<spec_id>/exports/
type Manager struct {
	root string
}

// NewManager creates a Manager rooted at root, creating root/specs if needed.
func NewManager(root string) (*Manager, error) {
	specsDir := filepath.Join(root, "specs")
	if err := os.MkdirAll(specsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create specs dir: %w", err)
	}
	return &Manager{root: root}, nil
}

// Root returns the data root directory.
func (m *Manager) Root() string {
	return m.root
}

// SpecDir pairs a spec's ULID with its directory path.
type SpecDir struct {
	SpecID ulid.ULID
	Path   string
}

// ListSpecDirs scans root/specs for spec directories, skipping any entry
// whose name doesn't parse as a ULID.
func (m *Manager) ListSpecDirs() ([]SpecDir, error) {
	specsDir := filepath.Join(m.root, "specs")
	info, err := os.Stat(specsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat specs dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("specs path is not a directory: %s", specsDir)
	}

	entries, err := os.ReadDir(specsDir)
	if err != nil {
		return nil, fmt.Errorf("read specs dir: %w", err)
	}

	var results []SpecDir
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := ulid.Parse(entry.Name())
		if err != nil {
			log.Printf("component=store.manager action=skip_non_ulid_dir dir=%s", entry.Name())
			continue
		}
		results = append(results, SpecDir{SpecID: id, Path: filepath.Join(specsDir, entry.Name())})
	}
	return results, nil
}

// CreateSpecDir creates a spec's directory tree (snapshots/, exports/) and
// returns its path.
func (m *Manager) CreateSpecDir(specID ulid.ULID) (string, error) {
	specDir := filepath.Join(m.root, "specs", specID.String())
	if err := os.MkdirAll(filepath.Join(specDir, "snapshots"), 0o755); err != nil {
		return "", fmt.Errorf("create snapshots dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(specDir, "exports"), 0o755); err != nil {
		return "", fmt.Errorf("create exports dir: %w", err)
	}
	return specDir, nil
}

// SpecDirPath returns the path a spec's directory would have, without
// creating it.
func (m *Manager) SpecDirPath(specID ulid.ULID) string {
	return filepath.Join(m.root, "specs", specID.String())
}

// EventsPath returns the path to a spec's durable log file.
func (m *Manager) EventsPath(specID ulid.ULID) string {
	return filepath.Join(m.SpecDirPath(specID), "events.jsonl")
}

// SnapshotsDir returns the path to a spec's snapshot directory.
func (m *Manager) SnapshotsDir(specID ulid.ULID) string {
	return filepath.Join(m.SpecDirPath(specID), "snapshots")
}

// IndexPath returns the path to a spec's SQLite index file.
func (m *Manager) IndexPath(specID ulid.ULID) string {
	return filepath.Join(m.SpecDirPath(specID), "index.db")
}

// ExportsDir returns the path to a spec's exports directory.
func (m *Manager) ExportsDir(specID ulid.ULID) string {
	return filepath.Join(m.SpecDirPath(specID), "exports")
}
