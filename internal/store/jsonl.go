// ABOUTME: Append-only JSONL event log for durable event storage.
// ABOUTME: Provides crash-safe append, sequential replay, and repair for truncated files.
package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/specdaemon/specd/internal/core"
)

// JsonlLog is an append-only JSONL event log backed by a file. Each line is
// a single JSON-serialized core.Event followed by a newline. It implements
// core.LogWriter so a spec actor can hand it durability duty directly.
type JsonlLog struct {
	path string
	file *os.File
}

// OpenJsonl opens (or creates) a JSONL log file at the given path, creating
// parent directories as needed. The file is opened in append mode.
func OpenJsonl(path string) (*JsonlLog, error) {
	parent := filepath.Dir(path)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("create parent dirs: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open jsonl file: %w", err)
	}
	return &JsonlLog{path: path, file: file}, nil
}

// Path returns the path to the underlying JSONL file.
func (l *JsonlLog) Path() string {
	return l.path
}

// Append serializes each event as one JSON line, writes the whole batch,
// and fsyncs once. A write or sync failure can leave part of the batch on
// disk; the caller then treats the actor as unavailable, and RepairJsonl
// drops a torn last line on the next recovery.
func (l *JsonlLog) Append(ctx context.Context, events []core.Event) error {
	if len(events) == 0 {
		return nil
	}
	var buf []byte
	for i := range events {
		data, err := json.Marshal(&events[i])
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		buf = append(buf, data...)
		buf = append(buf, '\n')
	}
	if _, err := l.file.Write(buf); err != nil {
		return fmt.Errorf("write event batch: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (l *JsonlLog) Close() error {
	return l.file.Close()
}

// ReplayJsonl reads all events from a JSONL file, returning them in order.
// Empty lines are skipped. Returns an empty slice for empty or missing files.
func ReplayJsonl(path string) ([]core.Event, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open jsonl for replay: %w", err)
	}
	defer func() { _ = file.Close() }()

	var events []core.Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event core.Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return nil, fmt.Errorf("parse event line: %w", err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan jsonl file: %w", err)
	}
	return events, nil
}

// RepairJsonl repairs a torn write left by a crash mid-append: only the
// final line may be incomplete (missing its trailing newline) or fail to
// parse, and that line is truncated away. A parse failure on any earlier
// line means the file was corrupted somewhere other than the tail of a
// single in-flight append, which this repair cannot safely paper over; it
// is returned as *core.LogCorruption rather than silently dropped. Uses
// atomic temp-file + fsync + rename. Returns the count of valid events
// retained.
func RepairJsonl(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open jsonl for repair: %w", err)
	}
	if len(raw) == 0 {
		return 0, nil
	}

	terminated := raw[len(raw)-1] == '\n'
	text := strings.TrimSuffix(string(raw), "\n")
	lines := strings.Split(text, "\n")

	var validLines []string
	var offset int64
	for i, line := range lines {
		isLast := i == len(lines)-1
		var event core.Event
		parseErr := json.Unmarshal([]byte(line), &event)
		if isLast && (parseErr != nil || !terminated) {
			// Torn tail: either the line itself is incomplete JSON, or it
			// parsed but the crash landed before the trailing newline was
			// written. Either way the whole line is dropped.
			break
		}
		if parseErr != nil {
			return 0, &core.LogCorruption{Path: path, Offset: offset, Reason: "malformed event line"}
		}
		validLines = append(validLines, line)
		offset += int64(len(line)) + 1
	}

	count := len(validLines)
	if count == len(lines) && terminated {
		// Nothing to repair.
		return count, nil
	}

	tmpPath := path + ".tmp"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	for _, line := range validLines {
		if _, err := fmt.Fprintln(tmpFile, line); err != nil {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
			return 0, fmt.Errorf("write valid line: %w", err)
		}
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("fsync temp file: %w", err)
	}
	_ = tmpFile.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("rename temp to original: %w", err)
	}

	parent := filepath.Dir(path)
	if dir, err := os.Open(parent); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}

	return count, nil
}
