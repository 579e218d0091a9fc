package main

import (
	"io"
	"os"
	"strings"
	"testing"
)

// captureStdout redirects os.Stdout for the duration of fn and returns
// everything written to it. Grounded on the same os.Pipe swap used
// throughout the pack's cmd-package tests.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read captured stdout: %v", err)
	}
	return string(out)
}

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	var out string
	captured := captureStdout(t, func() {
		rootCmd.SetArgs(args)
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("specd %v: %v", args, err)
		}
	})
	out = captured
	return out
}

func TestCreateThenListRoundTrip(t *testing.T) {
	dataRoot := t.TempDir()

	createOut := runCLI(t, "create",
		"--data_root", dataRoot,
		"--title", "Checkout revamp",
		"--one-liner", "Rebuild the checkout flow",
		"--goal", "Ship a faster checkout",
	)
	specID := strings.TrimSpace(createOut)
	if specID == "" {
		t.Fatalf("create printed no spec id, got %q", createOut)
	}

	listOut := runCLI(t, "list", "--data_root", dataRoot)
	if !strings.Contains(listOut, specID) {
		t.Errorf("list output %q does not contain created spec id %q", listOut, specID)
	}
	if !strings.Contains(listOut, "Checkout revamp") {
		t.Errorf("list output %q does not contain the spec title", listOut)
	}
}

func TestListWithNoSpecsPrintsEmptyMessage(t *testing.T) {
	dataRoot := t.TempDir()

	listOut := runCLI(t, "list", "--data_root", dataRoot)
	if !strings.Contains(listOut, "No specs found") {
		t.Errorf("expected empty-state message, got %q", listOut)
	}
}

func TestSubmitCreateCardAndExportMarkdown(t *testing.T) {
	dataRoot := t.TempDir()

	createOut := runCLI(t, "create",
		"--data_root", dataRoot,
		"--title", "Onboarding",
		"--one-liner", "New user onboarding",
		"--goal", "Reduce drop-off",
	)
	specID := strings.TrimSpace(createOut)

	submitOut := runCLI(t, "submit", "--data_root", dataRoot, specID,
		`{"type":"create_card","card_type":"task","title":"write welcome email","created_by":"cli"}`,
	)
	if !strings.Contains(submitOut, "event #") {
		t.Errorf("submit output %q does not report an emitted event", submitOut)
	}

	exportOut := runCLI(t, "export", "--data_root", dataRoot, specID, "--format", "markdown")
	if !strings.Contains(exportOut, "write welcome email") {
		t.Errorf("markdown export %q does not contain the created card", exportOut)
	}
}

func TestReplayReportsRecoveredState(t *testing.T) {
	dataRoot := t.TempDir()

	createOut := runCLI(t, "create",
		"--data_root", dataRoot,
		"--title", "Billing overhaul",
		"--one-liner", "Fix billing edge cases",
		"--goal", "Zero billing bugs",
	)
	specID := strings.TrimSpace(createOut)

	replayOut := runCLI(t, "replay", "--data_root", dataRoot, specID)
	if !strings.Contains(replayOut, "Billing overhaul") {
		t.Errorf("replay output %q does not contain the spec title", replayOut)
	}
	if !strings.Contains(replayOut, "spec_id: "+specID) {
		t.Errorf("replay output %q does not echo the spec id", replayOut)
	}
}

func TestSnapshotSucceedsForExistingSpec(t *testing.T) {
	dataRoot := t.TempDir()

	createOut := runCLI(t, "create",
		"--data_root", dataRoot,
		"--title", "Search relevance",
		"--one-liner", "Improve ranking",
		"--goal", "Better top-3 accuracy",
	)
	specID := strings.TrimSpace(createOut)

	snapshotOut := runCLI(t, "snapshot", "--data_root", dataRoot, specID)
	if !strings.Contains(snapshotOut, "snapshot saved") {
		t.Errorf("snapshot output %q does not confirm success", snapshotOut)
	}
}
