package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"testing"

	"github.com/device-track/dtc/internal/registry"
)

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open audit log: %v", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("invalid audit line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestRecordSuccessAndFailure(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger() failed: %v", err)
	}
	defer logger.Close()

	logger.Record(ActionJoin, "alice", "d1", nil)
	logger.Record(ActionPublish, "bob", "d2", registry.ErrNotAuthenticated)
	logger.Record(ActionPublish, "bob", "d2", fmt.Errorf("%w: extra context", registry.ErrNotAuthenticated))

	entries := readEntries(t, logger.FilePath())
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	if entries[0].Action != ActionJoin || entries[0].Outcome != "success" || entries[0].Code != "" {
		t.Errorf("unexpected success entry: %+v", entries[0])
	}
	if entries[1].Outcome != "failure" || entries[1].Code != "NOT_AUTHENTICATED" {
		t.Errorf("unexpected failure entry: %+v", entries[1])
	}
	// Wrapped errors resolve to the sentinel code, not the wrapper text.
	if entries[2].Code != "NOT_AUTHENTICATED" {
		t.Errorf("expected sentinel code for wrapped error, got %q", entries[2].Code)
	}
}

func TestNilLoggerIsNoOp(t *testing.T) {
	var logger *Logger

	// Must not panic.
	logger.Record(ActionAuthenticate, "alice", "", nil)
	if logger.FilePath() != "" {
		t.Error("nil logger must report empty file path")
	}
	if err := logger.Close(); err != nil {
		t.Errorf("nil logger Close() must be a no-op, got %v", err)
	}
}
