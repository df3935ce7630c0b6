package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Action names recorded in the audit trail
const (
	ActionAuthenticate = "authenticate"
	ActionJoin         = "joinDeviceTopic"
	ActionLeave        = "leaveDeviceTopic"
	ActionPublish      = "publishFix"
)

// Entry is a single audit record.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	Subject   string    `json:"subject"`
	DeviceID  string    `json:"deviceId,omitempty"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	Code      string    `json:"code,omitempty"`
}

// Logger writes audit entries to an append-only JSONL file. A nil *Logger is
// a valid no-op logger, so call sites never need to branch on whether audit
// is enabled.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
}

// NewLogger creates an audit logger writing to <logDir>/audit.jsonl.
func NewLogger(logDir string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filePath := filepath.Join(logDir, "audit.jsonl")
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
	}, nil
}

// Record logs one action. subject may be empty for pre-auth failures; err nil
// means the action succeeded.
func (l *Logger) Record(action, subject, deviceID string, err error) {
	if l == nil {
		return
	}

	entry := Entry{
		Timestamp: time.Now().UTC(),
		Subject:   subject,
		DeviceID:  deviceID,
		Action:    action,
		Outcome:   "success",
	}
	if err != nil {
		entry.Outcome = "failure"
		entry.Code = codeFromError(err)
	}

	l.writeEntry(entry)
}

// writeEntry appends one JSON line to the audit file.
func (l *Logger) writeEntry(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal audit entry: %v\n", err)
		return
	}

	if _, err := l.file.Write(append(jsonData, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write audit entry: %v\n", err)
		return
	}

	if err := l.file.Sync(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to sync audit log: %v\n", err)
	}
}

// codeFromError maps an error chain to its audit code: the innermost sentinel
// error text, which by convention is an upper-snake code.
func codeFromError(err error) string {
	for unwrapped := err; unwrapped != nil; unwrapped = errors.Unwrap(unwrapped) {
		err = unwrapped
	}
	return err.Error()
}

// FilePath returns the path to the audit log file.
func (l *Logger) FilePath() string {
	if l == nil {
		return ""
	}
	return l.filePath
}

// Close closes the audit logger and its file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}
