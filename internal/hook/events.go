// Package hook persists command events reported by the installed shell hooks
// and binds them back to suggestions that are waiting for an outcome.
package hook

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wut-cli/wut/internal/appdirs"
	"github.com/wut-cli/wut/internal/safety"
	"github.com/wut-cli/wut/internal/validate"
)

const (
	eventsFileName    = "events.jsonl"
	maxCommandLength  = 8192
	maxEventLineBytes = 1024 * 1024
)

// Event is one executed command as seen by a shell hook.
type Event struct {
	Command   string `json:"command"`
	ExitCode  int    `json:"exit_code"`
	CWD       string `json:"cwd"`
	Shell     string `json:"shell"`
	SessionID string `json:"session_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// RecordEvent appends one event to the JSONL log. Commands are redacted
// before they touch disk, and wut's own invocations are dropped so the tool
// never learns from itself.
func RecordEvent(ev Event) error {
	command, recordable, err := prepareCommand(ev.Command)
	if err != nil {
		return err
	}
	if !recordable {
		return nil
	}
	ev.Command = command
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return appendEventLine(ev)
}

// prepareCommand trims, drops self-invocations, redacts, and caps the
// command. recordable=false means the event should be silently skipped.
func prepareCommand(raw string) (string, bool, error) {
	command := strings.TrimSpace(raw)
	if command == "" {
		return "", false, fmt.Errorf("command cannot be empty")
	}
	if shouldIgnoreCommand(command) {
		return "", false, nil
	}
	command = strings.TrimSpace(safety.RedactText(command))
	if command == "" {
		return "", false, fmt.Errorf("command cannot be empty")
	}
	if len(command) > maxCommandLength {
		command = command[:maxCommandLength]
	}
	return command, true, nil
}

func appendEventLine(ev Event) error {
	if _, err := appdirs.EnsureStateDir(); err != nil {
		return err
	}
	path, err := appdirs.StateFilePath(eventsFileName)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("could not serialize event: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("could not open events file: %w", err)
	}
	defer f.Close()
	// Opening for append does not fix up permissions on a pre-existing file.
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("could not secure events file permissions: %w", err)
	}

	if _, err := f.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("could not write event: %w", err)
	}
	return nil
}

// LatestEvent returns the newest parseable event, or nil when the hook has
// never reported anything. Doctor reads it to judge hook liveness; corrupt
// trailing lines are skipped rather than fatal.
func LatestEvent() (*Event, error) {
	path, err := appdirs.StateFilePath(eventsFileName)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read events file: %w", err)
	}
	defer f.Close()

	var (
		latest Event
		found  bool
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLineBytes)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		latest = ev
		found = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not scan events file: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &latest, nil
}

// shouldIgnoreCommand reports whether a command is wut talking to itself.
// The hook sees every line the user runs, including the ones this tool
// just issued.
func shouldIgnoreCommand(command string) bool {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return true
	}
	switch strings.ToLower(filepath.Base(validate.LeadingToken(trimmed))) {
	case "wut", "_wut":
		return true
	}
	low := strings.ToLower(trimmed)
	return strings.HasPrefix(low, "_wut hook-record") ||
		strings.Contains(low, "go run ./cmd/wut") ||
		strings.Contains(low, "go run ./cmd/_wut")
}
