package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wut-cli/wut/internal/appdirs"
	"github.com/wut-cli/wut/internal/logging"
)

const (
	pendingFileName = "pending.json"
	pendingKeep     = 8
	defaultTTL      = 10 * time.Minute
)

// PendingMarker links a command wut just served to its fingerprint so the
// shell hook can attribute that command's exit status when it actually runs.
type PendingMarker struct {
	Fingerprint string `json:"fingerprint"`
	Command     string `json:"command"`
	IssuedAt    string `json:"issued_at"`
}

type pendingFile struct {
	Version int             `json:"version"`
	Markers []PendingMarker `json:"markers"`
}

// RecordPending appends a marker for a freshly served suggestion. Only the
// most recent few survive, and markers past their ttl drop on every write.
func RecordPending(fingerprintKey, command string, ttl time.Duration) error {
	fingerprintKey = strings.TrimSpace(fingerprintKey)
	command = strings.TrimSpace(command)
	if fingerprintKey == "" || command == "" {
		return nil
	}
	file, path, err := loadPendingFile()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	markers := prunePending(file.Markers, ttl, now)
	markers = append(markers, PendingMarker{
		Fingerprint: fingerprintKey,
		Command:     command,
		IssuedAt:    now.Format(time.RFC3339),
	})
	if len(markers) > pendingKeep {
		markers = markers[len(markers)-pendingKeep:]
	}
	file.Markers = markers
	return savePendingFile(path, file)
}

// TakePending finds the live marker matching an executed command and consumes
// it. Matching collapses whitespace; the hook hands over the line as typed.
func TakePending(command string, ttl time.Duration) (PendingMarker, bool, error) {
	return takePendingAt(command, ttl, time.Now().UTC())
}

func takePendingAt(command string, ttl time.Duration, now time.Time) (PendingMarker, bool, error) {
	needle := normalizeCommandLine(command)
	if needle == "" {
		return PendingMarker{}, false, nil
	}
	file, path, err := loadPendingFile()
	if err != nil {
		return PendingMarker{}, false, err
	}
	markers := prunePending(file.Markers, ttl, now)
	matched := -1
	for i := len(markers) - 1; i >= 0; i-- {
		if normalizeCommandLine(markers[i].Command) == needle {
			matched = i
			break
		}
	}
	if matched < 0 {
		if len(markers) != len(file.Markers) {
			file.Markers = markers
			if saveErr := savePendingFile(path, file); saveErr != nil {
				logging.L().Warnf("could not rewrite pending markers: %v", saveErr)
			}
		}
		return PendingMarker{}, false, nil
	}
	marker := markers[matched]
	file.Markers = append(markers[:matched], markers[matched+1:]...)
	if err := savePendingFile(path, file); err != nil {
		return marker, true, err
	}
	return marker, true, nil
}

func prunePending(markers []PendingMarker, ttl time.Duration, now time.Time) []PendingMarker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	kept := make([]PendingMarker, 0, len(markers))
	for i := 0; i < len(markers); i++ {
		issued, err := time.Parse(time.RFC3339, markers[i].IssuedAt)
		if err != nil {
			continue
		}
		if now.Sub(issued) > ttl {
			continue
		}
		kept = append(kept, markers[i])
	}
	return kept
}

func loadPendingFile() (pendingFile, string, error) {
	path, err := appdirs.StateFilePath(pendingFileName)
	if err != nil {
		return pendingFile{}, "", err
	}
	payload, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return pendingFile{Version: 1}, path, nil
	}
	if err != nil {
		return pendingFile{}, "", fmt.Errorf("could not read pending markers: %w", err)
	}
	var file pendingFile
	if err := json.Unmarshal(payload, &file); err != nil {
		logging.L().WithField("path", path).Warnf("pending markers corrupt, starting over: %v", err)
		return pendingFile{Version: 1}, path, nil
	}
	if file.Version == 0 {
		file.Version = 1
	}
	return file, path, nil
}

func savePendingFile(path string, file pendingFile) error {
	payload, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode pending markers: %w", err)
	}
	if _, err := appdirs.EnsureStateDir(); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".wut-pending-*.json")
	if err != nil {
		return fmt.Errorf("could not create temp file: %w", err)
	}
	tempPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tempPath) }
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("could not write pending markers: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("could not set pending marker permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("could not close temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		cleanup()
		return fmt.Errorf("could not replace pending markers: %w", err)
	}
	return nil
}

// normalizeCommandLine collapses runs of whitespace so "docker  ps" and
// "docker ps" compare equal.
func normalizeCommandLine(command string) string {
	return strings.Join(strings.Fields(command), " ")
}
