// Package store persists suggestion entries and their outcome statistics
// across invocations. The store is a single JSON state file; every mutation
// runs as a read-modify-write transaction under an exclusive lock file and is
// written back via temp-file + atomic rename, so overlapping invocations
// never lose an increment and a crash never leaves a half-written store.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wut-cli/wut/internal/appdirs"
	"github.com/wut-cli/wut/internal/logging"
)

const (
	storeFileName = "suggestions.json"
	corruptSuffix = ".corrupt"
	schemaVersion = 1
)

// Entry is the unit of truth for one fingerprint. Counters only ever grow;
// demotion and supersession flip flags without erasing history.
type Entry struct {
	Fingerprint string `json:"fingerprint"`
	QueryText   string `json:"query_text"`
	Command     string `json:"command"`
	Uses        int    `json:"uses"`
	Successes   int    `json:"successes"`
	Failures    int    `json:"failures"`
	CreatedAt   string `json:"created_at"`
	LastUsedAt  string `json:"last_used_at,omitempty"`
	Promoted    bool   `json:"promoted"`
	Validated   bool   `json:"validated"`
	Superseded  bool   `json:"superseded,omitempty"`
}

// SuccessRatio is successes over uses; zero before any use.
func (e Entry) SuccessRatio() float64 {
	if e.Uses <= 0 {
		return 0
	}
	return float64(e.Successes) / float64(e.Uses)
}

type Store struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

// Summary is the aggregate view rendered by the stats command.
type Summary struct {
	Path         string  `json:"path"`
	Entries      int     `json:"entries"`
	Active       int     `json:"active"`
	Promoted     int     `json:"promoted"`
	Validated    int     `json:"validated"`
	TotalUses    int     `json:"total_uses"`
	Successes    int     `json:"successes"`
	Failures     int     `json:"failures"`
	SuccessRatio float64 `json:"success_ratio"`
}

// Load reads the store file. A missing file is first run, not an error. An
// unparseable file is corruption: the damaged file is set aside, the loss is
// logged, and an empty store is returned so the tool keeps working.
func Load() (Store, string, error) {
	path, err := appdirs.StateFilePath(storeFileName)
	if err != nil {
		return Store{}, "", err
	}
	payload, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Store{Version: schemaVersion}, path, nil
	}
	if err != nil {
		return Store{}, "", fmt.Errorf("could not read suggestion store: %w", err)
	}
	var store Store
	if err := json.Unmarshal(payload, &store); err != nil {
		logging.L().WithField("path", path).Warnf("suggestion store corrupt, reinitializing: %v", err)
		if renameErr := os.Rename(path, path+corruptSuffix); renameErr != nil {
			logging.L().Warnf("could not set aside corrupt store: %v", renameErr)
		}
		return Store{Version: schemaVersion}, path, nil
	}
	if store.Version == 0 {
		store.Version = schemaVersion
	}
	store.normalize()
	return store, path, nil
}

// Save writes atomically: temp file in the same directory, then rename.
func Save(path string, store Store) error {
	store.normalize()
	if store.Version == 0 {
		store.Version = schemaVersion
	}
	payload, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode suggestion store: %w", err)
	}
	if _, err := appdirs.EnsureStateDir(); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tempFile, err := os.CreateTemp(dir, ".wut-suggestions-*.json")
	if err != nil {
		return fmt.Errorf("could not create temp store file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := func() {
		_ = os.Remove(tempPath)
	}
	if _, err := tempFile.Write(payload); err != nil {
		_ = tempFile.Close()
		cleanup()
		return fmt.Errorf("could not write temp store file: %w", err)
	}
	if err := tempFile.Chmod(0o600); err != nil {
		_ = tempFile.Close()
		cleanup()
		return fmt.Errorf("could not secure temp store file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		cleanup()
		return fmt.Errorf("could not close temp store file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		cleanup()
		return fmt.Errorf("could not atomically replace store file: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("could not secure store file: %w", err)
	}
	return nil
}

// Mutate runs fn inside an exclusive-lock read-modify-write transaction and
// returns the persisted store. The lock is released on every exit path.
func Mutate(fn func(*Store) error) (Store, error) {
	dir, err := appdirs.EnsureStateDir()
	if err != nil {
		return Store{}, err
	}
	lk, err := acquireLock(dir)
	if err != nil {
		return Store{}, err
	}
	defer lk.release()

	store, path, err := Load()
	if err != nil {
		return Store{}, err
	}
	if err := fn(&store); err != nil {
		return Store{}, err
	}
	if err := Save(path, store); err != nil {
		return Store{}, err
	}
	return store, nil
}

// Get returns the active entry for a fingerprint. Read-only callers do not
// take the lock; they see the last fully written state.
func Get(fingerprint string) (Entry, bool, error) {
	store, _, err := Load()
	if err != nil {
		return Entry{}, false, err
	}
	entry, ok := store.Find(fingerprint)
	return entry, ok, nil
}

// List returns all entries, active first.
func List() ([]Entry, error) {
	store, _, err := Load()
	if err != nil {
		return nil, err
	}
	return append([]Entry(nil), store.Entries...), nil
}

// Put records a suggestion for a fingerprint and counts the surface as a
// use. A changed command supersedes the previous active entry (history kept,
// promotion dropped); a command matching a superseded entry reactivates it so
// transient replacements do not lose statistics.
func Put(fingerprint, queryText, command string, validated bool) (Entry, error) {
	fingerprint = strings.TrimSpace(fingerprint)
	command = strings.TrimSpace(command)
	if fingerprint == "" || command == "" {
		return Entry{}, fmt.Errorf("fingerprint and command are required")
	}

	var result Entry
	_, err := Mutate(func(s *Store) error {
		result = s.put(fingerprint, queryText, command, validated)
		return nil
	})
	return result, err
}

// RecordUse bumps the use counter for an active entry, typically on a
// promoted cache hit.
func RecordUse(fingerprint string) (Entry, error) {
	var result Entry
	_, err := Mutate(func(s *Store) error {
		idx := s.findIndex(fingerprint)
		if idx < 0 {
			return fmt.Errorf("no entry for fingerprint %q", fingerprint)
		}
		now := nowStamp()
		s.Entries[idx].Uses++
		s.Entries[idx].LastUsedAt = now
		result = s.Entries[idx]
		return nil
	})
	return result, err
}

// RecordOutcome applies a reported outcome and runs the gate. Uses is lifted
// when needed so successes+failures never exceeds it (outcomes reported
// through shell hooks may arrive without a separate use bump).
func RecordOutcome(fingerprint string, success bool, thresholds Thresholds) (Entry, Verdict, error) {
	var (
		result  Entry
		verdict Verdict
	)
	_, err := Mutate(func(s *Store) error {
		idx := s.findIndex(fingerprint)
		if idx < 0 {
			return fmt.Errorf("no entry for fingerprint %q", fingerprint)
		}
		entry := s.Entries[idx]
		if success {
			entry.Successes++
		} else {
			entry.Failures++
		}
		if entry.Successes+entry.Failures > entry.Uses {
			entry.Uses = entry.Successes + entry.Failures
		}
		entry.LastUsedAt = nowStamp()

		verdict = Decide(entry, thresholds)
		switch verdict {
		case VerdictPromote:
			entry.Promoted = true
		case VerdictDemote:
			entry.Promoted = false
		}
		s.Entries[idx] = entry
		result = entry
		return nil
	})
	return result, verdict, err
}

// RecordValidation refreshes the validated flag after a re-check and runs
// the gate, so a promoted entry whose executable disappeared demotes.
func RecordValidation(fingerprint string, valid bool, thresholds Thresholds) (Entry, Verdict, error) {
	var (
		result  Entry
		verdict Verdict
	)
	_, err := Mutate(func(s *Store) error {
		idx := s.findIndex(fingerprint)
		if idx < 0 {
			return fmt.Errorf("no entry for fingerprint %q", fingerprint)
		}
		entry := s.Entries[idx]
		entry.Validated = valid
		verdict = Decide(entry, thresholds)
		switch verdict {
		case VerdictPromote:
			entry.Promoted = true
		case VerdictDemote:
			entry.Promoted = false
		}
		s.Entries[idx] = entry
		result = entry
		return nil
	})
	return result, verdict, err
}

// Clear removes the store file. Callers confirm with the user first.
func Clear() error {
	dir, err := appdirs.EnsureStateDir()
	if err != nil {
		return err
	}
	lk, err := acquireLock(dir)
	if err != nil {
		return err
	}
	defer lk.release()

	path, err := appdirs.StateFilePath(storeFileName)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not clear suggestion store: %w", err)
	}
	return nil
}

// Stats summarizes the store for the stats command.
func Stats() (Summary, error) {
	store, path, err := Load()
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Path: path, Entries: len(store.Entries)}
	for _, entry := range store.Entries {
		summary.TotalUses += entry.Uses
		summary.Successes += entry.Successes
		summary.Failures += entry.Failures
		if entry.Superseded {
			continue
		}
		summary.Active++
		if entry.Promoted {
			summary.Promoted++
		}
		if entry.Validated {
			summary.Validated++
		}
	}
	if summary.TotalUses > 0 {
		summary.SuccessRatio = float64(summary.Successes) / float64(summary.TotalUses)
	}
	return summary, nil
}

// Find returns the active (non-superseded) entry for a fingerprint.
func (s *Store) Find(fingerprint string) (Entry, bool) {
	idx := s.findIndex(fingerprint)
	if idx < 0 {
		return Entry{}, false
	}
	return s.Entries[idx], true
}

func (s *Store) findIndex(fingerprint string) int {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return -1
	}
	for idx, entry := range s.Entries {
		if entry.Fingerprint == fingerprint && !entry.Superseded {
			return idx
		}
	}
	return -1
}

func (s *Store) put(fingerprint, queryText, command string, validated bool) Entry {
	now := nowStamp()
	idx := s.findIndex(fingerprint)
	if idx >= 0 {
		active := s.Entries[idx]
		if strings.TrimSpace(active.Command) == command {
			active.Uses++
			active.Validated = validated
			if !validated {
				active.Promoted = false
			}
			active.LastUsedAt = now
			if queryText != "" {
				active.QueryText = queryText
			}
			s.Entries[idx] = active
			return active
		}
		// Replacement command: keep the old entry as history, promotion
		// must be re-earned by whichever command serves this fingerprint.
		active.Superseded = true
		active.Promoted = false
		s.Entries[idx] = active
	}

	// A superseded entry for the same command gets its statistics back.
	for i, entry := range s.Entries {
		if entry.Fingerprint != fingerprint || !entry.Superseded {
			continue
		}
		if strings.TrimSpace(entry.Command) != command {
			continue
		}
		entry.Superseded = false
		entry.Uses++
		entry.Validated = validated
		entry.LastUsedAt = now
		if queryText != "" {
			entry.QueryText = queryText
		}
		s.Entries[i] = entry
		s.normalize()
		if reactivated, ok := s.Find(fingerprint); ok {
			return reactivated
		}
		return entry
	}

	created := Entry{
		Fingerprint: fingerprint,
		QueryText:   strings.TrimSpace(queryText),
		Command:     command,
		Uses:        1,
		CreatedAt:   now,
		LastUsedAt:  now,
		Validated:   validated,
	}
	s.Entries = append(s.Entries, created)
	s.normalize()
	return created
}

// normalize trims entries, drops unusable ones, keeps at most one active
// entry per fingerprint, and orders active-first by recency for stable
// output.
func (s *Store) normalize() {
	if s == nil {
		return
	}
	entries := make([]Entry, 0, len(s.Entries))
	activeSeen := map[string]struct{}{}
	for _, entry := range s.Entries {
		entry.Fingerprint = strings.TrimSpace(entry.Fingerprint)
		entry.Command = strings.TrimSpace(entry.Command)
		entry.QueryText = strings.TrimSpace(entry.QueryText)
		if entry.Fingerprint == "" || entry.Command == "" {
			continue
		}
		if entry.Uses < 0 {
			entry.Uses = 0
		}
		if entry.Successes+entry.Failures > entry.Uses {
			entry.Uses = entry.Successes + entry.Failures
		}
		if entry.Promoted && !entry.Validated {
			entry.Promoted = false
		}
		if !entry.Superseded {
			if _, dup := activeSeen[entry.Fingerprint]; dup {
				entry.Superseded = true
				entry.Promoted = false
			} else {
				activeSeen[entry.Fingerprint] = struct{}{}
			}
		}
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Superseded != entries[j].Superseded {
			return !entries[i].Superseded
		}
		if entries[i].LastUsedAt != entries[j].LastUsedAt {
			return entries[i].LastUsedAt > entries[j].LastUsedAt
		}
		return entries[i].Fingerprint < entries[j].Fingerprint
	})
	s.Entries = entries
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
